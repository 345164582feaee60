package core

import (
	"fmt"
	"time"
)

// OrderType represents the kind of order sent to the broker.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order. The pending state
// transitions exactly once, to filled or rejected.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// OrderRequest is what the order manager submits to a broker.
type OrderRequest struct {
	Side       SideType  `json:"side"`
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	Type       OrderType `json:"type"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
	RefPrice   float64   `json:"ref_price"`
	Time       time.Time `json:"time"`
}

// OrderResult is the broker's terminal answer to a request.
type OrderResult struct {
	Status      OrderStatus `json:"status"`
	FilledPrice float64     `json:"filled_price"`
	Reason      string      `json:"reason,omitempty"`
}

// Order is the order manager's journal record of one submission.
type Order struct {
	ID             string      `json:"id"`
	TradeID        string      `json:"trade_id"`
	StrategyID     string      `json:"strategy_id"`
	Symbol         string      `json:"symbol"`
	Side           SideType    `json:"side"`
	RequestedPrice float64     `json:"requested_price"`
	FilledPrice    float64     `json:"filled_price"`
	Quantity       float64     `json:"quantity"`
	Status         OrderStatus `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	FilledAt       time.Time   `json:"filled_at"`
	Slippage       float64     `json:"slippage"`
}

// IsFilled reports whether the order reached the filled terminal state.
func (o Order) IsFilled() bool { return o.Status == OrderStatusFilled }

func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | trade: %s, %.0f x %.2f (~%.2f)",
		o.Status, o.Side, o.Symbol, o.TradeID, o.Quantity, o.FilledPrice, o.Quantity*o.FilledPrice)
}

// Fill is the event emitted when an order reaches the filled state. It drives
// the position manager, the trailing stop manager and strategy callbacks.
type Fill struct {
	OrderID        string    `json:"order_id"`
	TradeID        string    `json:"trade_id"`
	StrategyID     string    `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	Side           SideType  `json:"side"`
	RequestedPrice float64   `json:"requested_price"`
	Price          float64   `json:"price"`
	Quantity       float64   `json:"quantity"`
	Time           time.Time `json:"time"`
}
