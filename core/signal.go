package core

import "time"

// SideType represents the direction of a signal or order.
type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// PositionSide is the exposure a signal targets. The zero value means LONG,
// so only short-side strategies ever set it.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// SignalOrigin identifies which component emitted a signal.
type SignalOrigin string

const (
	OriginStrategy       SignalOrigin = "strategy"
	OriginTrailingSL     SignalOrigin = "trailing_sl"
	OriginTimeController SignalOrigin = "time_controller"
)

// Signal is an intent to trade. It is created by a strategy, the trailing
// stop manager or the time controller, validated by the risk manager and, if
// approved, handed to the order manager. Rejected signals are discarded and
// never retried.
type Signal struct {
	StrategyID   string             `json:"strategy_id"`
	Side         SideType           `json:"side"`
	PositionSide PositionSide       `json:"position_side,omitempty"`
	Symbol       string             `json:"symbol"`
	Price        float64            `json:"price"`
	Quantity     float64            `json:"quantity"`
	Time         time.Time          `json:"time"`
	Reason       string             `json:"reason"`
	Origin       SignalOrigin       `json:"origin"`
	Indicators   map[string]float64 `json:"indicators,omitempty"`
}

// IsBuy reports whether the signal buys the symbol, regardless of whether
// that opens a long or covers a short.
func (s Signal) IsBuy() bool { return s.Side == SideTypeBuy }

// IsEntry reports whether the signal opens or increases exposure: a BUY on
// the long side or a SELL on the short side. Everything else reduces an open
// position. A plain SELL without a position side is always an exit, so
// synthetic exits can never be misread as short entries.
func (s Signal) IsEntry() bool {
	if s.Side == SideTypeBuy {
		return s.PositionSide != PositionShort
	}
	return s.PositionSide == PositionShort
}

// Notional returns the capital the signal would commit at its reference price.
func (s Signal) Notional() float64 { return s.Price * s.Quantity }
