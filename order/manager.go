// Package order turns approved signals into broker submissions and tracks
// the resulting positions and realized performance.
package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/raykavin/intrabot/core"
)

// DefaultAllocationPct is the fraction of deployable capital committed to an
// entry signal that carries no explicit quantity.
const DefaultAllocationPct = 0.10

// Manager submits approved signals to the broker, journals every order and
// emits fill events for the position manager and strategy callbacks.
type Manager struct {
	broker        core.Broker
	capital       func() float64
	allocationPct float64
	log           core.Logger

	tradeSeq map[string]int
	orders   []core.Order
}

// Option configures a Manager.
type Option func(*Manager)

// WithAllocationPct overrides the default-sizing allocation.
func WithAllocationPct(pct float64) Option {
	return func(m *Manager) { m.allocationPct = pct }
}

// NewManager builds an order manager. capital supplies the deployable
// capital used to size entry signals without an explicit quantity.
func NewManager(broker core.Broker, capital func() float64, log core.Logger, options ...Option) *Manager {
	m := &Manager{
		broker:        broker,
		capital:       capital,
		allocationPct: DefaultAllocationPct,
		log:           log,
		tradeSeq:      make(map[string]int),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Orders returns the journal of every submission, in order.
func (m *Manager) Orders() []core.Order { return m.orders }

// ResolveQuantity returns the quantity an entry signal will trade: the
// signal's own quantity, or the default capital allocation at its price.
// The risk manager validates the signal after this resolution, so the
// notional checks see the quantity that would actually be submitted.
func (m *Manager) ResolveQuantity(signal core.Signal) float64 {
	if signal.Quantity > 0 {
		return signal.Quantity
	}
	return m.defaultQuantity(signal.Price)
}

// ExecuteEntry opens a new trade for an approved entry signal: a BUY for a
// long or a SELL for a short. It generates the trade ID, sizes the order when
// the signal carries no quantity and submits a market order. A nil fill with
// a non-nil order means the broker rejected it.
func (m *Manager) ExecuteEntry(ctx context.Context, signal core.Signal) (core.Order, *core.Fill, error) {
	qty := m.ResolveQuantity(signal)
	if qty <= 0 {
		return core.Order{}, nil, fmt.Errorf("%w: price %.2f", core.ErrInvalidQuantity, signal.Price)
	}

	tradeID := m.newTradeID(signal)
	return m.submit(ctx, signal, tradeID, qty)
}

// ExecuteExit closes or reduces the given position for an approved exit
// signal. A zero or oversized signal quantity unwinds the full remainder.
func (m *Manager) ExecuteExit(ctx context.Context, signal core.Signal, position core.Position) (core.Order, *core.Fill, error) {
	remaining := math.Abs(position.Quantity)
	qty := signal.Quantity
	if qty <= 0 || qty > remaining {
		qty = remaining
	}
	return m.submit(ctx, signal, position.TradeID, qty)
}

func (m *Manager) submit(ctx context.Context, signal core.Signal, tradeID string, qty float64) (core.Order, *core.Fill, error) {
	order := core.Order{
		ID:             uuid.NewString(),
		TradeID:        tradeID,
		StrategyID:     signal.StrategyID,
		Symbol:         signal.Symbol,
		Side:           signal.Side,
		RequestedPrice: signal.Price,
		Quantity:       qty,
		Status:         core.OrderStatusPending,
		SubmittedAt:    signal.Time,
	}

	result, err := m.broker.Submit(ctx, core.OrderRequest{
		Side:     signal.Side,
		Symbol:   signal.Symbol,
		Quantity: qty,
		Type:     core.OrderTypeMarket,
		RefPrice: signal.Price,
		Time:     signal.Time,
	})
	if err != nil {
		order.Status = core.OrderStatusRejected
		order.Reason = err.Error()
		m.orders = append(m.orders, order)
		return order, nil, err
	}

	order.Status = result.Status
	order.Reason = result.Reason
	if result.Status != core.OrderStatusFilled {
		m.orders = append(m.orders, order)
		m.log.WithFields(map[string]any{
			"symbol": signal.Symbol,
			"side":   string(signal.Side),
			"reason": result.Reason,
		}).Warn("order rejected by broker")
		return order, nil, nil
	}

	order.FilledPrice = result.FilledPrice
	order.FilledAt = signal.Time
	if signal.Price != 0 {
		order.Slippage = math.Abs(result.FilledPrice-signal.Price) / signal.Price
	}
	m.orders = append(m.orders, order)
	m.log.Info(order.String())

	return order, &core.Fill{
		OrderID:        order.ID,
		TradeID:        tradeID,
		StrategyID:     signal.StrategyID,
		Symbol:         signal.Symbol,
		Side:           signal.Side,
		RequestedPrice: signal.Price,
		Price:          result.FilledPrice,
		Quantity:       qty,
		Time:           signal.Time,
	}, nil
}

// newTradeID builds strategyID_symbol_compactTimestamp, with a sequence
// suffix when two trades open within the same second.
func (m *Manager) newTradeID(signal core.Signal) string {
	base := fmt.Sprintf("%s_%s_%s", signal.StrategyID, signal.Symbol, compactTime(signal.Time))
	seq := m.tradeSeq[base]
	m.tradeSeq[base] = seq + 1
	if seq == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, seq)
}

func (m *Manager) defaultQuantity(price float64) float64 {
	if price <= 0 || m.capital == nil {
		return 0
	}
	return math.Floor(m.capital() * m.allocationPct / price)
}

func compactTime(t time.Time) string {
	return t.Format("20060102150405")
}
