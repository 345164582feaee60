// Package exchange provides the broker implementations and historical data
// adapters consumed by the simulator core.
package exchange

import (
	"context"
	"sync/atomic"

	"github.com/adshao/go-binance/v2/common"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/detrand"
)

// Slippage bounds for simulated market fills, as fractions of the reference
// price.
const (
	SlippageMin = 0.0005
	SlippageMax = 0.001
)

// Rejection reasons returned by the simulated broker.
const (
	ReasonLimitNotMarketable      = "limit_not_marketable"
	ReasonInsufficientBuyingPower = "insufficient_buying_power"
	ReasonInvalidQuantity         = "invalid_quantity"
)

// SimulatedBroker fills market orders synchronously at the reference price
// plus a deterministic slippage draw: BUY adds, SELL subtracts. Limit orders
// that would not cross are rejected. Rejections never mutate account state.
type SimulatedBroker struct {
	account   core.Account
	rng       *detrand.Source
	step      float64
	precision int
	submits   uint64
	log       core.Logger
}

// BrokerOption configures a SimulatedBroker.
type BrokerOption func(*SimulatedBroker)

// WithLotSize sets the quantity step and precision fills are snapped to.
func WithLotSize(step float64, precision int) BrokerOption {
	return func(b *SimulatedBroker) {
		b.step = step
		b.precision = precision
	}
}

// NewSimulatedBroker builds a broker with the given starting capital and
// deterministic random source.
func NewSimulatedBroker(capital float64, rng *detrand.Source, log core.Logger, options ...BrokerOption) *SimulatedBroker {
	b := &SimulatedBroker{
		account:   core.Account{Capital: capital, BuyingPower: capital},
		rng:       rng,
		step:      1,
		precision: 0,
		log:       log,
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Connect implements core.Broker. The simulated venue is always reachable.
func (b *SimulatedBroker) Connect(ctx context.Context) error { return nil }

// Account implements core.Broker.
func (b *SimulatedBroker) Account(ctx context.Context) (core.Account, error) {
	return b.account, nil
}

// Submit implements core.Broker with a synchronous terminal result.
func (b *SimulatedBroker) Submit(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	counter := atomic.AddUint64(&b.submits, 1)

	qty := common.AmountToLotSize(b.step, b.precision, req.Quantity)
	if qty <= 0 {
		return core.OrderResult{Status: core.OrderStatusRejected, Reason: ReasonInvalidQuantity}, nil
	}

	if req.Type == core.OrderTypeLimit {
		return b.fillLimit(req, qty)
	}

	u := b.rng.UniformIn(SlippageMin, SlippageMax, detrand.Hash("slippage"), detrand.Hash(req.Symbol), counter)
	price := req.RefPrice * (1 + u)
	if req.Side == core.SideTypeSell {
		price = req.RefPrice * (1 - u)
	}

	return b.settle(req.Side, price, qty)
}

// fillLimit fills a marketable limit at the reference price and rejects the
// rest. No slippage is applied to limit fills.
func (b *SimulatedBroker) fillLimit(req core.OrderRequest, qty float64) (core.OrderResult, error) {
	if req.LimitPrice == nil {
		return core.OrderResult{Status: core.OrderStatusRejected, Reason: ReasonLimitNotMarketable}, nil
	}
	limit := *req.LimitPrice

	marketable := (req.Side == core.SideTypeBuy && limit >= req.RefPrice) ||
		(req.Side == core.SideTypeSell && limit <= req.RefPrice)
	if !marketable {
		return core.OrderResult{Status: core.OrderStatusRejected, Reason: ReasonLimitNotMarketable}, nil
	}
	return b.settle(req.Side, req.RefPrice, qty)
}

func (b *SimulatedBroker) settle(side core.SideType, price, qty float64) (core.OrderResult, error) {
	notional := price * qty
	if side == core.SideTypeBuy {
		if notional > b.account.BuyingPower {
			return core.OrderResult{Status: core.OrderStatusRejected, Reason: ReasonInsufficientBuyingPower}, nil
		}
		b.account.BuyingPower -= notional
	} else {
		b.account.BuyingPower += notional
	}
	return core.OrderResult{Status: core.OrderStatusFilled, FilledPrice: price}, nil
}

// ApplyRealized folds a closed trade's realized P&L into broker capital so
// later sizing sees it.
func (b *SimulatedBroker) ApplyRealized(pnl float64) {
	b.account.Capital += pnl
}
