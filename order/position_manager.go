package order

import (
	"math"
	"sort"

	"github.com/raykavin/intrabot/core"
)

// lot is one entry fill inside a position; reductions consume lots FIFO.
type lot struct {
	price float64
	qty   float64
}

type trackedPosition struct {
	position core.Position
	lots     []lot
}

// PositionManager owns the authoritative set of open positions keyed by
// (strategy, symbol). Quantities are signed: long positions open on BUY
// fills and reduce on SELLs, short positions open on SELL fills and reduce
// on BUY covers. Reductions consume lots FIFO and publish realized P&L per
// closed quantity.
type PositionManager struct {
	open       map[string]*trackedPosition
	lastPrices map[string]float64
	log        core.Logger

	opened int
	closed int
}

// NewPositionManager builds an empty position book.
func NewPositionManager(log core.Logger) *PositionManager {
	return &PositionManager{
		open:       make(map[string]*trackedPosition),
		lastPrices: make(map[string]float64),
		log:        log,
	}
}

func positionKey(strategyID, symbol string) string { return strategyID + "/" + symbol }

// HasOpen reports whether the strategy holds an open position in the symbol.
func (pm *PositionManager) HasOpen(strategyID, symbol string) bool {
	_, ok := pm.open[positionKey(strategyID, symbol)]
	return ok
}

// OpenCount returns the number of open positions across all strategies.
func (pm *PositionManager) OpenCount() int { return len(pm.open) }

// OpenCountByStrategy returns the open position count for one strategy.
func (pm *PositionManager) OpenCountByStrategy(strategyID string) int {
	count := 0
	for _, tracked := range pm.open {
		if tracked.position.StrategyID == strategyID {
			count++
		}
	}
	return count
}

// Get returns a copy of the open position for (strategy, symbol).
func (pm *PositionManager) Get(strategyID, symbol string) (core.Position, bool) {
	tracked, ok := pm.open[positionKey(strategyID, symbol)]
	if !ok {
		return core.Position{}, false
	}
	return tracked.position, true
}

// OpenPositions returns copies of every open position, ordered by trade ID
// for deterministic iteration.
func (pm *PositionManager) OpenPositions() []core.Position {
	out := make([]core.Position, 0, len(pm.open))
	for _, tracked := range pm.open {
		out = append(out, tracked.position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out
}

// OpenedCount and ClosedCount expose trade counters for the run summary.
func (pm *PositionManager) OpenedCount() int { return pm.opened }
func (pm *PositionManager) ClosedCount() int { return pm.closed }

// LastPrice returns the most recent marked price for a symbol.
func (pm *PositionManager) LastPrice(symbol string) (float64, bool) {
	p, ok := pm.lastPrices[symbol]
	return p, ok
}

// LastPrices returns the marked price per symbol.
func (pm *PositionManager) LastPrices() map[string]float64 {
	out := make(map[string]float64, len(pm.lastPrices))
	for k, v := range pm.lastPrices {
		out[k] = v
	}
	return out
}

// OnEntryFill opens a new position or increases an existing one. A BUY fill
// opens long, a SELL fill opens short; the stored quantity carries the sign.
// The returned copy reflects the post-fill state.
func (pm *PositionManager) OnEntryFill(fill core.Fill, entrySignal core.Signal) core.Position {
	key := positionKey(fill.StrategyID, fill.Symbol)
	signed := fill.Quantity
	if fill.Side == core.SideTypeSell {
		signed = -fill.Quantity
	}

	tracked, ok := pm.open[key]
	if !ok {
		tracked = &trackedPosition{
			position: core.Position{
				TradeID:      fill.TradeID,
				StrategyID:   fill.StrategyID,
				Symbol:       fill.Symbol,
				EntryPrice:   fill.Price,
				Quantity:     signed,
				EntryTime:    fill.Time,
				CurrentPrice: fill.Price,
				HighestPrice: fill.Price,
				LowestPrice:  fill.Price,
				EntrySignal:  entrySignal,
			},
			lots: []lot{{price: fill.Price, qty: fill.Quantity}},
		}
		pm.open[key] = tracked
		pm.opened++
		return tracked.position
	}

	// Increase: average the entry over absolute quantities, append the lot.
	p := &tracked.position
	held := math.Abs(p.Quantity)
	p.EntryPrice = (p.EntryPrice*held + fill.Price*fill.Quantity) / (held + fill.Quantity)
	p.Quantity += signed
	tracked.lots = append(tracked.lots, lot{price: fill.Price, qty: fill.Quantity})
	p.MarkPrice(fill.Price)
	return *p
}

// OnExitFill reduces or closes the position FIFO and returns the realized
// P&L of the unwound quantity together with the post-fill position copy and
// whether the position fully closed. For longs the P&L is fill minus lot
// price; for shorts it is lot minus fill price.
func (pm *PositionManager) OnExitFill(fill core.Fill) (pnl float64, position core.Position, closedOut bool) {
	key := positionKey(fill.StrategyID, fill.Symbol)
	tracked, ok := pm.open[key]
	if !ok {
		pm.log.WithField("symbol", fill.Symbol).Warn("exit fill without open position ignored")
		return 0, core.Position{}, false
	}

	direction := 1.0
	if !tracked.position.IsLong() {
		direction = -1.0
	}

	remaining := fill.Quantity
	for remaining > 0 && len(tracked.lots) > 0 {
		head := &tracked.lots[0]
		sold := math.Min(head.qty, remaining)
		pnl += direction * (fill.Price - head.price) * sold
		head.qty -= sold
		remaining -= sold
		if head.qty <= 0 {
			tracked.lots = tracked.lots[1:]
		}
	}

	p := &tracked.position
	p.Quantity -= direction * fill.Quantity
	p.RealizedPnL += pnl
	p.MarkPrice(fill.Price)

	if direction*p.Quantity <= 0 || len(tracked.lots) == 0 {
		delete(pm.open, key)
		pm.closed++
		return pnl, *p, true
	}
	return pnl, *p, false
}

// MarkTick updates current price, favorable extremes and unrealized P&L on
// every open position in the tick's symbol.
func (pm *PositionManager) MarkTick(tick core.Tick) {
	pm.lastPrices[tick.Symbol] = tick.Price
	for _, tracked := range pm.open {
		if tracked.position.Symbol == tick.Symbol {
			tracked.position.MarkPrice(tick.Price)
		}
	}
}
