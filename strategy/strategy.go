// Package strategy defines the polymorphic signal sources of the pipeline and
// the reference implementations shipped with the simulator.
package strategy

import (
	"fmt"
	"time"

	"github.com/StudioSol/set"
	"github.com/raykavin/intrabot/core"
)

// Strategy is the capability set every signal source implements. Callbacks
// return emitted signals; the pipeline drains them in emission order.
type Strategy interface {
	ID() string
	Initialize(deps Deps) error

	WarmupCandlesRequired() int
	RequiredTimeframes() []string

	// OnWarmupCandle populates indicator state only. Never emits.
	OnWarmupCandle(candle core.Candle, timeframe string)

	OnCandleClosed(candle core.Candle, timeframe string) []core.Signal
	OnTick(tick core.Tick) []core.Signal

	OnPositionOpened(tradeID string, fill core.Fill)
	OnPositionClosed(tradeID string, fill core.Fill, pnl float64)

	// SquareOffAll emits SELL signals for every held symbol, bypassing
	// minimum-hold checks. prices carries the last known price per symbol.
	SquareOffAll(now time.Time, prices map[string]float64) []core.Signal

	IsWarmedUp() bool
	SetWarmedUp(warmed bool)
}

// TrailingControl is the slice of the trailing stop manager a strategy may
// drive directly.
type TrailingControl interface {
	// SetBreakeven clamps the trade's stop to at least its entry price for
	// the remainder of the trade.
	SetBreakeven(tradeID string)
}

// Deps carries the collaborators injected into a strategy at initialization.
type Deps struct {
	Log      core.Logger
	Trailing TrailingControl
	// Account returns the current broker account snapshot, used by
	// strategies that size positions from capital at risk.
	Account func() core.Account
}

// Base holds the bookkeeping shared by every strategy: identity, warmup gate
// and the per-symbol view of open exposure. Strategies never hold position
// pointers, only the symbol set and the trade IDs needed to talk to the
// trailing stop manager.
type Base struct {
	id     string
	log    core.Logger
	warmed bool

	openSymbols   *set.LinkedHashSetString
	tradeBySymbol map[string]string
	entryPrice    map[string]float64
	entryTime     map[string]time.Time
}

// NewBase builds the shared strategy state.
func NewBase(id string) Base {
	return Base{
		id:            id,
		openSymbols:   set.NewLinkedHashSetString(),
		tradeBySymbol: make(map[string]string),
		entryPrice:    make(map[string]float64),
		entryTime:     make(map[string]time.Time),
	}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) IsWarmedUp() bool     { return b.warmed }
func (b *Base) SetWarmedUp(w bool)   { b.warmed = w }
func (b *Base) Log() core.Logger     { return b.log }
func (b *Base) SetLog(l core.Logger) { b.log = l }

// HasOpen reports whether this strategy holds a position in the symbol.
func (b *Base) HasOpen(symbol string) bool {
	return b.openSymbols.InArray(symbol)
}

// OpenSymbols returns the held symbols in insertion order.
func (b *Base) OpenSymbols() []string {
	out := make([]string, 0, b.openSymbols.Length())
	for s := range b.openSymbols.Iter() {
		out = append(out, s)
	}
	return out
}

// TradeID returns the trade ID of the open position in symbol, if any.
func (b *Base) TradeID(symbol string) (string, bool) {
	id, ok := b.tradeBySymbol[symbol]
	return id, ok
}

// EntryPrice returns the fill price of the open position in symbol.
func (b *Base) EntryPrice(symbol string) (float64, bool) {
	p, ok := b.entryPrice[symbol]
	return p, ok
}

// HeldFor returns how long the position in symbol has been open.
func (b *Base) HeldFor(symbol string, now time.Time) (time.Duration, bool) {
	opened, ok := b.entryTime[symbol]
	if !ok {
		return 0, false
	}
	return now.Sub(opened), true
}

// TrackOpen records a position open fill.
func (b *Base) TrackOpen(tradeID string, fill core.Fill) {
	b.openSymbols.Add(fill.Symbol)
	b.tradeBySymbol[fill.Symbol] = tradeID
	b.entryPrice[fill.Symbol] = fill.Price
	b.entryTime[fill.Symbol] = fill.Time
}

// TrackClose forgets a closed position.
func (b *Base) TrackClose(fill core.Fill) {
	b.openSymbols.Remove(fill.Symbol)
	delete(b.tradeBySymbol, fill.Symbol)
	delete(b.entryPrice, fill.Symbol)
	delete(b.entryTime, fill.Symbol)
}

// Signal assembles a signal stamped with this strategy's identity.
func (b *Base) Signal(side core.SideType, symbol string, price, qty float64, ts time.Time, reason string, indicators map[string]float64) core.Signal {
	return core.Signal{
		StrategyID: b.id,
		Side:       side,
		Symbol:     symbol,
		Price:      price,
		Quantity:   qty,
		Time:       ts,
		Reason:     reason,
		Origin:     core.OriginStrategy,
		Indicators: indicators,
	}
}

// ShortSignal assembles a short-side signal: a SELL opens or increases a
// short, a BUY covers it. The position side marks the intent so the pipeline
// never confuses a short entry with a long exit.
func (b *Base) ShortSignal(side core.SideType, symbol string, price, qty float64, ts time.Time, reason string, indicators map[string]float64) core.Signal {
	s := b.Signal(side, symbol, price, qty, ts, reason, indicators)
	s.PositionSide = core.PositionShort
	return s
}

// Constructor builds a strategy instance from its configured parameters.
type Constructor func(id string, params Params) (Strategy, error)

var registry = map[string]Constructor{}

// Register binds a strategy class name to its constructor. Called from init
// functions of the variant files.
func Register(class string, ctor Constructor) {
	registry[class] = ctor
}

// New instantiates a registered strategy class.
func New(class, id string, params Params) (Strategy, error) {
	ctor, ok := registry[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownStrategy, class)
	}
	return ctor(id, params)
}

// Classes returns the registered class names.
func Classes() []string {
	out := make([]string, 0, len(registry))
	for class := range registry {
		out = append(out, class)
	}
	return out
}
