// Package aggregator turns the tick stream into forming and closed candles
// across a configured set of timeframes.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/samber/lo"
)

// DefaultRingSize is the number of closed candles retained per
// (symbol, timeframe) pair.
const DefaultRingSize = 500

// CloseHandler receives a candle the moment it transitions to closed.
// Handlers run synchronously in registration order.
type CloseHandler func(candle core.Candle, timeframe string)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRingSize overrides the closed-candle retention per pair.
func WithRingSize(size int) Option {
	return func(a *Aggregator) {
		a.ringSize = size
	}
}

// Aggregator maintains one forming candle and a bounded ring of closed
// candles per (symbol, timeframe). It is driven on the pipeline goroutine
// and holds no locks.
type Aggregator struct {
	timeframes []string
	durations  map[string]time.Duration
	forming    map[string]*core.Candle
	closed     map[string][]core.Candle
	handlers   map[string][]CloseHandler
	ringSize   int
	log        core.Logger
}

// New validates the configured timeframes and builds an aggregator. An
// unrecognized timeframe is a configuration error.
func New(timeframes []string, log core.Logger, options ...Option) (*Aggregator, error) {
	if len(timeframes) == 0 {
		return nil, fmt.Errorf("%w: at least one timeframe is required", core.ErrInvalidTimeframe)
	}

	durations := make(map[string]time.Duration, len(timeframes))
	for _, tf := range timeframes {
		d, err := core.ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		durations[tf] = d
	}

	// Keep dispatch order stable: shortest timeframe first.
	ordered := lo.Uniq(timeframes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return durations[ordered[i]] < durations[ordered[j]]
	})

	agg := &Aggregator{
		timeframes: ordered,
		durations:  durations,
		forming:    make(map[string]*core.Candle),
		closed:     make(map[string][]core.Candle),
		handlers:   make(map[string][]CloseHandler),
		ringSize:   DefaultRingSize,
		log:        log,
	}

	for _, option := range options {
		option(agg)
	}

	return agg, nil
}

// Timeframes returns the configured timeframes, shortest first.
func (a *Aggregator) Timeframes() []string { return a.timeframes }

// OnCandleClosed registers a handler for closed candles of one timeframe.
func (a *Aggregator) OnCandleClosed(timeframe string, handler CloseHandler) {
	a.handlers[timeframe] = append(a.handlers[timeframe], handler)
}

// ProcessTick routes a tick into the forming candle of every configured
// timeframe. A tick whose timestamp reaches the next boundary closes the
// forming candle first and then opens a new one seeded with the tick.
func (a *Aggregator) ProcessTick(tick core.Tick) {
	for _, tf := range a.timeframes {
		a.processTickTimeframe(tick, tf)
	}
}

func (a *Aggregator) processTickTimeframe(tick core.Tick, timeframe string) {
	key := pairKey(tick.Symbol, timeframe)
	boundary := core.AlignTime(tick.Time, a.durations[timeframe])

	forming, ok := a.forming[key]
	if ok && !boundary.After(forming.Time) {
		// Same interval: extend the forming candle.
		forming.Close = tick.Price
		if tick.Price > forming.High {
			forming.High = tick.Price
		}
		if tick.Price < forming.Low {
			forming.Low = tick.Price
		}
		forming.Volume += tick.Volume
		forming.TickCount++
		return
	}

	if ok {
		a.finalize(key, timeframe)
	}

	a.forming[key] = &core.Candle{
		Symbol:    tick.Symbol,
		Timeframe: timeframe,
		Time:      boundary,
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Volume,
		TickCount: 1,
	}
}

// AddHistoricalCandle appends a pre-built closed candle to the ring and runs
// the close handlers. Warmup uses this so that indicators and strategies see
// the exact same dispatch path as live trading.
func (a *Aggregator) AddHistoricalCandle(candle core.Candle) {
	candle.Complete = true
	a.appendClosed(candle)
	a.dispatch(candle)
}

// GetForming returns the current forming candle for a pair, if any.
func (a *Aggregator) GetForming(symbol, timeframe string) (core.Candle, bool) {
	forming, ok := a.forming[pairKey(symbol, timeframe)]
	if !ok {
		return core.Candle{}, false
	}
	return *forming, true
}

// GetClosed returns up to n of the most recent closed candles for a pair in
// chronological order.
func (a *Aggregator) GetClosed(symbol, timeframe string, n int) []core.Candle {
	ring := a.closed[pairKey(symbol, timeframe)]
	if n <= 0 || n > len(ring) {
		n = len(ring)
	}
	out := make([]core.Candle, n)
	copy(out, ring[len(ring)-n:])
	return out
}

// Flush finalizes every outstanding forming candle. Called at the end of the
// simulation and after a jump so downstream state is consistent.
func (a *Aggregator) Flush() {
	// Sort by timeframe then symbol so the dispatch order is deterministic.
	keys := lo.Keys(a.forming)
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := a.forming[keys[i]], a.forming[keys[j]]
		if ci.Timeframe != cj.Timeframe {
			return a.durations[ci.Timeframe] < a.durations[cj.Timeframe]
		}
		return ci.Symbol < cj.Symbol
	})

	for _, key := range keys {
		a.finalize(key, a.forming[key].Timeframe)
	}
}

func (a *Aggregator) finalize(key, timeframe string) {
	forming, ok := a.forming[key]
	if !ok {
		return
	}
	delete(a.forming, key)

	forming.Complete = true
	a.appendClosed(*forming)
	a.dispatch(*forming)
}

func (a *Aggregator) appendClosed(candle core.Candle) {
	key := pairKey(candle.Symbol, candle.Timeframe)
	ring := append(a.closed[key], candle)
	if len(ring) > a.ringSize {
		ring = ring[len(ring)-a.ringSize:]
	}
	a.closed[key] = ring
}

func (a *Aggregator) dispatch(candle core.Candle) {
	for _, handler := range a.handlers[candle.Timeframe] {
		handler(candle, candle.Timeframe)
	}
}

func pairKey(symbol, timeframe string) string {
	return symbol + "--" + timeframe
}
