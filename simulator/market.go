package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raykavin/intrabot/aggregator"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/detrand"
)

// MaxSpeed is the largest playback multiplier; 0 disables pacing entirely.
const MaxSpeed = 1000

// Market replays one trading day of per-symbol 1-minute candles as a merged
// chronological tick stream. Replay is deterministic for a given seed; the
// only wall-clock dependence is the optional pacing sleep between ticks.
type Market struct {
	rng            *detrand.Source
	ticksPerCandle int
	spread         float64
	agg            *aggregator.Aggregator
	log            core.Logger

	mu         sync.Mutex
	speed      int
	paused     bool
	resume     chan struct{}
	jumpTarget time.Time

	ticksProcessed int64
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithTicksPerCandle overrides the tick expansion count.
func WithTicksPerCandle(n int) MarketOption {
	return func(m *Market) { m.ticksPerCandle = n }
}

// WithSpread overrides the simulated bid/ask spread.
func WithSpread(spread float64) MarketOption {
	return func(m *Market) { m.spread = spread }
}

// WithSpeed sets the initial playback multiplier; 0 replays at full speed.
func WithSpeed(speed int) MarketOption {
	return func(m *Market) { m.speed = speed }
}

// WithAggregator routes every tick through the candle aggregator before the
// callback sees it.
func WithAggregator(agg *aggregator.Aggregator) MarketOption {
	return func(m *Market) { m.agg = agg }
}

// NewMarket builds a market replayer.
func NewMarket(rng *detrand.Source, log core.Logger, options ...MarketOption) *Market {
	m := &Market{
		rng:            rng,
		ticksPerCandle: DefaultTicksPerCandle,
		spread:         DefaultSpread,
		log:            log,
		resume:         make(chan struct{}),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// TicksProcessed returns how many ticks reached the pipeline.
func (m *Market) TicksProcessed() int64 { return m.ticksProcessed }

// Pause suspends playback before the next tick.
func (m *Market) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume continues a paused playback.
func (m *Market) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		m.paused = false
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// SetSpeed changes the playback multiplier, clamped to [0, MaxSpeed].
func (m *Market) SetSpeed(speed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	m.speed = speed
}

// JumpTo fast-forwards playback to the target time. Skipped ticks never reach
// the aggregator or the callback; the skipped interval ends with an
// aggregator flush so downstream state is consistent, not sparse.
func (m *Market) JumpTo(target time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jumpTarget = target
}

// Run expands the day's candles into ticks, merges the per-symbol streams
// chronologically and drives the pipeline. It returns core.ErrNoData when no
// symbol has candles for the day.
func (m *Market) Run(ctx context.Context, candlesBySymbol map[string][]core.Candle, callback func(core.Tick)) error {
	streams := make(map[string][]core.Tick, len(candlesBySymbol))
	queue := core.NewPriorityQueue(nil)

	total := 0
	for symbol, candles := range candlesBySymbol {
		var ticks []core.Tick
		for idx, candle := range candles {
			ticks = append(ticks, GenerateTicks(candle, idx, m.rng, m.ticksPerCandle, m.spread)...)
		}
		if len(ticks) == 0 {
			continue
		}
		total += len(ticks)
		streams[symbol] = ticks[1:]
		queue.Push(ticks[0])
	}
	if total == 0 {
		return fmt.Errorf("%w: no candles to replay", core.ErrNoData)
	}

	m.log.Infof("replaying %d ticks across %d symbols", total, len(streams))

	var prevTime time.Time
	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		tick := queue.Pop().(core.Tick)
		if next := streams[tick.Symbol]; len(next) > 0 {
			queue.Push(next[0])
			streams[tick.Symbol] = next[1:]
		}

		if m.skipForJump(tick) {
			prevTime = tick.Time
			continue
		}

		m.waitIfPaused(ctx)
		m.pace(prevTime, tick.Time)
		prevTime = tick.Time

		if m.agg != nil {
			m.agg.ProcessTick(tick)
		}
		callback(tick)
		m.ticksProcessed++
	}

	if m.agg != nil {
		m.agg.Flush()
	}
	return nil
}

// skipForJump reports whether the tick falls inside an active jump window,
// flushing the aggregator when the window ends.
func (m *Market) skipForJump(tick core.Tick) bool {
	m.mu.Lock()
	target := m.jumpTarget
	m.mu.Unlock()

	if target.IsZero() {
		return false
	}
	if tick.Time.Before(target) {
		return true
	}

	m.mu.Lock()
	m.jumpTarget = time.Time{}
	m.mu.Unlock()

	if m.agg != nil {
		m.agg.Flush()
	}
	return false
}

func (m *Market) waitIfPaused(ctx context.Context) {
	m.mu.Lock()
	paused := m.paused
	resume := m.resume
	m.mu.Unlock()
	if !paused {
		return
	}
	select {
	case <-resume:
	case <-ctx.Done():
	}
}

// pace sleeps the simulated gap divided by the speed multiplier. Speed 0
// replays as fast as possible.
func (m *Market) pace(prev, next time.Time) {
	m.mu.Lock()
	speed := m.speed
	m.mu.Unlock()

	if speed <= 0 || prev.IsZero() || !next.After(prev) {
		return
	}
	time.Sleep(next.Sub(prev) / time.Duration(speed))
}
