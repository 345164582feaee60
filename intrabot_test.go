package intrabot

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/intrabot/config"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/logger"
	"github.com/raykavin/intrabot/storage"
	"github.com/raykavin/intrabot/strategy"
	"github.com/raykavin/intrabot/trailing"
	"github.com/stretchr/testify/require"
)

// sessionAdapter serves one synthetic trading day from memory.
type sessionAdapter struct {
	day []core.Candle
}

func (a *sessionAdapter) ListSymbols() []string { return []string{"RELIANCE"} }

func (a *sessionAdapter) AvailableDates(string) ([]time.Time, error) {
	return []time.Time{a.day[0].Time.Truncate(24 * time.Hour)}, nil
}

func (a *sessionAdapter) LoadDay(time.Time, string) ([]core.Candle, error) {
	return a.day, nil
}

func (a *sessionAdapter) LoadRecentClosed(time.Time, string, int, string) ([]core.Candle, error) {
	return nil, nil
}

// holdUntilSquareOff buys once mid-morning and never exits on its own, so the
// session square-off has to close it.
type holdUntilSquareOff struct {
	strategy.Base
	buyAt      time.Time
	retryAt    time.Time
	bought     bool
	retried    bool
	closedPnls []float64
}

func newHoldStrategy(id string, _ strategy.Params) (strategy.Strategy, error) {
	return &holdUntilSquareOff{Base: strategy.NewBase(id)}, nil
}

func (s *holdUntilSquareOff) Initialize(deps strategy.Deps) error {
	s.SetLog(deps.Log)
	return nil
}

func (s *holdUntilSquareOff) WarmupCandlesRequired() int   { return 0 }
func (s *holdUntilSquareOff) RequiredTimeframes() []string { return []string{"1m"} }

func (s *holdUntilSquareOff) OnWarmupCandle(core.Candle, string) {}

func (s *holdUntilSquareOff) OnCandleClosed(core.Candle, string) []core.Signal { return nil }

func (s *holdUntilSquareOff) OnTick(tick core.Tick) []core.Signal {
	if !s.bought && !tick.Time.Before(s.buyAt) && !s.HasOpen(tick.Symbol) {
		s.bought = true
		return []core.Signal{s.Signal(core.SideTypeBuy, tick.Symbol, tick.Price, 10, tick.Time, "scripted_entry", nil)}
	}
	// A second entry after the warning threshold must be rejected upstream.
	if !s.retried && !tick.Time.Before(s.retryAt) {
		s.retried = true
		return []core.Signal{s.Signal(core.SideTypeBuy, tick.Symbol, tick.Price, 10, tick.Time, "late_entry", nil)}
	}
	return nil
}

func (s *holdUntilSquareOff) OnPositionOpened(tradeID string, fill core.Fill) {
	s.TrackOpen(tradeID, fill)
}

func (s *holdUntilSquareOff) OnPositionClosed(_ string, fill core.Fill, pnl float64) {
	s.TrackClose(fill)
	s.closedPnls = append(s.closedPnls, pnl)
}

func (s *holdUntilSquareOff) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var signals []core.Signal
	for _, symbol := range s.OpenSymbols() {
		signals = append(signals, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return signals
}

// hardStopExit buys once and afterwards exits only through its own fixed
// percentage stop, the way the momentum strategies guard their entries.
type hardStopExit struct {
	strategy.Base
	buyAt    time.Time
	entryQty float64
	stopPct  float64
	bought   bool
}

func newHardStopExit(id string, _ strategy.Params) (strategy.Strategy, error) {
	return &hardStopExit{Base: strategy.NewBase(id), entryQty: 10, stopPct: 0.012}, nil
}

func (s *hardStopExit) Initialize(deps strategy.Deps) error {
	s.SetLog(deps.Log)
	return nil
}

func (s *hardStopExit) WarmupCandlesRequired() int { return 0 }

func (s *hardStopExit) RequiredTimeframes() []string { return []string{"1m"} }

func (s *hardStopExit) OnWarmupCandle(core.Candle, string) {}

func (s *hardStopExit) OnCandleClosed(core.Candle, string) []core.Signal { return nil }

func (s *hardStopExit) OnTick(tick core.Tick) []core.Signal {
	if s.HasOpen(tick.Symbol) {
		entry, _ := s.EntryPrice(tick.Symbol)
		if tick.Price <= entry*(1-s.stopPct) {
			return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time, "hard_stop", nil)}
		}
		return nil
	}
	if !s.bought && !tick.Time.Before(s.buyAt) {
		s.bought = true
		return []core.Signal{s.Signal(core.SideTypeBuy, tick.Symbol, tick.Price, s.entryQty, tick.Time, "scripted_entry", nil)}
	}
	return nil
}

func (s *hardStopExit) OnPositionOpened(tradeID string, fill core.Fill) { s.TrackOpen(tradeID, fill) }

func (s *hardStopExit) OnPositionClosed(_ string, fill core.Fill, _ float64) { s.TrackClose(fill) }

func (s *hardStopExit) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var signals []core.Signal
	for _, symbol := range s.OpenSymbols() {
		signals = append(signals, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return signals
}

// shortOnce opens a single short mid-morning and holds it for the session
// square-off to cover.
type shortOnce struct {
	strategy.Base
	sellAt time.Time
	sold   bool
}

func newShortOnce(id string, _ strategy.Params) (strategy.Strategy, error) {
	return &shortOnce{Base: strategy.NewBase(id)}, nil
}

func (s *shortOnce) Initialize(deps strategy.Deps) error {
	s.SetLog(deps.Log)
	return nil
}

func (s *shortOnce) WarmupCandlesRequired() int { return 0 }

func (s *shortOnce) RequiredTimeframes() []string { return []string{"1m"} }

func (s *shortOnce) OnWarmupCandle(core.Candle, string) {}

func (s *shortOnce) OnCandleClosed(core.Candle, string) []core.Signal { return nil }

func (s *shortOnce) OnTick(tick core.Tick) []core.Signal {
	if !s.sold && !tick.Time.Before(s.sellAt) && !s.HasOpen(tick.Symbol) {
		s.sold = true
		return []core.Signal{s.ShortSignal(core.SideTypeSell, tick.Symbol, tick.Price, 10, tick.Time, "scripted_short_entry", nil)}
	}
	return nil
}

func (s *shortOnce) OnPositionOpened(tradeID string, fill core.Fill) { s.TrackOpen(tradeID, fill) }

func (s *shortOnce) OnPositionClosed(_ string, fill core.Fill, _ float64) { s.TrackClose(fill) }

func (s *shortOnce) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var signals []core.Signal
	for _, symbol := range s.OpenSymbols() {
		signals = append(signals, s.ShortSignal(core.SideTypeBuy, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return signals
}

func init() {
	strategy.Register("hold_until_square_off", newHoldStrategy)
	strategy.Register("hard_stop_exit", newHardStopExit)
	strategy.Register("short_once", newShortOnce)
}

type recordedSignal struct {
	signal   core.Signal
	approved bool
	reason   string
}

// recordingStore keeps everything the pipeline journals so tests can assert
// on the exact decision sequence.
type recordingStore struct {
	storage.Nop
	signals []recordedSignal
	opens   []core.Position
	pnls    []float64
	stops   []float64
}

func (r *recordingStore) LogSignal(_ context.Context, signal core.Signal, approved bool, reason string) error {
	r.signals = append(r.signals, recordedSignal{signal: signal, approved: approved, reason: reason})
	return nil
}

func (r *recordingStore) LogTradeOpen(_ context.Context, position core.Position) error {
	r.opens = append(r.opens, position)
	return nil
}

func (r *recordingStore) LogTradeClose(_ context.Context, _ core.Position, pnl float64) error {
	r.pnls = append(r.pnls, pnl)
	return nil
}

func (r *recordingStore) UpdateTrailingSL(_ context.Context, _ string, stop float64) error {
	r.stops = append(r.stops, stop)
	return nil
}

func (r *recordingStore) reasons() []string {
	out := make([]string, 0, len(r.signals))
	for _, rec := range r.signals {
		out = append(out, rec.signal.Reason)
	}
	return out
}

// flatThenGapDay holds the price at before, then gaps to after at gapAt
// minutes into the session. Flat candles pin every generated tick to the
// candle price exactly.
func flatThenGapDay(date time.Time, before, after float64, gapAt int) []core.Candle {
	start := time.Date(date.Year(), date.Month(), date.Day(), 9, 15, 0, 0, date.Location())
	out := make([]core.Candle, 6*60)
	for i := range out {
		price := before
		if i >= gapAt {
			price = after
		}
		out[i] = core.Candle{
			Symbol: "RELIANCE", Timeframe: "1m",
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price, Low: price, Close: price,
			Volume: 5000, Complete: true,
		}
	}
	return out
}

// decliningDay drops the price one point per minute for the whole session.
func decliningDay(date time.Time, from float64) []core.Candle {
	start := time.Date(date.Year(), date.Month(), date.Day(), 9, 15, 0, 0, date.Location())
	out := make([]core.Candle, 6*60)
	for i := range out {
		price := from - float64(i)
		out[i] = core.Candle{
			Symbol: "RELIANCE", Timeframe: "1m",
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price, Low: price, Close: price,
			Volume: 5000, Complete: true,
		}
	}
	return out
}

func sessionDay(date time.Time) []core.Candle {
	start := time.Date(date.Year(), date.Month(), date.Day(), 9, 15, 0, 0, date.Location())
	n := 6 * 60 // 09:15 through 15:14
	out := make([]core.Candle, n)
	for i := range out {
		price := 2500 + float64(i%20)
		out[i] = core.Candle{
			Symbol: "RELIANCE", Timeframe: "1m",
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 3, Low: price - 3, Close: price + 1,
			Volume: 5000, Complete: true,
		}
	}
	return out
}

func sessionConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulation.Timeframes = []string{"1m", "5m"}
	cfg.Strategies = []config.StrategyConfig{
		{Class: "hold_until_square_off", ID: "hold-1"},
	}
	return cfg
}

func runSession(t *testing.T, date time.Time) (*Bot, *holdUntilSquareOff) {
	t.Helper()

	cfg := sessionConfig()
	adapter := &sessionAdapter{day: sessionDay(date)}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter))
	require.NoError(t, err)

	scripted := bot.strategies.Strategies()[0].(*holdUntilSquareOff)
	scripted.buyAt = date.Add(10 * time.Hour)
	scripted.retryAt = date.Add(15*time.Hour + 5*time.Minute)

	require.NoError(t, bot.Run(context.Background(), date))
	require.NoError(t, bot.Close())
	return bot, scripted
}

func TestRun_SquareOffClosesEverything(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	bot, scripted := runSession(t, date)

	require.Zero(t, bot.Positions().OpenCount())
	require.Equal(t, 1, bot.Positions().OpenedCount())
	require.Equal(t, 1, bot.Positions().ClosedCount())
	require.Len(t, scripted.closedPnls, 1)

	// The late retry was emitted but blocked by the warning threshold.
	require.True(t, scripted.retried)
	require.True(t, bot.Risk().State().TradingBlocked)
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)

	first, _ := runSession(t, date)
	second, _ := runSession(t, date)

	require.Equal(t, first.Risk().State().DailyRealizedPnL, second.Risk().State().DailyRealizedPnL)
	require.Equal(t, first.Market().TicksProcessed(), second.Market().TicksProcessed())
}

func TestRun_NoDataDateFails(t *testing.T) {
	cfg := sessionConfig()
	adapter := &sessionAdapter{day: nil}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter))
	require.NoError(t, err)

	err = bot.Run(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local))
	require.ErrorIs(t, err, core.ErrNoData)
}

func TestStatusLine_IdleBeforeRun(t *testing.T) {
	bot, err := New(sessionConfig(), logger.Nop(), WithDataAdapter(&sessionAdapter{day: sessionDay(time.Now())}))
	require.NoError(t, err)
	require.Equal(t, "idle", bot.StatusLine())
}

func TestRun_StrategyHardStopWinsOverTrailing(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)

	cfg := config.Default()
	cfg.Simulation.Timeframes = []string{"1m", "5m"}
	cfg.Strategies = []config.StrategyConfig{{
		Class: "hard_stop_exit", ID: "stop-1",
		Trailing: trailing.Config{Policy: trailing.PolicyFixedPct, Pct: 0.01},
	}}

	store := &recordingStore{}
	// Flat at 1000 until a gap to 950: the first gap tick is below both the
	// strategy's 1.2% hard stop and the 1% trailing stop at once.
	adapter := &sessionAdapter{day: flatThenGapDay(date, 1000, 950, 60)}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter), WithStorage(store))
	require.NoError(t, err)

	scripted := bot.strategies.Strategies()[0].(*hardStopExit)
	scripted.buyAt = date.Add(10 * time.Hour)

	require.NoError(t, bot.Run(context.Background(), date))
	require.NoError(t, bot.Close())

	require.Zero(t, bot.Positions().OpenCount())
	require.Equal(t, 1, bot.Positions().ClosedCount())

	// The trailing stop was armed and journaled while the trade was open, yet
	// the strategy's own stop closed the trade first.
	require.NotEmpty(t, store.stops)
	require.Contains(t, store.reasons(), "hard_stop")
	require.NotContains(t, store.reasons(), "trailing_sl")
}

func TestRun_UnconfiguredTrailingNeverFires(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)

	cfg := config.Default()
	cfg.Simulation.Timeframes = []string{"1m", "5m"}
	cfg.Strategies = []config.StrategyConfig{{Class: "hard_stop_exit", ID: "stop-1"}}

	store := &recordingStore{}
	adapter := &sessionAdapter{day: flatThenGapDay(date, 1000, 950, 60)}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter), WithStorage(store))
	require.NoError(t, err)

	scripted := bot.strategies.Strategies()[0].(*hardStopExit)
	scripted.buyAt = date.Add(10 * time.Hour)

	require.NoError(t, bot.Run(context.Background(), date))
	require.NoError(t, bot.Close())

	// No trailing policy was configured for the strategy, so no stop is
	// journaled and no synthetic exit appears: the scripted stop owns the
	// trade from entry to close.
	require.Empty(t, store.stops)
	require.NotContains(t, store.reasons(), "trailing_sl")
	require.Contains(t, store.reasons(), "hard_stop")
	require.Equal(t, 1, bot.Positions().ClosedCount())
}

func TestRun_NotionalCapSeesResolvedQuantity(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)

	cfg := config.Default()
	cfg.Simulation.Timeframes = []string{"1m", "5m"}
	cfg.Risk.NotionalCap = 50_000
	cfg.Strategies = []config.StrategyConfig{{Class: "hard_stop_exit", ID: "stop-1"}}

	store := &recordingStore{}
	adapter := &sessionAdapter{day: flatThenGapDay(date, 2500, 2500, 0)}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter), WithStorage(store))
	require.NoError(t, err)

	scripted := bot.strategies.Strategies()[0].(*hardStopExit)
	scripted.buyAt = date.Add(10 * time.Hour)
	scripted.entryQty = 0

	require.NoError(t, bot.Run(context.Background(), date))
	require.NoError(t, bot.Close())

	// The unsized entry resolves to 40 units before validation, so the
	// 100k notional is visible to the cap and the order never reaches the
	// broker.
	require.Len(t, store.signals, 1)
	rec := store.signals[0]
	require.False(t, rec.approved)
	require.Equal(t, "notional_cap", rec.reason)
	require.Equal(t, 40.0, rec.signal.Quantity)

	require.Empty(t, bot.Orders())
	require.Zero(t, bot.Positions().OpenedCount())
}

func TestRun_ShortLifecycleRealizesFallingPrices(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)

	cfg := config.Default()
	cfg.Simulation.Timeframes = []string{"1m", "5m"}
	cfg.Strategies = []config.StrategyConfig{{Class: "short_once", ID: "short-1"}}

	store := &recordingStore{}
	adapter := &sessionAdapter{day: decliningDay(date, 2600)}

	bot, err := New(cfg, logger.Nop(), WithDataAdapter(adapter), WithStorage(store))
	require.NoError(t, err)

	scripted := bot.strategies.Strategies()[0].(*shortOnce)
	scripted.sellAt = date.Add(10 * time.Hour)

	require.NoError(t, bot.Run(context.Background(), date))
	require.NoError(t, bot.Close())

	// The opening SELL journals a negative quantity and the square-off cover
	// realizes the fall from entry as a gain.
	require.Len(t, store.opens, 1)
	require.Equal(t, -10.0, store.opens[0].Quantity)
	require.False(t, store.opens[0].IsLong())

	require.Zero(t, bot.Positions().OpenCount())
	require.Equal(t, 1, bot.Positions().ClosedCount())
	require.Len(t, store.pnls, 1)
	require.Greater(t, store.pnls[0], 0.0)
	require.InDelta(t, store.pnls[0], bot.Risk().State().DailyRealizedPnL, 1e-9)
}
