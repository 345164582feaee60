package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/intrabot/aggregator"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/logger"
	"github.com/raykavin/intrabot/strategy"
	"github.com/stretchr/testify/require"
)

// memoryAdapter serves canned 1-minute history for warmup tests.
type memoryAdapter struct {
	candles map[string][]core.Candle
}

func (a *memoryAdapter) ListSymbols() []string { return []string{"Z"} }

func (a *memoryAdapter) AvailableDates(string) ([]time.Time, error) { return nil, nil }

func (a *memoryAdapter) LoadDay(time.Time, string) ([]core.Candle, error) { return nil, nil }

func (a *memoryAdapter) LoadRecentClosed(date time.Time, symbol string, n int, timeframe string) ([]core.Candle, error) {
	candles := a.candles[symbol]
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

func warmupHistory(symbol string, n int) []core.Candle {
	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.Local)
	out := make([]core.Candle, n)
	for i := range out {
		price := 100 + float64(i%10)
		out[i] = core.Candle{
			Symbol: symbol, Timeframe: "1m",
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 1, Low: price - 1, Close: price + 0.5,
			Volume: 1000, Complete: true,
		}
	}
	return out
}

func newWarmupFixture(t *testing.T, history int) (*Warmup, *strategy.Manager, *strategy.RsiMomentum) {
	t.Helper()

	agg, err := aggregator.New([]string{"1m"}, logger.Nop())
	require.NoError(t, err)

	rsi := strategy.NewRsiMomentum("rsi-1", strategy.Params{})
	require.NoError(t, rsi.Initialize(strategy.Deps{Log: logger.Nop()}))

	manager := strategy.NewManager(logger.Nop())
	manager.Register(rsi)

	agg.OnCandleClosed("1m", func(candle core.Candle, timeframe string) {
		manager.OnCandleClosed(candle, timeframe)
	})

	adapter := &memoryAdapter{candles: map[string][]core.Candle{}}
	if history > 0 {
		adapter.candles["Z"] = warmupHistory("Z", history)
	}

	return NewWarmup(adapter, agg, manager, logger.Nop()), manager, rsi
}

func TestWarmup_PopulatesIndicatorsWithoutSignals(t *testing.T) {
	w, manager, rsi := newWarmupFixture(t, 200)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	require.NoError(t, w.Run(context.Background(), date, []string{"Z"}))

	require.True(t, manager.AllWarmedUp())
	// The requirement is 24 candles with default parameters; the adapter
	// caps at that count and all of them land in the indicator history.
	require.Equal(t, 24, rsi.WarmupCandlesRequired())
}

func TestWarmup_ZeroCandlesFlipsWarmedUpAnyway(t *testing.T) {
	w, manager, _ := newWarmupFixture(t, 0)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	require.NoError(t, w.Run(context.Background(), date, []string{"Z"}))
	require.True(t, manager.AllWarmedUp())
}

func TestWarmup_MinCandlesRaisesRequirement(t *testing.T) {
	w, _, _ := newWarmupFixture(t, 500)
	w.AutoCalculate = true
	w.MinCandles = 100

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	require.NoError(t, w.Run(context.Background(), date, []string{"Z"}))
}
