package simulator

import (
	"context"
	"time"

	"github.com/raykavin/intrabot/aggregator"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/strategy"
	"github.com/schollz/progressbar/v3"
)

// timeframeRequirements is implemented by strategies whose timeframes need
// different warmup depths.
type timeframeRequirements interface {
	WarmupCandlesForTimeframe(timeframe string) int
}

// Warmup bootstraps indicator state before the first live tick: it loads
// recent closed candles per (symbol, timeframe) and drives them through the
// aggregator's normal dispatch path so strategies see exactly what live
// trading would show them. Strategies emit nothing until the warmed-up gate
// flips at the end.
type Warmup struct {
	adapter    core.DataAdapter
	agg        *aggregator.Aggregator
	strategies *strategy.Manager
	log        core.Logger

	// MinCandles raises every per-timeframe requirement when AutoCalculate
	// is enabled.
	MinCandles    int
	AutoCalculate bool
	ShowProgress  bool
}

// NewWarmup builds the warmup phase runner.
func NewWarmup(adapter core.DataAdapter, agg *aggregator.Aggregator, strategies *strategy.Manager, log core.Logger) *Warmup {
	return &Warmup{
		adapter:    adapter,
		agg:        agg,
		strategies: strategies,
		log:        log,
	}
}

// Run loads history ending strictly before the simulated date's open and
// replays it through the aggregator chronologically. Insufficient history is
// tolerated; zero candles flips strategies straight into warmed-up mode and
// lets indicator readiness suppress signals naturally.
func (w *Warmup) Run(ctx context.Context, date time.Time, symbols []string) error {
	required := w.requirements()

	queue := core.NewPriorityQueue(nil)
	total := 0
	for _, symbol := range symbols {
		for timeframe, count := range required {
			candles, err := w.adapter.LoadRecentClosed(date, symbol, count, timeframe)
			if err != nil {
				w.log.WithError(err).Warnf("no warmup history for %s %s", symbol, timeframe)
				continue
			}
			for _, candle := range candles {
				queue.Push(candle)
				total++
			}
		}
	}

	if total == 0 {
		w.log.Warn("warmup found no candles, strategies start cold")
		w.strategies.SetAllWarmedUp(true)
		return nil
	}

	var bar *progressbar.ProgressBar
	if w.ShowProgress {
		bar = progressbar.Default(int64(total), "warmup")
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		candle := queue.Pop().(core.Candle)
		w.agg.AddHistoricalCandle(candle)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	w.strategies.SetAllWarmedUp(true)
	w.log.Infof("warmup complete, %d candles across %d symbols", total, len(symbols))
	return nil
}

// requirements computes the candle count needed per timeframe, the maximum
// over all strategies that declare it.
func (w *Warmup) requirements() map[string]int {
	required := make(map[string]int)
	for _, s := range w.strategies.Strategies() {
		perTimeframe, _ := s.(timeframeRequirements)
		for _, timeframe := range s.RequiredTimeframes() {
			count := s.WarmupCandlesRequired()
			if perTimeframe != nil {
				count = perTimeframe.WarmupCandlesForTimeframe(timeframe)
			}
			if count > required[timeframe] {
				required[timeframe] = count
			}
		}
	}

	if w.AutoCalculate {
		for timeframe, count := range required {
			if w.MinCandles > count {
				required[timeframe] = w.MinCandles
			}
		}
	}
	return required
}
