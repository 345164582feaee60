package storage

import (
	"context"
	"time"

	"github.com/raykavin/intrabot/core"
)

// Nop discards everything. It is the default sink when no backend is
// configured.
type Nop struct{}

func (Nop) LogSignal(context.Context, core.Signal, bool, string) error { return nil }

func (Nop) LogTradeOpen(context.Context, core.Position) error { return nil }

func (Nop) LogTradeClose(context.Context, core.Position, float64) error { return nil }

func (Nop) LogPositionUpdate(context.Context, core.Position) error { return nil }

func (Nop) LogIndicatorValues(context.Context, string, time.Time, map[string]float64) error {
	return nil
}

func (Nop) LogCandle(context.Context, core.Candle) error { return nil }

func (Nop) UpdateTrailingSL(context.Context, string, float64) error { return nil }

func (Nop) DailySummary(_ context.Context, date time.Time) (core.DailySummary, error) {
	return core.DailySummary{Date: date}, nil
}

func (Nop) Close() error { return nil }
