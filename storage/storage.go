// Package storage provides the observability sinks behind the
// core.DataManager contract: an embedded journal (BuntDB), a SQL backend
// (GORM) and a live-state cache (Redis). All of them sit off the hot path;
// the Safe wrapper guarantees that a failing sink can never fail the
// pipeline.
package storage

import (
	"context"
	"time"

	"github.com/raykavin/intrabot/core"
)

// Safe wraps a DataManager so that every call is fire-and-forget: failures
// are logged at warn and swallowed. The pipeline never consults the sink for
// correctness, so a broken sink degrades observability only.
type Safe struct {
	inner core.DataManager
	log   core.Logger
}

// NewSafe wraps a data manager. A nil inner manager degrades to a no-op.
func NewSafe(inner core.DataManager, log core.Logger) *Safe {
	if inner == nil {
		inner = Nop{}
	}
	return &Safe{inner: inner, log: log}
}

func (s *Safe) guard(op string, err error) error {
	if err != nil {
		s.log.WithError(err).Warnf("data manager %s failed", op)
	}
	return nil
}

func (s *Safe) LogSignal(ctx context.Context, signal core.Signal, approved bool, reason string) error {
	return s.guard("log_signal", s.inner.LogSignal(ctx, signal, approved, reason))
}

func (s *Safe) LogTradeOpen(ctx context.Context, position core.Position) error {
	return s.guard("log_trade_open", s.inner.LogTradeOpen(ctx, position))
}

func (s *Safe) LogTradeClose(ctx context.Context, position core.Position, pnl float64) error {
	return s.guard("log_trade_close", s.inner.LogTradeClose(ctx, position, pnl))
}

func (s *Safe) LogPositionUpdate(ctx context.Context, position core.Position) error {
	return s.guard("log_position_update", s.inner.LogPositionUpdate(ctx, position))
}

func (s *Safe) LogIndicatorValues(ctx context.Context, symbol string, ts time.Time, values map[string]float64) error {
	return s.guard("log_indicator_values", s.inner.LogIndicatorValues(ctx, symbol, ts, values))
}

func (s *Safe) LogCandle(ctx context.Context, candle core.Candle) error {
	return s.guard("log_candle", s.inner.LogCandle(ctx, candle))
}

func (s *Safe) UpdateTrailingSL(ctx context.Context, tradeID string, stop float64) error {
	return s.guard("update_trailing_sl", s.inner.UpdateTrailingSL(ctx, tradeID, stop))
}

func (s *Safe) DailySummary(ctx context.Context, date time.Time) (core.DailySummary, error) {
	summary, err := s.inner.DailySummary(ctx, date)
	if err != nil {
		s.log.WithError(err).Warn("data manager daily_summary failed")
		return core.DailySummary{Date: date}, nil
	}
	return summary, nil
}

func (s *Safe) Close() error {
	return s.guard("close", s.inner.Close())
}

// dayKey formats a date for per-day storage keys.
func dayKey(date time.Time) string { return date.Format("2006-01-02") }
