// Package core defines the shared data model and the contracts between the
// simulator pipeline and its external collaborators: historical data sources,
// brokers, observability sinks and notifiers.
package core

import (
	"context"
	"time"

	"github.com/raykavin/intrabot/pkg/logger"
)

// Logger is the logging contract shared by every component.
type Logger = logger.Logger

// DataAdapter supplies historical OHLC candles to the simulator and the
// warmup phase. Implementations read CSV files, databases, vendor APIs, etc.
type DataAdapter interface {
	// ListSymbols returns every symbol the adapter can serve.
	ListSymbols() []string

	// AvailableDates returns the trading dates with data for a symbol.
	AvailableDates(symbol string) ([]time.Time, error)

	// LoadDay returns the 1-minute candles of one trading day in
	// chronological order.
	LoadDay(date time.Time, symbol string) ([]Candle, error)

	// LoadRecentClosed returns the most recent n closed candles strictly
	// before date at the requested timeframe. It may return fewer than n
	// when history is short.
	LoadRecentClosed(date time.Time, symbol string, n int, timeframe string) ([]Candle, error)
}

// Broker executes orders. The simulated broker fills synchronously; adapters
// for real brokers must translate asynchronous fills into the same terminal
// results before returning.
type Broker interface {
	Connect(ctx context.Context) error
	Submit(ctx context.Context, req OrderRequest) (OrderResult, error)
	Account(ctx context.Context) (Account, error)
}

// Account holds broker-side capital information.
type Account struct {
	Capital     float64 `json:"capital"`
	BuyingPower float64 `json:"buying_power"`
}

// DataManager is the observability sink. It sits off the hot path: every call
// is fire-and-forget, failures are logged and swallowed, and nothing in the
// pipeline consults it for correctness decisions.
type DataManager interface {
	LogSignal(ctx context.Context, signal Signal, approved bool, reason string) error
	LogTradeOpen(ctx context.Context, position Position) error
	LogTradeClose(ctx context.Context, position Position, pnl float64) error
	LogPositionUpdate(ctx context.Context, position Position) error
	LogIndicatorValues(ctx context.Context, symbol string, ts time.Time, values map[string]float64) error
	LogCandle(ctx context.Context, candle Candle) error
	UpdateTrailingSL(ctx context.Context, tradeID string, stop float64) error
	DailySummary(ctx context.Context, date time.Time) (DailySummary, error)
	Close() error
}

// DailySummary aggregates one day of recorded activity.
type DailySummary struct {
	Date            time.Time `json:"date"`
	SignalsEmitted  int       `json:"signals_emitted"`
	SignalsApproved int       `json:"signals_approved"`
	SignalsRejected int       `json:"signals_rejected"`
	TradesOpened    int       `json:"trades_opened"`
	TradesClosed    int       `json:"trades_closed"`
	RealizedPnL     float64   `json:"realized_pnl"`
}

// Notifier receives human-facing events. Like the DataManager it must never
// fail the pipeline.
type Notifier interface {
	Notify(message string)
	OnOrder(order Order)
	OnError(err error)
}

// NotifierWithStart is a notifier with its own polling loop.
type NotifierWithStart interface {
	Notifier
	Start()
}
