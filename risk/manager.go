// Package risk validates every signal against position, capital and
// daily-loss limits before it can reach the broker.
package risk

import (
	"time"

	"github.com/raykavin/intrabot/core"
)

// Rejection reasons, stable strings recorded with every rejected signal.
const (
	ReasonTradingBlocked      = "trading_blocked"
	ReasonPerStrategyCap      = "per_strategy_cap"
	ReasonGlobalCap           = "global_cap"
	ReasonNotionalCap         = "notional_cap"
	ReasonInsufficientCapital = "insufficient_capital"
	ReasonDailyLossCap        = "daily_loss_cap"
	ReasonDuplicatePosition   = "duplicate_position"
	ReasonNoOpenPosition      = "no_open_position"
)

// Limits holds the configured risk caps.
type Limits struct {
	PerStrategyCap int     `mapstructure:"per_strategy_cap"`
	GlobalCap      int     `mapstructure:"global_cap"`
	NotionalCap    float64 `mapstructure:"notional_cap"`
	DailyLossCap   float64 `mapstructure:"daily_loss_cap"`
}

// DefaultLimits mirror the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		PerStrategyCap: 3,
		GlobalCap:      5,
		NotionalCap:    1_000_000,
		DailyLossCap:   25_000,
	}
}

// PositionView is the slice of the position manager the risk checks need.
type PositionView interface {
	HasOpen(strategyID, symbol string) bool
	OpenCount() int
	OpenCountByStrategy(strategyID string) int
}

// State is the process-wide mutable risk bookkeeping. Writes happen
// exclusively on the pipeline goroutine.
type State struct {
	Capital          float64
	DailyRealizedPnL float64
	TradesToday      int
	TradingBlocked   bool
}

// Manager approves or rejects signals. Every decision returns a deterministic
// reason: predicates run in a fixed order and the first failure wins.
type Manager struct {
	limits    Limits
	state     State
	positions PositionView
	log       core.Logger
}

// NewManager builds a risk manager over the given limits and starting capital.
func NewManager(limits Limits, capital float64, positions PositionView, log core.Logger) *Manager {
	return &Manager{
		limits:    limits,
		state:     State{Capital: capital},
		positions: positions,
		log:       log,
	}
}

// State returns a copy of the current risk state.
func (m *Manager) State() State { return m.state }

// Limits returns the configured caps.
func (m *Manager) Limits() Limits { return m.limits }

// Validate runs the ordered predicate chain for a signal. An exit (a long
// SELL or a short cover) is approved whenever a matching open position
// exists; it reduces risk rather than adding it. Entries on either side walk
// the full chain.
func (m *Manager) Validate(signal core.Signal) (bool, string) {
	if !signal.IsEntry() {
		if !m.positions.HasOpen(signal.StrategyID, signal.Symbol) {
			return false, ReasonNoOpenPosition
		}
		return true, ""
	}

	switch {
	case m.state.TradingBlocked:
		return false, ReasonTradingBlocked
	case m.positions.OpenCountByStrategy(signal.StrategyID) >= m.limits.PerStrategyCap:
		return false, ReasonPerStrategyCap
	case m.positions.OpenCount() >= m.limits.GlobalCap:
		return false, ReasonGlobalCap
	case signal.Notional() > m.limits.NotionalCap:
		return false, ReasonNotionalCap
	case signal.Notional() > m.availableCapital():
		return false, ReasonInsufficientCapital
	case m.state.DailyRealizedPnL <= -m.limits.DailyLossCap:
		return false, ReasonDailyLossCap
	case m.positions.HasOpen(signal.StrategyID, signal.Symbol):
		return false, ReasonDuplicatePosition
	}

	return true, ""
}

func (m *Manager) availableCapital() float64 {
	return m.state.Capital + m.state.DailyRealizedPnL
}

// AvailableCapital exposes the deployable capital for position sizing.
func (m *Manager) AvailableCapital() float64 { return m.availableCapital() }

// OnTradeOpened records a new open position.
func (m *Manager) OnTradeOpened() {
	m.state.TradesToday++
}

// OnRealizedPnL folds a closed trade's result into the daily accumulator.
func (m *Manager) OnRealizedPnL(pnl float64) {
	m.state.DailyRealizedPnL += pnl
}

// BlockTrading stops all further entries. Idempotent; fired by the time
// controller at the warning threshold.
func (m *Manager) BlockTrading() {
	if !m.state.TradingBlocked {
		m.state.TradingBlocked = true
		m.log.Warn("new entries blocked")
	}
}

// ResetDay reinitializes the daily state at the session boundary.
func (m *Manager) ResetDay(date time.Time) {
	m.state.DailyRealizedPnL = 0
	m.state.TradesToday = 0
	m.state.TradingBlocked = false
	m.log.WithField("date", date.Format("2006-01-02")).Debug("risk state reset")
}
