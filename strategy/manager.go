package strategy

import (
	"time"

	"github.com/raykavin/intrabot/core"
)

// Manager fans ticks and candles out to every active strategy in registration
// order and collects the emitted signals. A strategy that panics inside a
// callback is marked faulted and excluded from further dispatch; its open
// positions stay under trailing stop and time controller supervision.
type Manager struct {
	strategies []Strategy
	faulted    map[string]bool
	log        core.Logger
}

// NewManager builds an empty manager.
func NewManager(log core.Logger) *Manager {
	return &Manager{
		faulted: make(map[string]bool),
		log:     log,
	}
}

// Register appends a strategy; dispatch follows registration order.
func (m *Manager) Register(s Strategy) {
	m.strategies = append(m.strategies, s)
}

// Strategies returns the registered strategies in order.
func (m *Manager) Strategies() []Strategy { return m.strategies }

// Faulted returns the IDs of strategies excluded after a panic.
func (m *Manager) Faulted() []string {
	var out []string
	for _, s := range m.strategies {
		if m.faulted[s.ID()] {
			out = append(out, s.ID())
		}
	}
	return out
}

// SetAllWarmedUp flips the warmup gate on every strategy.
func (m *Manager) SetAllWarmedUp(warmed bool) {
	for _, s := range m.strategies {
		s.SetWarmedUp(warmed)
	}
}

// AllWarmedUp reports whether every strategy finished warmup.
func (m *Manager) AllWarmedUp() bool {
	for _, s := range m.strategies {
		if !s.IsWarmedUp() {
			return false
		}
	}
	return true
}

// OnCandleClosed dispatches a closed candle. During warmup the candle goes to
// OnWarmupCandle and no signals are possible.
func (m *Manager) OnCandleClosed(candle core.Candle, timeframe string) []core.Signal {
	var signals []core.Signal
	for _, s := range m.strategies {
		if m.faulted[s.ID()] {
			continue
		}
		if !s.IsWarmedUp() {
			m.guard(s, func() { s.OnWarmupCandle(candle, timeframe) })
			continue
		}
		m.guard(s, func() {
			signals = append(signals, s.OnCandleClosed(candle, timeframe)...)
		})
	}
	return signals
}

// OnTick dispatches a tick to every warmed strategy.
func (m *Manager) OnTick(tick core.Tick) []core.Signal {
	var signals []core.Signal
	for _, s := range m.strategies {
		if m.faulted[s.ID()] || !s.IsWarmedUp() {
			continue
		}
		m.guard(s, func() {
			signals = append(signals, s.OnTick(tick)...)
		})
	}
	return signals
}

// OnPositionOpened routes a fill to the owning strategy.
func (m *Manager) OnPositionOpened(strategyID, tradeID string, fill core.Fill) {
	if s := m.byID(strategyID); s != nil {
		m.guard(s, func() { s.OnPositionOpened(tradeID, fill) })
	}
}

// OnPositionClosed routes a close fill and its realized P&L to the owning
// strategy.
func (m *Manager) OnPositionClosed(strategyID, tradeID string, fill core.Fill, pnl float64) {
	if s := m.byID(strategyID); s != nil {
		m.guard(s, func() { s.OnPositionClosed(tradeID, fill, pnl) })
	}
}

// SquareOffAll collects forced exits from every strategy, faulted ones
// included: their positions still need to be closed.
func (m *Manager) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var signals []core.Signal
	for _, s := range m.strategies {
		strat := s
		m.guard(strat, func() {
			signals = append(signals, strat.SquareOffAll(now, prices)...)
		})
	}
	return signals
}

func (m *Manager) byID(id string) Strategy {
	for _, s := range m.strategies {
		if s.ID() == id && !m.faulted[id] {
			return s
		}
	}
	return nil
}

func (m *Manager) guard(s Strategy, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.faulted[s.ID()] = true
			m.log.WithField("strategy", s.ID()).Errorf("strategy faulted and excluded: %v", r)
		}
	}()
	fn()
}
