// Package trailing implements the per-position trailing stop state machine.
// The manager subscribes to fill events to create and remove state, consumes
// ticks to ratchet and evaluate stops, and emits synthetic exit signals
// (SELL for longs, BUY covers for shorts) that flow through the regular risk
// and order path.
package trailing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/indicator"
)

// Policy selects the stop update rule for a position.
type Policy string

const (
	PolicyFixedPct  Policy = "fixed_pct"
	PolicyATR       Policy = "atr"
	PolicyMA        Policy = "ma"
	PolicyTimeDecay Policy = "time_decay"
)

// Config parameterizes one policy instance.
type Config struct {
	Policy Policy `mapstructure:"policy"`

	// fixed_pct and time_decay.
	Pct float64 `mapstructure:"pct"`

	// atr.
	ATRPeriod  int     `mapstructure:"atr_period"`
	Multiplier float64 `mapstructure:"multiplier"`

	// ma.
	MAPeriod int     `mapstructure:"ma_period"`
	Buffer   float64 `mapstructure:"buffer"`

	// time_decay: effective pct interpolates from Pct down to FinalPct over
	// DecayMinutes.
	FinalPct     float64 `mapstructure:"final_pct"`
	DecayMinutes int     `mapstructure:"decay_minutes"`
}

// stopState is the per-trade machine. The stop is monotone toward the
// position: for a long it only moves up, for a short it only moves down.
type stopState struct {
	cfg        Config
	tradeID    string
	strategyID string
	symbol     string
	entry      float64
	quantity   float64
	short      bool
	openedAt   time.Time
	stop       float64
	extreme    float64
	breakeven  bool
}

// Manager owns trade_id keyed stop state. It keeps its own indicator sets per
// symbol for the ATR and MA policies, fed from closed candles.
type Manager struct {
	defaults    Config
	perStrategy map[string]Config
	states      map[string]*stopState
	sets        map[string]*indicator.Set
	log         core.Logger
}

// NewManager builds a trailing stop manager. Strategies opt in through
// ConfigureStrategy; positions of strategies without a bound policy are never
// armed. defaults fills the gaps of sparse per-strategy configurations and
// backstops the ATR and MA policies before their indicators are ready.
func NewManager(defaults Config, log core.Logger) *Manager {
	if defaults.Policy == "" {
		defaults.Policy = PolicyFixedPct
	}
	if defaults.Pct == 0 {
		defaults.Pct = 0.01
	}
	return &Manager{
		defaults:    defaults,
		perStrategy: make(map[string]Config),
		states:      make(map[string]*stopState),
		sets:        make(map[string]*indicator.Set),
		log:         log,
	}
}

// ConfigureStrategy binds a policy configuration to one strategy ID, filling
// unset fields from the defaults. Only configured strategies get their
// positions trailed.
func (m *Manager) ConfigureStrategy(strategyID string, cfg Config) {
	if cfg.Policy == "" {
		cfg.Policy = m.defaults.Policy
	}
	if cfg.Pct == 0 {
		cfg.Pct = m.defaults.Pct
	}
	m.perStrategy[strategyID] = cfg
}

// OnCandleClosed feeds the manager's own indicator history for the ATR and MA
// policies.
func (m *Manager) OnCandleClosed(candle core.Candle, timeframe string) {
	set, ok := m.sets[candle.Symbol]
	if !ok {
		set = indicator.NewSet(candle.Symbol)
		m.sets[candle.Symbol] = set
	}
	set.AddClosed(candle)
}

// OnPositionOpened initializes stop state for a new position. Positions of
// strategies that never configured a policy are left alone, so their own
// exit logic (hard stops included) keeps full control of the trade.
func (m *Manager) OnPositionOpened(position core.Position) {
	cfg, ok := m.perStrategy[position.StrategyID]
	if !ok {
		return
	}

	state := &stopState{
		cfg:        cfg,
		tradeID:    position.TradeID,
		strategyID: position.StrategyID,
		symbol:     position.Symbol,
		entry:      position.EntryPrice,
		quantity:   math.Abs(position.Quantity),
		short:      !position.IsLong(),
		openedAt:   position.EntryTime,
		extreme:    position.EntryPrice,
	}
	state.stop = m.initialStop(state)
	m.states[position.TradeID] = state

	m.log.WithFields(map[string]any{
		"trade_id": position.TradeID,
		"policy":   string(cfg.Policy),
		"stop":     fmt.Sprintf("%.2f", state.stop),
	}).Debug("trailing stop armed")
}

// OnPositionReduced keeps the tracked quantity in sync after partial exits.
func (m *Manager) OnPositionReduced(tradeID string, remaining float64) {
	if state, ok := m.states[tradeID]; ok {
		state.quantity = remaining
	}
}

// OnPositionClosed purges the state for a trade.
func (m *Manager) OnPositionClosed(tradeID string) {
	delete(m.states, tradeID)
}

// SetBreakeven clamps the stop to the entry price for the remainder of the
// trade: a floor for longs, a ceiling for shorts.
func (m *Manager) SetBreakeven(tradeID string) {
	state, ok := m.states[tradeID]
	if !ok {
		return
	}
	state.breakeven = true
	if state.short {
		if state.stop > state.entry {
			state.stop = state.entry
		}
		return
	}
	if state.stop < state.entry {
		state.stop = state.entry
	}
}

// Stop returns the current stop for a trade, if tracked.
func (m *Manager) Stop(tradeID string) (float64, bool) {
	state, ok := m.states[tradeID]
	if !ok {
		return 0, false
	}
	return state.stop, true
}

// OnTick ratchets every stop touched by the tick's symbol and returns
// synthetic exit signals for breached stops. The stop is monotone: it never
// moves against the position.
func (m *Manager) OnTick(tick core.Tick) []core.Signal {
	// Evaluate in trade ID order so replays are deterministic.
	ids := make([]string, 0, len(m.states))
	for id, state := range m.states {
		if state.symbol == tick.Symbol {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var signals []core.Signal
	for _, id := range ids {
		state := m.states[id]

		if state.short {
			if tick.Price < state.extreme {
				state.extreme = tick.Price
			}
		} else if tick.Price > state.extreme {
			state.extreme = tick.Price
		}
		m.ratchet(state, tick.Time)

		if breached(state, tick.Price) {
			side := core.SideTypeSell
			var posSide core.PositionSide
			if state.short {
				side = core.SideTypeBuy
				posSide = core.PositionShort
			}
			signals = append(signals, core.Signal{
				StrategyID:   state.strategyID,
				Side:         side,
				PositionSide: posSide,
				Symbol:       state.symbol,
				Price:        tick.Price,
				Quantity:     state.quantity,
				Time:         tick.Time,
				Reason:       "trailing_sl",
				Origin:       core.OriginTrailingSL,
			})
		}
	}
	return signals
}

func breached(state *stopState, price float64) bool {
	if state.short {
		return price >= state.stop
	}
	return price <= state.stop
}

func (m *Manager) initialStop(state *stopState) float64 {
	cfg := state.cfg
	dir := 1.0
	if state.short {
		dir = -1.0
	}
	switch cfg.Policy {
	case PolicyATR:
		if atr, ok := m.atr(state.symbol, cfg.ATRPeriod); ok {
			return state.entry - dir*cfg.Multiplier*atr
		}
		return state.entry * (1 - dir*m.defaults.Pct)
	case PolicyMA:
		if ma, ok := m.ma(state.symbol, cfg.MAPeriod); ok {
			return ma * (1 - dir*cfg.Buffer)
		}
		return state.entry * (1 - dir*m.defaults.Pct)
	default:
		return state.entry * (1 - dir*cfg.Pct)
	}
}

// ratchet applies the policy update rule, keeping the stop monotone toward
// the position and honoring the breakeven clamp. Long stops never decrease;
// short stops never increase.
func (m *Manager) ratchet(state *stopState, now time.Time) {
	cfg := state.cfg
	candidate := state.stop
	dir := 1.0
	if state.short {
		dir = -1.0
	}

	switch cfg.Policy {
	case PolicyFixedPct:
		// Never moves after initialization.
	case PolicyATR:
		if atr, ok := m.atr(state.symbol, cfg.ATRPeriod); ok {
			candidate = state.extreme - dir*cfg.Multiplier*atr
		}
	case PolicyMA:
		if ma, ok := m.ma(state.symbol, cfg.MAPeriod); ok {
			candidate = ma * (1 - dir*cfg.Buffer)
		}
	case PolicyTimeDecay:
		candidate = state.entry * (1 - dir*m.decayedPct(state, now))
	}

	if state.breakeven && dir*(state.entry-candidate) > 0 {
		candidate = state.entry
	}
	if dir*(candidate-state.stop) > 0 {
		state.stop = candidate
	}
}

// decayedPct interpolates the effective stop distance from Pct down to
// FinalPct over DecayMinutes.
func (m *Manager) decayedPct(state *stopState, now time.Time) float64 {
	cfg := state.cfg
	if cfg.DecayMinutes <= 0 || cfg.FinalPct >= cfg.Pct {
		return cfg.Pct
	}
	elapsed := now.Sub(state.openedAt).Minutes()
	if elapsed <= 0 {
		return cfg.Pct
	}
	total := float64(cfg.DecayMinutes)
	if elapsed >= total {
		return cfg.FinalPct
	}
	return cfg.Pct - (cfg.Pct-cfg.FinalPct)*(elapsed/total)
}

func (m *Manager) atr(symbol string, period int) (float64, bool) {
	set, ok := m.sets[symbol]
	if !ok {
		return 0, false
	}
	return set.ATR(period)
}

func (m *Manager) ma(symbol string, period int) (float64, bool) {
	set, ok := m.sets[symbol]
	if !ok {
		return 0, false
	}
	return set.SMA(period)
}
