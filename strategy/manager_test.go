package strategy

import (
	"testing"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/logger"
	"github.com/stretchr/testify/require"
)

// scripted is a minimal strategy used to observe manager dispatch behavior.
type scripted struct {
	Base
	onTick  func(tick core.Tick) []core.Signal
	onClose func(candle core.Candle) []core.Signal
	warmups int
}

func newScripted(id string) *scripted {
	s := &scripted{Base: NewBase(id)}
	s.SetLog(logger.Nop())
	return s
}

func (s *scripted) Initialize(Deps) error          { return nil }
func (s *scripted) WarmupCandlesRequired() int     { return 1 }
func (s *scripted) RequiredTimeframes() []string   { return []string{"1m"} }
func (s *scripted) OnWarmupCandle(core.Candle, string) { s.warmups++ }

func (s *scripted) OnCandleClosed(candle core.Candle, _ string) []core.Signal {
	if s.onClose == nil {
		return nil
	}
	return s.onClose(candle)
}

func (s *scripted) OnTick(tick core.Tick) []core.Signal {
	if s.onTick == nil {
		return nil
	}
	return s.onTick(tick)
}

func (s *scripted) OnPositionOpened(string, core.Fill)          {}
func (s *scripted) OnPositionClosed(string, core.Fill, float64) {}

func (s *scripted) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var out []core.Signal
	for _, symbol := range s.OpenSymbols() {
		out = append(out, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return out
}

func TestManager_DispatchFollowsRegistrationOrder(t *testing.T) {
	m := NewManager(logger.Nop())

	var order []string
	for _, id := range []string{"c", "a", "b"} {
		s := newScripted(id)
		id := id
		s.onTick = func(core.Tick) []core.Signal {
			order = append(order, id)
			return nil
		}
		s.SetWarmedUp(true)
		m.Register(s)
	}

	m.OnTick(core.Tick{Symbol: "X", Price: 1})
	require.Equal(t, []string{"c", "a", "b"}, order)
}

func TestManager_RoutesWarmupCandlesUntilWarmed(t *testing.T) {
	m := NewManager(logger.Nop())
	s := newScripted("s1")
	s.onClose = func(core.Candle) []core.Signal {
		return []core.Signal{{StrategyID: "s1", Side: core.SideTypeBuy}}
	}
	m.Register(s)

	candle := core.Candle{Symbol: "X", Timeframe: "1m", Complete: true}

	// Before warmup: routed to OnWarmupCandle, never a signal.
	require.Empty(t, m.OnCandleClosed(candle, "1m"))
	require.Equal(t, 1, s.warmups)

	m.SetAllWarmedUp(true)
	require.Len(t, m.OnCandleClosed(candle, "1m"), 1)
	require.Equal(t, 1, s.warmups)
}

func TestManager_PanicIsolatesOnlyOffendingStrategy(t *testing.T) {
	m := NewManager(logger.Nop())

	bad := newScripted("bad")
	bad.onTick = func(core.Tick) []core.Signal { panic("boom") }
	bad.SetWarmedUp(true)

	good := newScripted("good")
	calls := 0
	good.onTick = func(core.Tick) []core.Signal {
		calls++
		return nil
	}
	good.SetWarmedUp(true)

	m.Register(bad)
	m.Register(good)

	m.OnTick(core.Tick{Symbol: "X"})
	m.OnTick(core.Tick{Symbol: "X"})

	require.Equal(t, 2, calls)
	require.Equal(t, []string{"bad"}, m.Faulted())
}

func TestManager_SquareOffIncludesFaultedStrategyPositions(t *testing.T) {
	m := NewManager(logger.Nop())

	bad := newScripted("bad")
	bad.onTick = func(core.Tick) []core.Signal { panic("boom") }
	bad.SetWarmedUp(true)
	now := time.Date(2024, 3, 4, 15, 15, 0, 0, time.Local)
	bad.TrackOpen("t1", core.Fill{TradeID: "t1", Symbol: "X", Price: 100, Quantity: 1, Time: now.Add(-time.Hour)})
	m.Register(bad)

	m.OnTick(core.Tick{Symbol: "X"})
	require.Equal(t, []string{"bad"}, m.Faulted())

	signals := m.SquareOffAll(now, map[string]float64{"X": 99})
	require.Len(t, signals, 1)
	require.Equal(t, core.SideTypeSell, signals[0].Side)
}
