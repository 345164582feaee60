package order

import (
	"testing"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/logger"
	"github.com/stretchr/testify/require"
)

func buyFill(tradeID string, price, qty float64) core.Fill {
	return core.Fill{
		OrderID: "o1", TradeID: tradeID, StrategyID: "s1", Symbol: "A",
		Side: core.SideTypeBuy, Price: price, Quantity: qty,
		Time: time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local),
	}
}

func sellFill(tradeID string, price, qty float64) core.Fill {
	f := buyFill(tradeID, price, qty)
	f.Side = core.SideTypeSell
	return f
}

func TestOnEntryFill_OpensLongPosition(t *testing.T) {
	pm := NewPositionManager(logger.Nop())

	p := pm.OnEntryFill(buyFill("t1", 100, 10), core.Signal{Reason: "entry"})
	require.Equal(t, "t1", p.TradeID)
	require.Equal(t, 10.0, p.Quantity)
	require.True(t, pm.HasOpen("s1", "A"))
	require.Equal(t, 1, pm.OpenCount())
	require.Equal(t, 1, pm.OpenCountByStrategy("s1"))
	require.Equal(t, 1, pm.OpenedCount())
}

func TestOnEntryFill_SellOpensShortPosition(t *testing.T) {
	pm := NewPositionManager(logger.Nop())

	p := pm.OnEntryFill(sellFill("t1", 100, 10), core.Signal{Reason: "short_entry"})
	require.Equal(t, -10.0, p.Quantity)
	require.False(t, p.IsLong())
	require.True(t, pm.HasOpen("s1", "A"))
}

func TestOnExitFill_FullCloseRealizesPnL(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pm.OnEntryFill(buyFill("t1", 100, 10), core.Signal{})

	pnl, position, closed := pm.OnExitFill(sellFill("t1", 105, 10))
	require.True(t, closed)
	require.InDelta(t, 50.0, pnl, 1e-9)
	require.InDelta(t, 50.0, position.RealizedPnL, 1e-9)
	require.False(t, pm.HasOpen("s1", "A"))
	require.Equal(t, 1, pm.ClosedCount())
}

func TestOnExitFill_CoverRealizesShortPnL(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pm.OnEntryFill(sellFill("t1", 100, 10), core.Signal{})

	// Covering below entry is a gain, covering above is a loss.
	pnl, position, closed := pm.OnExitFill(buyFill("t1", 92, 10))
	require.True(t, closed)
	require.InDelta(t, 80.0, pnl, 1e-9)
	require.InDelta(t, 80.0, position.RealizedPnL, 1e-9)
	require.False(t, pm.HasOpen("s1", "A"))
}

func TestOnExitFill_PartialShortCoverKeepsDirection(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pm.OnEntryFill(sellFill("t1", 100, 10), core.Signal{})

	pnl, position, closed := pm.OnExitFill(buyFill("t1", 96, 4))
	require.False(t, closed)
	require.InDelta(t, 16.0, pnl, 1e-9)
	require.InDelta(t, -6.0, position.Quantity, 1e-9)

	pnl, _, closed = pm.OnExitFill(buyFill("t1", 104, 6))
	require.True(t, closed)
	require.InDelta(t, -24.0, pnl, 1e-9)
}

func TestOnExitFill_PartialReducesFIFO(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pm.OnEntryFill(buyFill("t1", 100, 10), core.Signal{})
	pm.OnEntryFill(buyFill("t1", 110, 10), core.Signal{})

	// Selling 15 consumes the whole first lot and a third of the second.
	pnl, position, closed := pm.OnExitFill(sellFill("t1", 120, 15))
	require.False(t, closed)
	require.InDelta(t, (120-100)*10+(120-110)*5, pnl, 1e-9)
	require.InDelta(t, 5.0, position.Quantity, 1e-9)

	pnl, _, closed = pm.OnExitFill(sellFill("t1", 115, 5))
	require.True(t, closed)
	require.InDelta(t, (115-110)*5, pnl, 1e-9)
}

func TestMarkTick_UpdatesExtremesMonotonically(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pm.OnEntryFill(buyFill("t1", 100, 10), core.Signal{})

	for _, price := range []float64{105, 110, 103, 99} {
		pm.MarkTick(core.Tick{Symbol: "A", Price: price})
	}

	p, ok := pm.Get("s1", "A")
	require.True(t, ok)
	require.Equal(t, 110.0, p.HighestPrice)
	require.Equal(t, 99.0, p.LowestPrice)
	require.InDelta(t, (99.0-100.0)*10, p.UnrealizedPnL, 1e-9)

	price, ok := pm.LastPrice("A")
	require.True(t, ok)
	require.Equal(t, 99.0, price)
}

func TestOnExitFill_WithoutPositionIsIgnored(t *testing.T) {
	pm := NewPositionManager(logger.Nop())
	pnl, _, closed := pm.OnExitFill(sellFill("ghost", 100, 10))
	require.Zero(t, pnl)
	require.False(t, closed)
}

func TestTradeSummary_Stats(t *testing.T) {
	s := NewTradeSummary("s1")
	s.Record(100, 1000, 1) // +10%
	s.Record(50, 1000, 1)  // +5%
	s.Record(-50, 1000, 1) // -5%

	require.Equal(t, 3, s.Trades())
	require.InDelta(t, 100.0, s.Profit(), 1e-9)
	require.InDelta(t, 66.666, s.WinPercentage(), 0.01)
	require.InDelta(t, 1.5, s.Payoff(), 1e-9)
	require.InDelta(t, 3.0, s.ProfitFactor(), 1e-9)
	require.Contains(t, s.String(), "s1")
}
