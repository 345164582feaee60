package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"5m", 5 * time.Minute},
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseTimeframe(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "30s", "90s", "25h", "2d"} {
		_, err := ParseTimeframe(bad)
		require.ErrorIs(t, err, ErrInvalidTimeframe, bad)
	}
}

func TestAlignTime(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 17, 42, 120, time.UTC)

	require.Equal(t, time.Date(2024, 3, 4, 9, 17, 0, 0, time.UTC), AlignTime(ts, time.Minute))
	require.Equal(t, time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC), AlignTime(ts, 5*time.Minute))
	require.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), AlignTime(ts, time.Hour))

	// A boundary timestamp maps onto itself.
	boundary := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	require.Equal(t, boundary, AlignTime(boundary, 5*time.Minute))
}

func TestPriorityQueue_ChronologicalMerge(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

	q := NewPriorityQueue(nil)
	q.Push(Candle{Symbol: "TCS", Time: base.Add(2 * time.Minute)})
	q.Push(Candle{Symbol: "RELIANCE", Time: base})
	q.Push(Candle{Symbol: "TCS", Time: base})
	q.Push(Candle{Symbol: "RELIANCE", Time: base.Add(time.Minute)})

	require.Equal(t, 4, q.Len())
	require.Equal(t, base, q.Peek().(Candle).Time)

	var order []string
	for q.Len() > 0 {
		c := q.Pop().(Candle)
		order = append(order, c.Symbol+c.Time.Format("@15:04"))
	}
	require.Equal(t, []string{"RELIANCE@09:15", "TCS@09:15", "RELIANCE@09:16", "TCS@09:17"}, order)
	require.Nil(t, q.Pop())
	require.Nil(t, q.Peek())
}

func TestPriorityQueue_HeapifiesInitialData(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	items := []Item{
		Candle{Symbol: "A", Time: base.Add(3 * time.Minute)},
		Candle{Symbol: "A", Time: base.Add(time.Minute)},
		Candle{Symbol: "A", Time: base},
		Candle{Symbol: "A", Time: base.Add(2 * time.Minute)},
	}

	q := NewPriorityQueue(items)

	prev := q.Pop().(Candle)
	for q.Len() > 0 {
		next := q.Pop().(Candle)
		require.False(t, next.Time.Before(prev.Time))
		prev = next
	}
}

func TestPosition_MarkPrice(t *testing.T) {
	p := Position{
		TradeID: "t-1", Symbol: "RELIANCE",
		EntryPrice: 2500, Quantity: 10,
		HighestPrice: 2500, LowestPrice: 2500,
	}

	p.MarkPrice(2520)
	require.Equal(t, 2520.0, p.CurrentPrice)
	require.Equal(t, 2520.0, p.HighestPrice)
	require.Equal(t, 200.0, p.UnrealizedPnL)

	// The favorable extreme never retreats.
	p.MarkPrice(2480)
	require.Equal(t, 2520.0, p.HighestPrice)
	require.Equal(t, 2480.0, p.LowestPrice)
	require.Equal(t, -200.0, p.UnrealizedPnL)

	require.True(t, p.IsLong())
	require.Equal(t, 25000.0, p.Notional())
	require.InDelta(t, -0.008, p.PnLPercent(), 1e-9)
}

func TestPosition_ShortPnLPercent(t *testing.T) {
	p := Position{EntryPrice: 100, Quantity: -5, HighestPrice: 100, LowestPrice: 100}

	p.MarkPrice(90)
	require.Equal(t, 90.0, p.LowestPrice)
	require.Equal(t, 50.0, p.UnrealizedPnL)
	require.InDelta(t, 0.1, p.PnLPercent(), 1e-9)
	require.Equal(t, 500.0, p.Notional())
}

func TestCandle_Helpers(t *testing.T) {
	c := Candle{Open: 100, High: 104, Low: 98, Close: 102}
	require.Equal(t, 6.0, c.Range())
	require.True(t, c.Bullish())
	require.False(t, c.IsEmpty())
	require.True(t, Candle{}.IsEmpty())
}

func TestSeries_WindowsAndCrosses(t *testing.T) {
	s := Series[float64]{1, 2, 3, 4, 5}

	require.Equal(t, 5, s.Length())
	require.Equal(t, 5.0, s.Last(0))
	require.Equal(t, 3.0, s.Last(2))
	require.Equal(t, Series[float64]{4, 5}, s.LastValues(2))
	require.Equal(t, s, s.LastValues(10))

	fast := Series[float64]{1, 3}
	slow := Series[float64]{2, 2}
	require.True(t, fast.Crossover(slow))
	require.False(t, fast.Crossunder(slow))
	require.True(t, fast.Cross(slow))
	require.True(t, slow.Crossunder(fast))
}
