package indicator

import (
	"testing"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/stretchr/testify/require"
)

func feedCloses(s *Set, closes ...float64) {
	base := time.Date(2024, 3, 4, 9, 15, 0, 0, time.Local)
	for i, c := range closes {
		s.AddClosed(core.Candle{
			Symbol:    s.Symbol(),
			Timeframe: "1m",
			Time:      base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
			Complete:  true,
		})
	}
}

func TestSet_ReadinessThresholds(t *testing.T) {
	s := NewSet("RELIANCE")
	feedCloses(s, 100, 101, 102, 103, 104)

	require.True(t, s.IsReady(KindSMA, 5))
	require.False(t, s.IsReady(KindSMA, 6))

	// Wilder RSI needs one extra bar for the first delta.
	require.True(t, s.IsReady(KindRSI, 4))
	require.False(t, s.IsReady(KindRSI, 5))

	_, ok := s.RSI(5)
	require.False(t, ok)
	_, ok = s.RSI(4)
	require.True(t, ok)
}

func TestSet_SMA(t *testing.T) {
	s := NewSet("TCS")
	feedCloses(s, 10, 20, 30, 40, 50)

	v, ok := s.SMA(5)
	require.True(t, ok)
	require.InDelta(t, 30.0, v, 1e-9)

	v, ok = s.SMA(2)
	require.True(t, ok)
	require.InDelta(t, 45.0, v, 1e-9)
}

func TestSet_RSIBounds(t *testing.T) {
	s := NewSet("INFY")
	// Strictly rising closes push RSI to 100.
	feedCloses(s, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114)

	v, ok := s.RSI(14)
	require.True(t, ok)
	require.InDelta(t, 100.0, v, 1e-9)
}

func TestSet_CacheInvalidatesOnClose(t *testing.T) {
	s := NewSet("SBIN")
	feedCloses(s, 10, 20, 30)

	first, ok := s.SMA(3)
	require.True(t, ok)
	require.InDelta(t, 20.0, first, 1e-9)

	feedCloses(s, 60)
	second, ok := s.SMA(3)
	require.True(t, ok)
	require.InDelta(t, (20.0+30.0+60.0)/3.0, second, 1e-9)
}

func TestSet_FormingOverlayDoesNotMutateHistory(t *testing.T) {
	s := NewSet("HDFCBANK")
	feedCloses(s, 10, 20, 30)

	s.SetForming(core.Candle{Symbol: "HDFCBANK", Close: 100})

	overlay, ok := s.SMAWithForming(3)
	require.True(t, ok)
	require.InDelta(t, (20.0+30.0+100.0)/3.0, overlay, 1e-9)

	plain, ok := s.SMA(3)
	require.True(t, ok)
	require.InDelta(t, 20.0, plain, 1e-9)
	require.Equal(t, 3, s.Len())
}

func TestSet_CapacityTrimsOldest(t *testing.T) {
	s := NewSet("ITC")
	s.capacity = 5
	feedCloses(s, 1, 2, 3, 4, 5, 6, 7)

	require.Equal(t, 5, s.Len())
	v, ok := s.SMA(5)
	require.True(t, ok)
	require.InDelta(t, 5.0, v, 1e-9)
}

func TestSet_ClosesServesCrossQueries(t *testing.T) {
	s := NewSet("RELIANCE")
	feedCloses(s, 10, 20, 30)

	// The close history crossed above a reference sitting at 25 on the last
	// bar: previous close 20 was at or under, latest 30 is over.
	ref := core.Series[float64]{0, 25, 25}
	require.True(t, s.Closes().Crossover(ref))
	require.False(t, s.Closes().Crossunder(ref))
	require.Equal(t, 30.0, s.Closes().Last(0))
}

func TestSuperTrendSeries_FlipOnBandCross(t *testing.T) {
	// A strong down leg followed by a strong up leg must produce exactly one
	// bearish-to-bullish flip once the close crosses the upper band.
	var high, low, close []float64
	price := 200.0
	for i := 0; i < 15; i++ {
		price -= 2
		high = append(high, price+1)
		low = append(low, price-1)
		close = append(close, price)
	}
	for i := 0; i < 15; i++ {
		price += 4
		high = append(high, price+1)
		low = append(low, price-1)
		close = append(close, price)
	}

	series := SuperTrendSeries(high, low, close, 10, 3)
	require.Len(t, series, len(close))

	last := series[len(series)-1]
	require.True(t, last.Bullish)

	flips := 0
	for i := 12; i < len(series); i++ {
		if series[i].Bullish != series[i].PrevBullish {
			flips++
		}
	}
	require.Equal(t, 1, flips)
}

func TestSuperTrendSeries_UpperBandRatchetsDownWhileBearish(t *testing.T) {
	var high, low, close []float64
	price := 100.0
	for i := 0; i < 25; i++ {
		price -= 1
		high = append(high, price+0.5)
		low = append(low, price-0.5)
		close = append(close, price)
	}

	series := SuperTrendSeries(high, low, close, 10, 3)
	for i := 13; i < len(series); i++ {
		require.False(t, series[i].Bullish)
		require.LessOrEqual(t, series[i].UpperBand, series[i-1].UpperBand+1e-9)
	}
}
