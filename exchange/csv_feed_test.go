package exchange

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFeedFile writes n sequential 1-minute candles starting at start.
func writeFeedFile(t *testing.T, start time.Time, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.csv")

	content := "time,open,high,low,close,volume\n"
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).Unix()
		price := 100 + float64(i)
		content += fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f,%d\n", ts, price, price+1, price-1, price+0.5, 1000+i)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVFeed_LoadDay(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 15, 0, 0, time.Local)
	feed, err := NewCSVFeed(SymbolFeed{Symbol: "RELIANCE", File: writeFeedFile(t, start, 60)})
	require.NoError(t, err)

	require.Equal(t, []string{"RELIANCE"}, feed.ListSymbols())

	dates, err := feed.AvailableDates("RELIANCE")
	require.NoError(t, err)
	require.Len(t, dates, 1)

	candles, err := feed.LoadDay(start, "RELIANCE")
	require.NoError(t, err)
	require.Len(t, candles, 60)
	require.Equal(t, "1m", candles[0].Timeframe)
	require.True(t, candles[0].Complete)
	require.True(t, candles[0].Time.Equal(start))
}

func TestCSVFeed_LoadRecentClosedResamples(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	feed, err := NewCSVFeed(SymbolFeed{Symbol: "TCS", File: writeFeedFile(t, start, 30)})
	require.NoError(t, err)

	cutoff := start.Add(30 * time.Minute)
	candles, err := feed.LoadRecentClosed(cutoff, "TCS", 5, "5m")
	require.NoError(t, err)
	require.Len(t, candles, 5)

	// Each 5-minute bucket folds five 1-minute candles.
	first := candles[0]
	require.Equal(t, "5m", first.Timeframe)
	require.True(t, first.Time.Equal(start.Add(5*time.Minute)))
	require.InDelta(t, 105.0, first.Open, 1e-9)   // open of minute 5
	require.InDelta(t, 110.0, first.High, 1e-9)   // high of minute 9
	require.InDelta(t, 104.0, first.Low, 1e-9)    // low of minute 5
	require.InDelta(t, 109.5, first.Close, 1e-9)  // close of minute 9
	require.InDelta(t, 5035.0, first.Volume, 1e-9)
}

func TestCSVFeed_LoadRecentClosedStrictlyBefore(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	feed, err := NewCSVFeed(SymbolFeed{Symbol: "TCS", File: writeFeedFile(t, start, 30)})
	require.NoError(t, err)

	// A cutoff mid-bucket must not return the partially covered bucket.
	cutoff := start.Add(23 * time.Minute)
	candles, err := feed.LoadRecentClosed(cutoff, "TCS", 10, "5m")
	require.NoError(t, err)
	for _, c := range candles {
		require.False(t, c.Time.Add(5*time.Minute).After(cutoff))
	}
}

func TestCSVFeed_ShortHistoryReturnsWhatExists(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	feed, err := NewCSVFeed(SymbolFeed{Symbol: "TCS", File: writeFeedFile(t, start, 10)})
	require.NoError(t, err)

	candles, err := feed.LoadRecentClosed(start.Add(10*time.Minute), "TCS", 100, "1m")
	require.NoError(t, err)
	require.Len(t, candles, 10)
}

func TestCSVFeed_UnknownSymbol(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	feed, err := NewCSVFeed(SymbolFeed{Symbol: "TCS", File: writeFeedFile(t, start, 5)})
	require.NoError(t, err)

	_, err = feed.LoadDay(start, "NOPE")
	require.Error(t, err)
}
