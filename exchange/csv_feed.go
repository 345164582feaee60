package exchange

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/samber/lo"
)

// defaultHeaderMap defines the standard CSV column mapping.
var defaultHeaderMap = map[string]int{
	"time": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5,
}

// SymbolFeed binds one symbol to its 1-minute candle CSV file.
type SymbolFeed struct {
	Symbol string
	File   string
}

// CSVFeed serves historical 1-minute candles from CSV files and resamples
// them on demand for higher-timeframe warmup loads. It implements
// core.DataAdapter.
type CSVFeed struct {
	candles map[string][]core.Candle
	symbols []string
}

// NewCSVFeed reads every feed file up front. Candles must be chronological
// within each file.
func NewCSVFeed(feeds ...SymbolFeed) (*CSVFeed, error) {
	feed := &CSVFeed{candles: make(map[string][]core.Candle)}

	for _, f := range feeds {
		candles, err := readCandlesFromCSV(f)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.Symbol, err)
		}
		if len(candles) == 0 {
			return nil, fmt.Errorf("feed %s: %w", f.Symbol, core.ErrNoData)
		}
		feed.candles[f.Symbol] = candles
		feed.symbols = append(feed.symbols, f.Symbol)
	}
	sort.Strings(feed.symbols)

	return feed, nil
}

// ListSymbols implements core.DataAdapter.
func (f *CSVFeed) ListSymbols() []string {
	return append([]string(nil), f.symbols...)
}

// AvailableDates implements core.DataAdapter.
func (f *CSVFeed) AvailableDates(symbol string) ([]time.Time, error) {
	candles, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: symbol %s", core.ErrNoData, symbol)
	}

	dates := lo.Map(candles, func(c core.Candle, _ int) time.Time {
		return dayOf(c.Time)
	})
	return lo.Uniq(dates), nil
}

// LoadDay implements core.DataAdapter: the 1-minute candles of one trading
// day in chronological order.
func (f *CSVFeed) LoadDay(date time.Time, symbol string) ([]core.Candle, error) {
	candles, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: symbol %s", core.ErrNoData, symbol)
	}

	day := dayOf(date)
	out := lo.Filter(candles, func(c core.Candle, _ int) bool {
		return dayOf(c.Time).Equal(day)
	})
	return out, nil
}

// LoadRecentClosed implements core.DataAdapter: the most recent n closed
// candles strictly before date, resampled to the requested timeframe. Fewer
// than n are returned when history is short.
func (f *CSVFeed) LoadRecentClosed(date time.Time, symbol string, n int, timeframe string) ([]core.Candle, error) {
	candles, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: symbol %s", core.ErrNoData, symbol)
	}

	duration, err := core.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	prior := lo.Filter(candles, func(c core.Candle, _ int) bool {
		return c.Time.Before(date)
	})
	resampled := Resample(prior, timeframe, duration)

	// Drop a trailing bucket that would still be forming at `date`.
	if len(resampled) > 0 {
		lastEnd := resampled[len(resampled)-1].Time.Add(duration)
		if lastEnd.After(date) {
			resampled = resampled[:len(resampled)-1]
		}
	}

	if n > 0 && len(resampled) > n {
		resampled = resampled[len(resampled)-n:]
	}
	return resampled, nil
}

// Resample folds 1-minute candles into buckets of the target timeframe.
// Buckets are aligned the same way the live aggregator aligns forming
// candles, so warmup and live indicator state match.
func Resample(candles []core.Candle, timeframe string, duration time.Duration) []core.Candle {
	var out []core.Candle
	for _, c := range candles {
		boundary := core.AlignTime(c.Time, duration)

		if len(out) == 0 || !out[len(out)-1].Time.Equal(boundary) {
			resampled := c
			resampled.Time = boundary
			resampled.Timeframe = timeframe
			resampled.Complete = true
			out = append(out, resampled)
			continue
		}

		last := &out[len(out)-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume += c.Volume
		last.TickCount += c.TickCount
	}
	return out
}

func readCandlesFromCSV(feed SymbolFeed) ([]core.Candle, error) {
	file, err := os.Open(feed.File)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	var candles []core.Candle
	for i, line := range lines {
		if i == 0 && !isNumeric(line[0]) {
			// Header row.
			continue
		}

		candle, err := parseCandleLine(feed.Symbol, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCandleLine(symbol string, line []string) (core.Candle, error) {
	if len(line) < len(defaultHeaderMap) {
		return core.Candle{}, fmt.Errorf("expected %d columns, got %d", len(defaultHeaderMap), len(line))
	}

	ts, err := strconv.ParseInt(line[defaultHeaderMap["time"]], 10, 64)
	if err != nil {
		return core.Candle{}, err
	}

	fields := make(map[string]float64, 5)
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(line[defaultHeaderMap[name]], 64)
		if err != nil {
			return core.Candle{}, err
		}
		fields[name] = v
	}

	return core.Candle{
		Symbol:    symbol,
		Timeframe: "1m",
		Time:      time.Unix(ts, 0).In(time.Local),
		Open:      fields["open"],
		High:      fields["high"],
		Low:       fields["low"],
		Close:     fields["close"],
		Volume:    fields["volume"],
		Complete:  true,
	}, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
