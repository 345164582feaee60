// Package indicator provides a per-symbol incremental indicator set computed
// over the closed-candle history, with an optional overlay for the current
// forming candle.
package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/raykavin/intrabot/core"
)

// Kind identifies an indicator family for readiness queries.
type Kind string

const (
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindRSI        Kind = "rsi"
	KindATR        Kind = "atr"
	KindBollinger  Kind = "bollinger"
	KindMACD       Kind = "macd"
	KindSuperTrend Kind = "supertrend"
	KindVolumeSMA  Kind = "volume_sma"
)

// DefaultCapacity bounds the stored history. It only needs to cover the
// largest indicator period plus headroom.
const DefaultCapacity = 500

// Set is the per-symbol indicator state. It owns bounded OHLCV series fed
// from closed candles, a scalar cache keyed by (indicator, parameters), and a
// snapshot of the current forming candle. The forming candle participates in
// the *WithForming queries as a provisional last bar but never mutates the
// stored history or the cache.
type Set struct {
	symbol   string
	capacity int

	open   core.Series[float64]
	high   core.Series[float64]
	low    core.Series[float64]
	closes core.Series[float64]
	volume core.Series[float64]

	forming *core.Candle
	cache   map[string]float64
}

// NewSet creates an indicator set for one symbol.
func NewSet(symbol string) *Set {
	return &Set{
		symbol:   symbol,
		capacity: DefaultCapacity,
		cache:    make(map[string]float64),
	}
}

// Symbol returns the symbol this set tracks.
func (s *Set) Symbol() string { return s.symbol }

// Len returns the number of closed candles in the history.
func (s *Set) Len() int { return s.closes.Length() }

// LastClose returns the most recent closed price.
func (s *Set) LastClose() (float64, bool) {
	if s.closes.Length() == 0 {
		return 0, false
	}
	return s.closes.Last(0), true
}

// Closes exposes the close history for windowed and crossover queries.
func (s *Set) Closes() core.Series[float64] { return s.closes }

// AddClosed appends a closed candle, trims the history to capacity and
// atomically invalidates the cache.
func (s *Set) AddClosed(candle core.Candle) {
	s.open = append(s.open, candle.Open)
	s.high = append(s.high, candle.High)
	s.low = append(s.low, candle.Low)
	s.closes = append(s.closes, candle.Close)
	s.volume = append(s.volume, candle.Volume)

	if len(s.closes) > s.capacity {
		s.open = s.open[1:]
		s.high = s.high[1:]
		s.low = s.low[1:]
		s.closes = s.closes[1:]
		s.volume = s.volume[1:]
	}

	s.cache = make(map[string]float64)
	s.forming = nil
}

// SetForming records the current forming candle snapshot.
func (s *Set) SetForming(candle core.Candle) {
	c := candle
	s.forming = &c
}

// IsReady reports whether enough closed candles exist for the indicator.
// RSI follows Wilder's definition and needs period+1 bars.
func (s *Set) IsReady(kind Kind, period int) bool {
	n := len(s.closes)
	switch kind {
	case KindRSI:
		return n >= period+1
	case KindATR, KindSuperTrend:
		return n >= period+1
	case KindMACD:
		// period is the slow period here; the signal line needs extra bars.
		return n >= period
	default:
		return n >= period
	}
}

// SMA returns the simple moving average of the last period closes.
func (s *Set) SMA(period int) (float64, bool) {
	if !s.IsReady(KindSMA, period) {
		return 0, false
	}
	return s.cached(fmt.Sprintf("sma:%d", period), func() float64 {
		return last(talib.Sma(s.closes, period))
	}), true
}

// EMA returns the exponential moving average, seeded with an SMA and
// smoothed with alpha = 2/(period+1).
func (s *Set) EMA(period int) (float64, bool) {
	if !s.IsReady(KindEMA, period) {
		return 0, false
	}
	return s.cached(fmt.Sprintf("ema:%d", period), func() float64 {
		return last(talib.Ema(s.closes, period))
	}), true
}

// RSI returns Wilder's relative strength index, bounded [0, 100].
func (s *Set) RSI(period int) (float64, bool) {
	if !s.IsReady(KindRSI, period) {
		return 0, false
	}
	return s.cached(fmt.Sprintf("rsi:%d", period), func() float64 {
		return last(talib.Rsi(s.closes, period))
	}), true
}

// ATR returns Wilder's average true range.
func (s *Set) ATR(period int) (float64, bool) {
	if !s.IsReady(KindATR, period) {
		return 0, false
	}
	return s.cached(fmt.Sprintf("atr:%d", period), func() float64 {
		return last(talib.Atr(s.high, s.low, s.closes, period))
	}), true
}

// Bollinger returns the upper, middle and lower bands at k standard
// deviations around an SMA middle band.
func (s *Set) Bollinger(period int, deviation float64) (upper, middle, lower float64, ok bool) {
	if !s.IsReady(KindBollinger, period) {
		return 0, 0, 0, false
	}

	upper = s.cached(fmt.Sprintf("bb_up:%d:%g", period, deviation), func() float64 {
		u, _, _ := talib.BBands(s.closes, period, deviation, deviation, talib.SMA)
		return last(u)
	})
	middle = s.cached(fmt.Sprintf("bb_mid:%d:%g", period, deviation), func() float64 {
		_, m, _ := talib.BBands(s.closes, period, deviation, deviation, talib.SMA)
		return last(m)
	})
	lower = s.cached(fmt.Sprintf("bb_low:%d:%g", period, deviation), func() float64 {
		_, _, l := talib.BBands(s.closes, period, deviation, deviation, talib.SMA)
		return last(l)
	})
	return upper, middle, lower, true
}

// MACD returns the MACD line, signal line and histogram.
func (s *Set) MACD(fast, slow, signal int) (macd, sig, hist float64, ok bool) {
	if len(s.closes) < slow+signal {
		return 0, 0, 0, false
	}

	macd = s.cached(fmt.Sprintf("macd:%d:%d:%d", fast, slow, signal), func() float64 {
		m, _, _ := talib.Macd(s.closes, fast, slow, signal)
		return last(m)
	})
	sig = s.cached(fmt.Sprintf("macd_sig:%d:%d:%d", fast, slow, signal), func() float64 {
		_, g, _ := talib.Macd(s.closes, fast, slow, signal)
		return last(g)
	})
	hist = s.cached(fmt.Sprintf("macd_hist:%d:%d:%d", fast, slow, signal), func() float64 {
		_, _, h := talib.Macd(s.closes, fast, slow, signal)
		return last(h)
	})
	return macd, sig, hist, true
}

// VolumeSMA returns the simple moving average of volume.
func (s *Set) VolumeSMA(period int) (float64, bool) {
	if !s.IsReady(KindVolumeSMA, period) {
		return 0, false
	}
	return s.cached(fmt.Sprintf("vol_sma:%d", period), func() float64 {
		return last(talib.Sma(s.volume, period))
	}), true
}

// SuperTrendAt returns the SuperTrend state at the latest closed bar.
func (s *Set) SuperTrendAt(period int, factor float64) (SuperTrend, bool) {
	if !s.IsReady(KindSuperTrend, period) {
		return SuperTrend{}, false
	}
	series := SuperTrendSeries(s.high, s.low, s.closes, period, factor)
	return series[len(series)-1], true
}

// ---------------------
// Forming-candle overlays
// ---------------------

// SMAWithForming treats the forming candle as a provisional last bar.
func (s *Set) SMAWithForming(period int) (float64, bool) {
	closes, ok := s.closesWithForming(period)
	if !ok {
		return 0, false
	}
	return last(talib.Sma(closes, period)), true
}

// EMAWithForming treats the forming candle as a provisional last bar.
func (s *Set) EMAWithForming(period int) (float64, bool) {
	closes, ok := s.closesWithForming(period)
	if !ok {
		return 0, false
	}
	return last(talib.Ema(closes, period)), true
}

// RSIWithForming treats the forming candle as a provisional last bar.
func (s *Set) RSIWithForming(period int) (float64, bool) {
	closes, ok := s.closesWithForming(period + 1)
	if !ok {
		return 0, false
	}
	return last(talib.Rsi(closes, period)), true
}

// closesWithForming copies the close history and appends the forming close.
// Returns false when there is no forming candle and the plain history is
// shorter than min.
func (s *Set) closesWithForming(min int) ([]float64, bool) {
	if s.forming == nil {
		if len(s.closes) < min {
			return nil, false
		}
		return s.closes, true
	}

	closes := make([]float64, 0, len(s.closes)+1)
	closes = append(closes, s.closes...)
	closes = append(closes, s.forming.Close)
	if len(closes) < min {
		return nil, false
	}
	return closes, true
}

// Snapshot returns the currently cached indicator values. It is attached to
// signals for observability.
func (s *Set) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

func (s *Set) cached(key string, compute func() float64) float64 {
	if v, ok := s.cache[key]; ok {
		return v
	}
	v := compute()
	s.cache[key] = v
	return v
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
