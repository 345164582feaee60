package indicator

import "github.com/markcheno/go-talib"

// SuperTrend holds the state of the SuperTrend indicator at one bar.
type SuperTrend struct {
	Value        float64
	UpperBand    float64
	LowerBand    float64
	Bullish      bool
	PrevBullish  bool
	PrevValue    float64
}

// SuperTrendSeries computes the SuperTrend indicator over the given OHLC
// series using the standard band-smoothing rule: the final upper band only
// ratchets down while the trend is bullish (resetting on a flip) and the
// final lower band only ratchets up while bearish. The trend flips when the
// close crosses the active band.
func SuperTrendSeries(high, low, close []float64, atrPeriod int, factor float64) []SuperTrend {
	length := len(close)
	if length == 0 {
		return nil
	}

	atr := talib.Atr(high, low, close, atrPeriod)

	finalUpper := make([]float64, length)
	finalLower := make([]float64, length)
	bullish := make([]bool, length)
	out := make([]SuperTrend, length)

	for i := 1; i < length; i++ {
		median := (high[i] + low[i]) / 2.0
		basicUpper := median + atr[i]*factor
		basicLower := median - atr[i]*factor

		if basicUpper < finalUpper[i-1] || close[i-1] > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}

		if basicLower > finalLower[i-1] || close[i-1] < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}

		if bullish[i-1] {
			// Bullish trend ends only when the close breaks the lower band.
			bullish[i] = close[i] > finalLower[i]
		} else {
			bullish[i] = close[i] >= finalUpper[i]
		}

		out[i] = SuperTrend{
			UpperBand:   finalUpper[i],
			LowerBand:   finalLower[i],
			Bullish:     bullish[i],
			PrevBullish: bullish[i-1],
			PrevValue:   out[i-1].Value,
		}
		if bullish[i] {
			out[i].Value = finalLower[i]
		} else {
			out[i].Value = finalUpper[i]
		}
	}

	return out
}
