// Package simulator replays historical 1-minute candles as deterministic
// intra-candle tick sequences and hosts the session clock and warmup phases
// built on top of the same dispatch path.
package simulator

import (
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/detrand"
)

const (
	// DefaultTicksPerCandle is how many ticks one candle expands into.
	DefaultTicksPerCandle = 10

	// DefaultSpread is the simulated bid/ask spread, 10 bps.
	DefaultSpread = 0.001

	// extremesShare is the fraction of candles replayed on a path touching
	// both high and low.
	extremesShare = 0.30

	// forcedExtremesRangePct forces the extremes path on wide candles.
	forcedExtremesRangePct = 0.02

	// smoothingAlpha is the exponential smoothing factor along the path.
	smoothingAlpha = 0.3

	// jitterSigma is the Gaussian price jitter, as a fraction of price.
	jitterSigma = 0.0005

	// clampMargin keeps interior ticks strictly inside the candle range.
	clampMargin = 0.001

	tickSource = "sim"
)

// GenerateTicks expands one candle into a deterministic tick sequence. All
// randomness derives from the source seed keyed by (symbol, candleIdx,
// tickIdx), so the expansion is reproducible in isolation.
func GenerateTicks(candle core.Candle, candleIdx int, rng *detrand.Source, ticksPerCandle int, spread float64) []core.Tick {
	if ticksPerCandle < 2 {
		ticksPerCandle = 2
	}

	symbolKey := detrand.Hash(candle.Symbol)
	waypoints := pricePath(candle, symbolKey, uint64(candleIdx), rng)

	duration := time.Minute
	if d, err := core.ParseTimeframe(candle.Timeframe); err == nil {
		duration = d
	}
	interval := duration / time.Duration(ticksPerCandle)

	candleRange := candle.Range()
	lowClamp := candle.Low + clampMargin*candleRange
	highClamp := candle.High - clampMargin*candleRange

	weights := volumeWeights(ticksPerCandle)

	ticks := make([]core.Tick, ticksPerCandle)
	price := waypoints[0]
	assigned := 0.0

	for i := 0; i < ticksPerCandle; i++ {
		switch i {
		case 0:
			price = waypoints[0]
		case ticksPerCandle - 1:
			price = candle.Close
		default:
			target := pathTarget(waypoints, float64(i)/float64(ticksPerCandle-1))
			smoothed := smoothingAlpha*target + (1-smoothingAlpha)*price
			jitter := rng.Norm(symbolKey, uint64(candleIdx), uint64(i)) * jitterSigma * smoothed
			price = clamp(smoothed+jitter, lowClamp, highClamp)
		}

		volume := candle.Volume * weights[i]
		if i == ticksPerCandle-1 {
			// The last tick absorbs rounding so volumes sum exactly.
			volume = candle.Volume - assigned
		}
		assigned += volume

		ticks[i] = core.Tick{
			Time:   candle.Time.Add(time.Duration(i) * interval),
			Symbol: candle.Symbol,
			Price:  price,
			Bid:    price * (1 - spread/2),
			Ask:    price * (1 + spread/2),
			Volume: volume,
			Source: tickSource,
		}
	}
	return ticks
}

// pricePath selects the waypoint sequence for a candle. Directional candles
// walk extreme, open, opposite extreme, close; 30% of candles and every wide
// candle touch both extremes.
func pricePath(candle core.Candle, symbolKey, candleIdx uint64, rng *detrand.Source) [4]float64 {
	bullish := candle.Bullish()

	extremes := false
	if candle.Open > 0 && candle.Range()/candle.Open >= forcedExtremesRangePct {
		extremes = true
	} else if rng.Uniform(symbolKey, candleIdx, detrand.Hash("path")) < extremesShare {
		extremes = true
	}

	switch {
	case extremes && bullish:
		return [4]float64{candle.Open, candle.Low, candle.High, candle.Close}
	case extremes:
		return [4]float64{candle.Open, candle.High, candle.Low, candle.Close}
	case bullish:
		return [4]float64{candle.Low, candle.Open, candle.High, candle.Close}
	default:
		return [4]float64{candle.High, candle.Open, candle.Low, candle.Close}
	}
}

// pathTarget linearly interpolates the waypoints at position pos in [0, 1].
func pathTarget(waypoints [4]float64, pos float64) float64 {
	segments := float64(len(waypoints) - 1)
	segment := int(pos * segments)
	if segment >= len(waypoints)-1 {
		return waypoints[len(waypoints)-1]
	}
	local := pos*segments - float64(segment)
	return waypoints[segment] + (waypoints[segment+1]-waypoints[segment])*local
}

// volumeWeights distributes candle volume across ticks, weighting the path
// endpoints higher.
func volumeWeights(n int) []float64 {
	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		w := 1.0
		if i == 0 || i == n-1 {
			w = 2.0
		} else if i == 1 || i == n-2 {
			w = 1.5
		}
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
