// Package metric computes end-of-run statistics over per-trade returns.
package metric

import (
	"sort"

	"github.com/raykavin/intrabot/pkg/detrand"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval is a confidence interval estimated by resampling.
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap estimates a confidence interval for measure over values by
// resampling with replacement. Resampling draws come from the run's
// deterministic source, so the interval is reproducible for a given seed.
//
//   - measure: statistic applied to each resample (e.g. the mean)
//   - sampleSize: number of bootstrap resamples
//   - confidence: e.g. 0.95 for a 95% interval
func Bootstrap(rng *detrand.Source, values []float64, measure func([]float64) float64,
	sampleSize int, confidence float64) BootstrapInterval {

	if len(values) == 0 {
		return BootstrapInterval{}
	}

	data := resampleMeasures(rng, values, measure, sampleSize)

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	upper := stat.Quantile(1-tail/2, stat.LinInterp, data, nil)
	lower := stat.Quantile(tail/2, stat.LinInterp, data, nil)

	return BootstrapInterval{
		Lower:  lower,
		Upper:  upper,
		StdDev: stdDev,
		Mean:   mean,
	}
}

func resampleMeasures(rng *detrand.Source, values []float64, measure func([]float64) float64, sampleSize int) []float64 {
	key := detrand.Hash("bootstrap")
	data := make([]float64, 0, sampleSize)

	for i := 0; i < sampleSize; i++ {
		sample := make([]float64, len(values))
		for j := range sample {
			u := rng.Uniform(key, uint64(i), uint64(j))
			idx := int(u * float64(len(values)))
			if idx >= len(values) {
				idx = len(values) - 1
			}
			sample[j] = values[idx]
		}
		data = append(data, measure(sample))
	}

	return data
}
