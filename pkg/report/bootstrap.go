package report

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval represents the confidence interval calculated by the bootstrap method.
type BootstrapInterval struct {
	Lower  float64 // Lower bound of the confidence interval
	Upper  float64 // Upper bound of the confidence interval
	StdDev float64 // Standard deviation of the bootstrap samples
	Mean   float64 // Mean of the bootstrap samples
}

// Bootstrap estimates a confidence interval of a measure over chain results.
// Parameters:
//   - values: realized profit of each finished chain
//   - measure: the statistic computed on each resample
//   - samples: number of resamples
//   - confidence: confidence level (e.g., 0.95 for 95% confidence)
func Bootstrap(values []float64, measure func([]float64) float64, samples int,
	confidence float64) BootstrapInterval {

	if len(values) == 0 || samples <= 0 {
		return BootstrapInterval{}
	}

	data := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		resample := make([]float64, len(values))
		for j := range resample {
			resample[j] = lo.Sample(values)
		}
		data = append(data, measure(resample))
	}

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	return BootstrapInterval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, data, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, data, nil),
		StdDev: stdDev,
		Mean:   mean,
	}
}

// Mean is a bootstrap measure returning the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
