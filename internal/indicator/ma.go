// Package indicator computes technical indicators over price series.
package indicator

import (
	"math"

	"github.com/montanaflynn/stats"
)

// SMA returns the simple moving average of x over the trailing p points. The
// result is aligned to x with NaN for the first p-1 entries.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		m, err := stats.Mean(stats.Float64Data(x[i-p+1 : i+1]))
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = m
	}
	return out
}
