// Package predictor projects the next bar's price from the rate of change of
// the two preceding bars (explicit Euler extrapolation).
package predictor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrUnknownPredictor is returned by New for an unrecognised kind.
var ErrUnknownPredictor = errors.New("unknown predictor")

const (
	KindStep = "step"
	KindTime = "time"
)

// Predictor turns a price series into a same-length series of predictions.
//
// Pred[0] and Pred[1] are seeded with the actual prices. For i >= 2, Pred[i]
// is the estimate of price i made from prices i-2 and i-1 only. An entry is
// NaN when no estimate could be made (degenerate time delta).
type Predictor interface {
	Name() string
	Predict(prices []float64, times []time.Time) []float64

	// Next projects the price one bar past the end of the series. It
	// reports false when fewer than two prices are available or the last
	// rate is undefined.
	Next(prices []float64, times []time.Time) (float64, bool)
}

// New returns the predictor for kind ("step" or "time"). step is only used
// by the step predictor.
func New(kind string, step float64) (Predictor, error) {
	switch strings.ToLower(kind) {
	case "", KindStep:
		return Step{Size: step}, nil
	case KindTime:
		return TimeDelta{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPredictor, kind)
	}
}

// Step extrapolates by index: the rate is the price change per bar and the
// projection advances Size bars.
type Step struct {
	Size float64
}

var _ Predictor = Step{}

func (s Step) Name() string { return KindStep }

func (s Step) Predict(prices []float64, _ []time.Time) []float64 {
	pred := seed(prices)
	for i := 0; i+2 < len(prices); i++ {
		rate := prices[i+1] - prices[i]
		pred[i+2] = prices[i+1] + rate*s.size()
	}
	return pred
}

func (s Step) Next(prices []float64, _ []time.Time) (float64, bool) {
	n := len(prices)
	if n < 2 {
		return 0, false
	}
	return prices[n-1] + (prices[n-1]-prices[n-2])*s.size(), true
}

func (s Step) size() float64 {
	if s.Size == 0 {
		return 1
	}
	return s.Size
}

// TimeDelta extrapolates using the elapsed time between bars, in minutes,
// so that session breaks and other gaps do not distort the slope.
type TimeDelta struct{}

var _ Predictor = TimeDelta{}

func (TimeDelta) Name() string { return KindTime }

func (TimeDelta) Predict(prices []float64, times []time.Time) []float64 {
	pred := seed(prices)
	if len(times) < len(prices) {
		return pred
	}
	for i := 0; i+2 < len(prices); i++ {
		dt := minutes(times[i], times[i+1])
		if dt == 0 {
			pred[i+2] = math.NaN()
			continue
		}
		rate := (prices[i+1] - prices[i]) / dt
		pred[i+2] = prices[i+1] + rate*minutes(times[i+1], times[i+2])
	}
	return pred
}

// Next assumes the coming interval has the same length as the last one.
func (TimeDelta) Next(prices []float64, times []time.Time) (float64, bool) {
	n := len(prices)
	if n < 2 || len(times) < n {
		return 0, false
	}
	dt := minutes(times[n-2], times[n-1])
	if dt == 0 {
		return 0, false
	}
	rate := (prices[n-1] - prices[n-2]) / dt
	return prices[n-1] + rate*dt, true
}

func seed(prices []float64) []float64 {
	out := make([]float64, len(prices))
	copy(out, prices)
	return out
}

func minutes(from, to time.Time) float64 {
	return to.Sub(from).Minutes()
}
