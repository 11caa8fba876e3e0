package builtins

import (
	"context"
	"fmt"

	"eulerbt/internal/domain"
	"eulerbt/internal/predictor"
	"eulerbt/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy   = (*Euler)(nil)
	_ strategy.Forecaster = (*Euler)(nil)
)

// Euler trades momentum confirmed by extrapolation. It buys when the close
// rises above both the previous close and the price predicted for the bar,
// sells on the mirror condition, and fills at the next bar's open.
type Euler struct {
	predictor predictor.Predictor

	bars []domain.Bar
	pred []float64
}

// NewEuler creates an Euler strategy using p to predict each bar's price.
func NewEuler(p predictor.Predictor) *Euler {
	return &Euler{predictor: p}
}

// Name returns "euler".
func (s *Euler) Name() string {
	return "euler"
}

// Predictions returns the per-bar predictions computed by the last Init.
func (s *Euler) Predictions() []float64 {
	return s.pred
}

// Init computes the prediction series from the closes.
func (s *Euler) Init(_ context.Context, bars []domain.Bar) error {
	if s.predictor == nil {
		return fmt.Errorf("euler: no predictor configured")
	}
	s.bars = bars
	s.pred = s.predictor.Predict(domain.Closes(bars), domain.Timestamps(bars))
	return nil
}

// Bounds starts once two prior bars exist and stops one bar early because
// fills happen at the following bar's open.
func (s *Euler) Bounds(n int) (int, int) {
	return 2, n - 2
}

// OnBar compares bar i against bar i-1 and against its prediction.
func (s *Euler) OnBar(_ context.Context, i int) (*domain.Signal, error) {
	price, prev, pred := s.bars[i].Close, s.bars[i-1].Close, s.pred[i]

	var side domain.Side
	switch {
	case price > prev && price > pred:
		side = domain.SideBuy
	case price < prev && price < pred:
		side = domain.SideSell
	default:
		return nil, nil
	}

	return &domain.Signal{
		Side:      side,
		Index:     i,
		FillIndex: i + 1,
		FillPrice: s.bars[i+1].Open,
		Reason:    fmt.Sprintf("close=%.2f prev=%.2f predicted=%.2f", price, prev, pred),
	}, nil
}

// Forecast extrapolates the price one bar past the end of bars.
func (s *Euler) Forecast(bars []domain.Bar) (float64, bool) {
	if s.predictor == nil {
		return 0, false
	}
	return s.predictor.Next(domain.Closes(bars), domain.Timestamps(bars))
}

// ChargesCosts returns true.
func (s *Euler) ChargesCosts() bool {
	return true
}
