// Package builtins provides the strategy implementations that ship with
// eulerbt.
package builtins

import (
	"context"
	"fmt"

	"eulerbt/internal/domain"
	"eulerbt/internal/indicator"
	"eulerbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross implements a simple moving average crossover strategy. It signals a
// buy when the short-window SMA crosses above the long-window SMA and a sell
// when it crosses below, both filled at the signal bar's close.
type MACross struct {
	shortWindow int
	longWindow  int

	closes  []float64
	shortMA []float64
	longMA  []float64
}

// NewMACross creates a new MACross strategy with the specified short and long
// moving average windows.
func NewMACross(short, long int) *MACross {
	return &MACross{
		shortWindow: short,
		longWindow:  long,
	}
}

// Name returns "ma-cross".
func (s *MACross) Name() string {
	return "ma-cross"
}

// Init computes both moving averages over the series' closes.
func (s *MACross) Init(_ context.Context, bars []domain.Bar) error {
	if s.shortWindow <= 0 || s.longWindow <= 0 {
		return fmt.Errorf("ma-cross: windows must be positive, got %d/%d", s.shortWindow, s.longWindow)
	}
	s.closes = domain.Closes(bars)
	s.shortMA = indicator.SMA(s.closes, s.shortWindow)
	s.longMA = indicator.SMA(s.closes, s.longWindow)
	return nil
}

// Bounds evaluates every bar that has a predecessor.
func (s *MACross) Bounds(n int) (int, int) {
	return 1, n - 1
}

// OnBar detects a crossover between bar i-1 and bar i. Equality at i-1
// followed by a strict cross at i counts; NaN warm-up values never do.
func (s *MACross) OnBar(_ context.Context, i int) (*domain.Signal, error) {
	prevShort, prevLong := s.shortMA[i-1], s.longMA[i-1]
	short, long := s.shortMA[i], s.longMA[i]

	var side domain.Side
	switch {
	case short > long && prevShort <= prevLong:
		side = domain.SideBuy
	case short < long && prevShort >= prevLong:
		side = domain.SideSell
	default:
		return nil, nil
	}

	return &domain.Signal{
		Side:      side,
		Index:     i,
		FillIndex: i,
		FillPrice: s.closes[i],
		Reason:    fmt.Sprintf("short_ma=%.2f long_ma=%.2f", short, long),
	}, nil
}

// ChargesCosts returns false: crossover results are reported in points.
func (s *MACross) ChargesCosts() bool {
	return false
}
