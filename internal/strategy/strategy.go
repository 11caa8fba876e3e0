// Package strategy defines the Strategy interface for trading strategies,
// provides a Registry for managing implementations, and replays bar series
// through them.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"eulerbt/internal/domain"
)

// ErrUnknownStrategy is returned when a strategy name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
//
// A strategy only detects raw entry and exit conditions. Whether a condition
// results in a fill depends on the position state, which the engine owns.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init precomputes whatever the strategy needs over the full series
	// (indicators, predictions). It is called once per run before OnBar.
	Init(ctx context.Context, bars []domain.Bar) error

	// Bounds returns the first and last bar index to evaluate for a series
	// of n bars. last < first means nothing is evaluated.
	Bounds(n int) (first, last int)

	// OnBar evaluates bar i and returns a signal, or nil when there is none.
	OnBar(ctx context.Context, i int) (*domain.Signal, error)

	// ChargesCosts reports whether fills are accounted with the configured
	// point value, fee and tax. Strategies that return false are accounted
	// in raw price points.
	ChargesCosts() bool
}

// Forecaster is implemented by strategies that can project the price one bar
// past the end of a series.
type Forecaster interface {
	Forecast(bars []domain.Bar) (float64, bool)
}

// Factory builds a fresh Strategy. Strategies keep per-run state from Init
// onwards, so every replay gets its own instance.
type Factory func() Strategy

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory to the registry, keyed by the Name() of
// the strategies it builds.
func (r *Registry) Register(f Factory) {
	r.factories[f().Name()] = f
}

// Get builds a new instance of the named strategy. The second return value
// indicates whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Lookup is like Get but returns ErrUnknownStrategy for a missing name.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, r.List())
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
