package builtins

import (
	"eulerbt/internal/predictor"
	"eulerbt/internal/strategy"
)

// Params selects the parameters of the built-in strategies.
type Params struct {
	ShortWindow int
	LongWindow  int
	Predictor   string
	StepSize    float64
}

// NewRegistry returns a registry of every built-in strategy. Lookups build a
// new instance each time, so one registry can serve concurrent runs.
func NewRegistry(p Params) (*strategy.Registry, error) {
	pred, err := predictor.New(p.Predictor, p.StepSize)
	if err != nil {
		return nil, err
	}

	r := strategy.NewRegistry()
	r.Register(func() strategy.Strategy { return NewMACross(p.ShortWindow, p.LongWindow) })
	r.Register(func() strategy.Strategy { return NewEuler(pred) })
	return r, nil
}
