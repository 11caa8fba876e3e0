package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eulerbt/internal/domain"
	"eulerbt/internal/ledger"
	"eulerbt/internal/store"
)

// MinBars is the shortest series that can produce a signal.
const MinBars = 3

// Result is the outcome of replaying one bar series through one strategy.
type Result struct {
	ID       string
	Strategy string
	Symbol   string
	BarCount int
	Costs    ledger.Costs
	Events   []domain.TradeEvent
	Totals   domain.RunTotals
	Final    domain.PositionState

	// Forecast is the next-bar estimate of strategies that implement
	// Forecaster.
	Forecast    float64
	HasForecast bool
}

// Record converts the result into a persistable run record.
func (r *Result) Record(createdAt time.Time) *store.RunRecord {
	return &store.RunRecord{
		ID:        r.ID,
		Strategy:  r.Strategy,
		Symbol:    r.Symbol,
		CreatedAt: createdAt,
		BarCount:  r.BarCount,
		Final:     r.Final,
		Totals:    r.Totals,
		Events:    r.Events,
	}
}

// Replay runs the position state machine over bars in order. Buy signals open
// a position only while flat and sell signals close it only while long; any
// other signal is ignored. A position still open after the last bar stays
// open. Series shorter than MinBars yield an empty result.
//
// Replay owns its ledger, so independent calls may run concurrently as long
// as they do not share a Strategy instance. Backtester takes a fresh instance
// from its Registry for every run.
func Replay(ctx context.Context, bars []domain.Bar, s Strategy, costs ledger.Costs) (*Result, error) {
	if !s.ChargesCosts() {
		costs = ledger.PointCosts()
	}
	led := ledger.New(costs)
	res := &Result{
		Strategy: s.Name(),
		BarCount: len(bars),
		Costs:    costs,
		Final:    domain.PositionFlat,
	}
	if len(bars) > 0 {
		res.Symbol = bars[0].Symbol
	}
	if f, ok := s.(Forecaster); ok {
		res.Forecast, res.HasForecast = f.Forecast(bars)
	}
	if len(bars) < MinBars {
		res.Events = []domain.TradeEvent{}
		return res, nil
	}

	if err := s.Init(ctx, bars); err != nil {
		return nil, fmt.Errorf("init %s: %w", s.Name(), err)
	}

	log := slog.Default().With("strategy", s.Name())
	first, last := s.Bounds(len(bars))
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sig, err := s.OnBar(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("%s bar %d: %w", s.Name(), i, err)
		}
		if sig == nil {
			continue
		}
		if sig.FillIndex < i || sig.FillIndex >= len(bars) {
			return nil, fmt.Errorf("%s bar %d: fill index %d out of range", s.Name(), i, sig.FillIndex)
		}

		ts := bars[sig.FillIndex].Timestamp
		var (
			ev     domain.TradeEvent
			filled bool
		)
		switch {
		case sig.Side == domain.SideBuy && led.State() == domain.PositionFlat:
			ev, err = led.Open(ts, sig.FillPrice, sig.Reason)
			filled = true
		case sig.Side == domain.SideSell && led.State() == domain.PositionLong:
			ev, err = led.Close(ts, sig.FillPrice, sig.Reason)
			filled = true
		}
		if err != nil {
			return nil, err
		}
		if filled {
			log.Debug("fill",
				"seq", ev.Seq,
				"side", ev.Side,
				"ts", ev.Timestamp,
				"price", ev.FillPrice.String(),
				"net", ev.NetCashFlow.String(),
			)
		}
	}

	res.Events = led.Events()
	res.Totals = led.Totals()
	res.Final = led.State()
	return res, nil
}

// Backtester replays historical bar data through registered strategies.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	costs    ledger.Costs
	runs     store.RunStore
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store
// (which may be nil when only RunBars is used) and looks up strategies in the
// provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, costs ledger.Costs) *Backtester {
	return &Backtester{
		store:    barStore,
		registry: registry,
		costs:    costs,
		log:      slog.Default().With("component", "backtester"),
	}
}

// WithRunStore makes the Backtester persist every completed run.
func (bt *Backtester) WithRunStore(runs store.RunStore) *Backtester {
	bt.runs = runs
	return bt
}

// Run executes a backtest for the named strategy over the stored series in
// [start, end].
func (bt *Backtester) Run(ctx context.Context, name string, key store.SeriesKey, start, end time.Time) (*Result, error) {
	bars, err := bt.ReadBars(ctx, key, start, end)
	if err != nil {
		return nil, err
	}
	return bt.RunBars(ctx, name, bars)
}

// ReadBars loads the stored series in [start, end]. A range without bars
// is reported as store.ErrNotFound.
func (bt *Backtester) ReadBars(ctx context.Context, key store.SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	if bt.store == nil {
		return nil, fmt.Errorf("backtester has no bar store")
	}
	bars, err := bt.store.ReadBars(ctx, key, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", key.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s/%s bars for %s in range", store.ErrNotFound, key.Market, key.Interval, key.Symbol)
	}
	return bars, nil
}

// RunBars executes a backtest for the named strategy over an in-memory
// series.
func (bt *Backtester) RunBars(ctx context.Context, name string, bars []domain.Bar) (*Result, error) {
	res, err := bt.replay(ctx, name, bars)
	if err != nil {
		return nil, err
	}
	if err := bt.save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RunAll replays bars through every registered strategy concurrently and
// returns the results in registry order. Runs are persisted one at a time
// after all of them have finished.
func (bt *Backtester) RunAll(ctx context.Context, bars []domain.Bar) ([]*Result, error) {
	names := bt.registry.List()
	results := make([]*Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			res, err := bt.replay(gctx, name, bars)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		if err := bt.save(ctx, res); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (bt *Backtester) replay(ctx context.Context, name string, bars []domain.Bar) (*Result, error) {
	s, err := bt.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	res, err := Replay(ctx, bars, s, bt.costs)
	if err != nil {
		return nil, err
	}
	res.ID = uuid.NewString()

	bt.log.Info("backtest complete",
		"run", res.ID,
		"strategy", res.Strategy,
		"symbol", res.Symbol,
		"bars", res.BarCount,
		"trades", res.Totals.TradeCount,
		"net_profit", res.Totals.NetProfit().StringFixed(2),
	)
	return res, nil
}

func (bt *Backtester) save(ctx context.Context, res *Result) error {
	if bt.runs == nil {
		return nil
	}
	if err := bt.runs.SaveRun(ctx, res.Record(time.Now().UTC())); err != nil {
		return fmt.Errorf("saving run %s: %w", res.ID, err)
	}
	return nil
}
