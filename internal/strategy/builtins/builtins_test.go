package builtins

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"eulerbt/internal/domain"
	"eulerbt/internal/ledger"
	"eulerbt/internal/predictor"
	"eulerbt/internal/strategy"
)

var t0 = time.Date(2024, 9, 2, 8, 45, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// bars builds a one-minute series. opens may be nil, in which case each bar
// opens at its close.
func bars(closes, opens []float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		o := c
		if opens != nil {
			o = opens[i]
		}
		out[i] = domain.Bar{
			Symbol:    "TXFR2",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      o, High: max(o, c), Low: min(o, c), Close: c,
		}
	}
	return out
}

func taifexCosts() ledger.Costs { return ledger.NewCosts(10, 18, 0.00002) }

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(Params{ShortWindow: 1, LongWindow: 3, Predictor: "time", StepSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"euler", "ma-cross"}, reg.List())

	_, err = NewRegistry(Params{ShortWindow: 1, LongWindow: 3, Predictor: "bogus"})
	assert.ErrorIs(t, err, predictor.ErrUnknownPredictor)
}

func TestMACrossTieThenDivergence(t *testing.T) {
	// short=1, long=2: equal at bar 2, strictly above at bar 3.
	res, err := strategy.Replay(context.Background(), bars([]float64{100, 99, 99, 101}, nil), NewMACross(1, 2), taifexCosts())
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.SideBuy, res.Events[0].Side)
	assert.Equal(t, t0.Add(3*time.Minute), res.Events[0].Timestamp)
	assert.True(t, dec("101").Equal(res.Events[0].FillPrice))
	assert.Contains(t, res.Events[0].Reason, "short_ma=101.00")
}

func TestMACrossRoundTrip(t *testing.T) {
	closes := []float64{100, 99, 99, 101, 103, 100, 97}
	res, err := strategy.Replay(context.Background(), bars(closes, nil), NewMACross(1, 2), taifexCosts())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	buy, sell := res.Events[0], res.Events[1]
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, t0.Add(3*time.Minute), buy.Timestamp)
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, t0.Add(5*time.Minute), sell.Timestamp)

	// Points only: no fee, no tax, no multiplier.
	assert.True(t, dec("-1").Equal(sell.RealizedProfit), "realized = %s", sell.RealizedProfit)
	assert.True(t, dec("-1").Equal(res.Totals.GrossProfit))
	assert.True(t, res.Totals.TotalFee.IsZero())
	assert.True(t, res.Totals.TotalTax.IsZero())
	assert.Equal(t, domain.PositionFlat, res.Final)
}

func TestMACrossWarmupNeverTriggers(t *testing.T) {
	// The long SMA is NaN for the first four bars; rising closes after that
	// never cross.
	res, err := strategy.Replay(context.Background(), bars([]float64{1, 2, 3, 4, 5, 6, 7}, nil), NewMACross(2, 5), taifexCosts())
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func TestMACrossInvalidWindows(t *testing.T) {
	_, err := strategy.Replay(context.Background(), bars([]float64{1, 2, 3}, nil), NewMACross(0, 3), taifexCosts())
	assert.Error(t, err)
}

func TestEulerScenario(t *testing.T) {
	closes := []float64{100, 101, 99, 98, 102}
	opens := []float64{100, 100, 99, 98, 101}

	for _, kind := range []string{predictor.KindStep, predictor.KindTime} {
		p, err := predictor.New(kind, 1)
		require.NoError(t, err)

		res, err := strategy.Replay(context.Background(), bars(closes, opens), NewEuler(p), taifexCosts())
		require.NoError(t, err, kind)

		// Only the last bar confirms an entry, and it has no next bar to
		// fill on.
		assert.Empty(t, res.Events, kind)
		assert.Equal(t, len(res.Events), res.Totals.TradeCount, kind)
		assert.True(t, dec("18").Mul(decimal.NewFromInt(int64(res.Totals.TradeCount))).Equal(res.Totals.TotalFee), kind)
	}
}

func TestEulerNextBarExecution(t *testing.T) {
	closes := []float64{100, 101, 103, 102, 99, 98}
	opens := []float64{100, 100, 102, 103, 101, 99}

	res, err := strategy.Replay(context.Background(), bars(closes, opens), NewEuler(predictor.Step{Size: 1}), taifexCosts())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	buy, sell := res.Events[0], res.Events[1]

	// Signal on bar 2, filled at bar 3's open.
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, t0.Add(3*time.Minute), buy.Timestamp)
	assert.True(t, dec("103").Equal(buy.FillPrice))
	assert.True(t, dec("1030").Equal(buy.Notional))
	assert.True(t, dec("0.0206").Equal(buy.Tax))
	assert.True(t, dec("-1048.0206").Equal(buy.NetCashFlow))

	// Signal on bar 3, filled at bar 4's open.
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, t0.Add(4*time.Minute), sell.Timestamp)
	assert.True(t, dec("101").Equal(sell.FillPrice))
	assert.True(t, dec("991.9798").Equal(sell.NetCashFlow))
	assert.True(t, dec("-56.0408").Equal(sell.RealizedProfit), "realized = %s", sell.RealizedProfit)

	assert.True(t, dec("-20").Equal(res.Totals.GrossProfit))
	assert.True(t, dec("36").Equal(res.Totals.TotalFee))
	assert.True(t, dec("0.0408").Equal(res.Totals.TotalTax))
	assert.True(t, dec("-56.0408").Equal(res.Totals.NetProfit()))
	assert.Equal(t, domain.PositionFlat, res.Final)
}

func TestEulerEndsLong(t *testing.T) {
	closes := []float64{100, 101, 103, 102, 99, 101, 104, 103}
	opens := []float64{100, 100, 102, 103, 101, 99, 102, 104}

	res, err := strategy.Replay(context.Background(), bars(closes, opens), NewEuler(predictor.Step{Size: 1}), taifexCosts())
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	assert.Equal(t, domain.SideBuy, res.Events[2].Side)
	assert.True(t, dec("102").Equal(res.Events[2].FillPrice))
	assert.Equal(t, domain.PositionLong, res.Final)

	assert.True(t, dec("-20").Equal(res.Totals.GrossProfit))
	assert.True(t, dec("54").Equal(res.Totals.TotalFee))
	assert.True(t, dec("0.0612").Equal(res.Totals.TotalTax))
	assert.True(t, dec("-74.0612").Equal(res.Totals.NetProfit()))
}

func TestEulerSkipsDegenerateTimeDelta(t *testing.T) {
	b := bars([]float64{100, 101, 103, 102, 99, 98}, []float64{100, 100, 102, 103, 101, 99})
	// Bars 0 and 1 share a timestamp: no prediction exists for bar 2.
	b[1].Timestamp = b[0].Timestamp

	res, err := strategy.Replay(context.Background(), b, NewEuler(predictor.TimeDelta{}), taifexCosts())
	require.NoError(t, err)

	// The bar 2 entry is suppressed; nothing later re-enters.
	assert.Empty(t, res.Events)
}

func TestShortSeriesProduceNothing(t *testing.T) {
	for n := 0; n < 3; n++ {
		closes := []float64{100, 105, 110}[:n]
		for _, s := range []strategy.Strategy{NewMACross(1, 2), NewEuler(predictor.Step{Size: 1})} {
			res, err := strategy.Replay(context.Background(), bars(closes, nil), s, taifexCosts())
			require.NoError(t, err)
			assert.Empty(t, res.Events, "%s with %d bars", s.Name(), n)
			assert.True(t, res.Totals.GrossProfit.IsZero())
			assert.True(t, res.Totals.TotalFee.IsZero())
			assert.True(t, res.Totals.TotalTax.IsZero())
			assert.Equal(t, 0, res.Totals.TradeCount)
		}
	}
}

func randomWalk(seed int64, n int) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.Bar, n)
	price := 17000.0
	ts := t0
	for i := range out {
		open := price + float64(rng.Intn(11)-5)
		price = open + float64(rng.Intn(41)-20)
		// Irregular spacing with occasional session breaks.
		step := time.Minute
		if rng.Intn(20) == 0 {
			step = 75 * time.Minute
		}
		ts = ts.Add(step)
		out[i] = domain.Bar{Symbol: "TXFR2", Timestamp: ts, Open: open, High: max(open, price), Low: min(open, price), Close: price}
	}
	return out
}

func TestTradeLogProperties(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		series := randomWalk(seed, 400)
		strategies := []strategy.Strategy{
			NewMACross(1, 3),
			NewMACross(5, 20),
			NewEuler(predictor.Step{Size: 1}),
			NewEuler(predictor.TimeDelta{}),
		}
		for _, s := range strategies {
			res, err := strategy.Replay(context.Background(), series, s, taifexCosts())
			require.NoError(t, err)

			assert.Equal(t, len(res.Events), res.Totals.TradeCount)
			assert.True(t, res.Totals.NetProfit().Equal(res.Totals.GrossProfit.Sub(res.Totals.TotalFee).Sub(res.Totals.TotalTax)))

			gross := decimal.Zero
			fees := decimal.Zero
			var entry domain.TradeEvent
			for i, ev := range res.Events {
				fees = fees.Add(ev.Fee)
				if i%2 == 0 {
					require.Equal(t, domain.SideBuy, ev.Side, "seed %d %s event %d", seed, s.Name(), i)
					entry = ev
					continue
				}
				require.Equal(t, domain.SideSell, ev.Side, "seed %d %s event %d", seed, s.Name(), i)
				assert.True(t, ev.Timestamp.After(entry.Timestamp))
				assert.True(t, ev.RealizedProfit.Equal(ev.NetCashFlow.Add(entry.NetCashFlow)))
				gross = gross.Add(ev.Notional.Sub(entry.Notional))
			}
			assert.True(t, gross.Equal(res.Totals.GrossProfit), "seed %d %s gross", seed, s.Name())
			assert.True(t, fees.Equal(res.Totals.TotalFee))

			wantFinal := domain.PositionFlat
			if len(res.Events)%2 == 1 {
				wantFinal = domain.PositionLong
			}
			assert.Equal(t, wantFinal, res.Final)
		}
	}
}

func TestDeterminism(t *testing.T) {
	series := randomWalk(7, 500)
	params := Params{ShortWindow: 3, LongWindow: 10, Predictor: "time", StepSize: 1}

	for _, name := range []string{"ma-cross", "euler"} {
		run := func() *strategy.Result {
			reg, err := NewRegistry(params)
			require.NoError(t, err)
			s, err := reg.Lookup(name)
			require.NoError(t, err)
			res, err := strategy.Replay(context.Background(), series, s, taifexCosts())
			require.NoError(t, err)
			return res
		}
		first, second := run(), run()
		assert.Equal(t, first, second, name)
	}
}

func TestEulerForecastOnResult(t *testing.T) {
	res, err := strategy.Replay(context.Background(), bars([]float64{100, 101, 99, 98, 102}, nil), NewEuler(predictor.Step{Size: 1}), taifexCosts())
	require.NoError(t, err)
	assert.True(t, res.HasForecast)
	assert.Equal(t, 106.0, res.Forecast)

	res, err = strategy.Replay(context.Background(), bars([]float64{100, 101, 99, 98, 102}, nil), NewMACross(1, 3), taifexCosts())
	require.NoError(t, err)
	assert.False(t, res.HasForecast)
}

func TestEulerNonFiniteFillIsAnError(t *testing.T) {
	series := bars([]float64{100, 101, 103, 104}, []float64{100, 101, 103, math.NaN()})
	_, err := strategy.Replay(context.Background(), series, NewEuler(predictor.Step{Size: 1}), taifexCosts())
	assert.ErrorIs(t, err, ledger.ErrBadPrice)
}

func TestBacktesterConcurrentRunsShareRegistry(t *testing.T) {
	reg, err := NewRegistry(Params{ShortWindow: 3, LongWindow: 10, Predictor: "step", StepSize: 1})
	require.NoError(t, err)
	bt := strategy.NewBacktester(nil, reg, taifexCosts())
	ctx := context.Background()

	long := randomWalk(11, 400)
	short := bars([]float64{100, 101, 99, 98}, nil)

	want := map[string]map[int]*strategy.Result{}
	for _, name := range reg.List() {
		want[name] = map[int]*strategy.Result{}
		for _, series := range [][]domain.Bar{long, short} {
			res, err := bt.RunBars(ctx, name, series)
			require.NoError(t, err)
			want[name][len(series)] = res
		}
	}

	var g errgroup.Group
	got := make([]*strategy.Result, 200)
	for i := range got {
		name := reg.List()[i%2]
		series := long
		if i%3 == 0 {
			series = short
		}
		g.Go(func() error {
			res, err := bt.RunBars(ctx, name, series)
			got[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, res := range got {
		base := want[res.Strategy][res.BarCount]
		assert.Equal(t, base.Events, res.Events, "run %d %s", i, res.Strategy)
		assert.Equal(t, base.Totals, res.Totals, "run %d %s", i, res.Strategy)
		assert.Equal(t, base.Final, res.Final, "run %d %s", i, res.Strategy)
	}
}

// Pred[i] is built from bars i-2 and i-1, so the 106 extrapolated past the
// last bar comes from Next rather than Pred[2].
func TestEulerPredictionsExposed(t *testing.T) {
	s := NewEuler(predictor.Step{Size: 1})
	require.NoError(t, s.Init(context.Background(), bars([]float64{100, 102, 104}, nil)))
	assert.Equal(t, []float64{100, 102, 104}, s.Predictions())
}
