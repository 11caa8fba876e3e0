package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eulerbt/internal/domain"
	"eulerbt/internal/ingest"
	"eulerbt/internal/ledger"
	"eulerbt/internal/report"
	"eulerbt/internal/store"
	"eulerbt/internal/strategy"
	"eulerbt/internal/strategy/builtins"
)

// allStrategies selects every registered strategy.
const allStrategies = "all"

type runFlags struct {
	csvPath   string
	key       store.SeriesKey
	from, to  string
	strategy  string
	out       string
	tradesCSV string
	persist   bool
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest a strategy over a CSV file or a stored bar series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "CSV file with ts,open,high,low,close[,volume]")
	cmd.Flags().StringVar(&f.key.Symbol, "symbol", "", "symbol (store source, or label for --csv)")
	cmd.Flags().StringVar(&f.key.Market, "market", "twf", "market of the stored series")
	cmd.Flags().StringVar(&f.key.Interval, "interval", "1d", "interval of the stored series")
	cmd.Flags().StringVar(&f.from, "from", "", "first date (YYYY-MM-DD) of the stored series")
	cmd.Flags().StringVar(&f.to, "to", "", "last date (YYYY-MM-DD) of the stored series")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "strategy name, or \"all\" (overrides config)")
	cmd.Flags().StringVar(&f.out, "out", "", "also write the report to this file")
	cmd.Flags().StringVar(&f.tradesCSV, "trades-csv", "", "export trade events to this CSV file")
	cmd.Flags().BoolVar(&f.persist, "persist", false, "save the run to the sqlite run store")
	return cmd
}

func (a *app) run(ctx context.Context, stdout io.Writer, f *runFlags) error {
	bt := a.cfg.Backtest
	name := bt.Strategy
	if f.strategy != "" {
		name = f.strategy
	}
	if name == allStrategies && f.tradesCSV != "" {
		return fmt.Errorf("--trades-csv needs a single strategy")
	}
	if f.csvPath == "" && f.key.Symbol == "" {
		return fmt.Errorf("either --csv or --symbol is required")
	}

	reg, err := builtins.NewRegistry(builtins.Params{
		ShortWindow: bt.ShortWindow,
		LongWindow:  bt.LongWindow,
		Predictor:   bt.Predictor,
		StepSize:    bt.StepSize,
	})
	if err != nil {
		return err
	}

	costs := ledger.NewCosts(bt.ProfitPerPoint, bt.TransactionFee, bt.TransactionTaxRate)
	backtester := strategy.NewBacktester(store.NewParquetStore(a.cfg.Storage.DataDir), reg, costs)
	if f.persist {
		runs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening run store: %w", err)
		}
		defer runs.Close()
		backtester = backtester.WithRunStore(runs)
	}

	results, err := a.backtest(ctx, backtester, name, f)
	if err != nil {
		return err
	}

	w := stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer file.Close()
		w = io.MultiWriter(stdout, file)
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		opts := report.Options{Forecast: res.Forecast, HasForecast: res.HasForecast}
		if err := report.Write(w, res, opts); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if f.tradesCSV != "" {
		file, err := os.Create(f.tradesCSV)
		if err != nil {
			return fmt.Errorf("creating trades csv: %w", err)
		}
		defer file.Close()
		if err := report.WriteTradesCSV(file, results[0].Events); err != nil {
			return err
		}
	}

	if f.persist {
		for _, res := range results {
			fmt.Fprintf(stdout, "\nrun %s (%s) saved to %s\n", res.ID, res.Strategy, a.cfg.Storage.SQLitePath)
		}
	}
	return nil
}

// backtest replays the CSV file when one is given and the stored series
// otherwise.
func (a *app) backtest(ctx context.Context, bt *strategy.Backtester, name string, f *runFlags) ([]*strategy.Result, error) {
	if f.csvPath == "" {
		start, end, err := parseRange(f.from, f.to)
		if err != nil {
			return nil, err
		}
		if name != allStrategies {
			res, err := bt.Run(ctx, name, f.key, start, end)
			if err != nil {
				return nil, err
			}
			return []*strategy.Result{res}, nil
		}
		bars, err := bt.ReadBars(ctx, f.key, start, end)
		if err != nil {
			return nil, err
		}
		return bt.RunAll(ctx, bars)
	}

	symbol := f.key.Symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(filepath.Base(f.csvPath), filepath.Ext(f.csvPath))
	}
	bars, err := readCSVFile(f.csvPath, symbol, time.UTC)
	if err != nil {
		return nil, err
	}
	if name == allStrategies {
		return bt.RunAll(ctx, bars)
	}
	res, err := bt.RunBars(ctx, name, bars)
	if err != nil {
		return nil, err
	}
	return []*strategy.Result{res}, nil
}

func readCSVFile(path, symbol string, loc *time.Location) ([]domain.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	bars, err := ingest.LoadCSVIn(file, symbol, loc)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return bars, nil
}

// parseRange turns optional YYYY-MM-DD bounds into an inclusive time range.
// A missing from means the beginning of time and a missing to means now.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start := time.Unix(0, 0).UTC()
	end := time.Now().UTC()
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return start, end, fmt.Errorf("parsing --from: %w", err)
		}
		start = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return start, end, fmt.Errorf("parsing --to: %w", err)
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}
