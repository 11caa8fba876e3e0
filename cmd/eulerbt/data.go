package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"eulerbt/internal/gather"
	"eulerbt/internal/ingest"
	"eulerbt/internal/store"
	"eulerbt/internal/util"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		csvPath string
		key     store.SeriesKey
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV bar file into the parquet store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" || key.Symbol == "" {
				return fmt.Errorf("--csv and --symbol are required")
			}
			bars, err := readCSVFile(csvPath, key.Symbol, time.UTC)
			if err != nil {
				return err
			}

			bs := store.NewParquetStore(a.cfg.Storage.DataDir)
			if err := bs.WriteBars(cmd.Context(), key, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
			a.log.Info("import complete", "symbol", key.Symbol, "market", key.Market, "interval", key.Interval, "bars", len(bars))
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to import")
	cmd.Flags().StringVar(&key.Symbol, "symbol", "", "symbol to store the bars under")
	cmd.Flags().StringVar(&key.Market, "market", "twf", "market")
	cmd.Flags().StringVar(&key.Interval, "interval", "1m", "bar interval")
	return cmd
}

func newSymbolsCmd(a *app) *cobra.Command {
	var market, interval string
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List the symbols stored for a market and interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs := store.NewParquetStore(a.cfg.Storage.DataDir)
			symbols, err := bs.ListSymbols(cmd.Context(), market, interval)
			if err != nil {
				return err
			}
			if len(symbols) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no %s/%s series stored\n", market, interval)
				return nil
			}
			for _, sym := range symbols {
				fmt.Fprintln(cmd.OutOrStdout(), sym)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&market, "market", "twf", "market")
	cmd.Flags().StringVar(&interval, "interval", "1m", "bar interval")
	return cmd
}

func newResampleCmd(a *app) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Aggregate a minute-bar CSV into session-aligned daily bars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || out == "" {
				return fmt.Errorf("--in and --out are required")
			}
			cal, err := util.NewSessionCalendar(a.cfg.Session.CloseTime, a.cfg.Session.Timezone)
			if err != nil {
				return err
			}

			bars, err := readCSVFile(in, "", cal.Location())
			if err != nil {
				return err
			}
			daily := ingest.ResampleDaily(bars, cal)

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()
			if err := ingest.WriteCSV(file, daily); err != nil {
				return err
			}
			a.log.Info("resample complete", "in", len(bars), "out", len(daily), "file", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "minute-bar CSV")
	cmd.Flags().StringVar(&out, "out", "", "daily CSV to write")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		key      store.SeriesKey
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download historical bars from Alpaca into the parquet store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key.Symbol == "" || from == "" {
				return fmt.Errorf("--symbol and --from are required")
			}
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}

			ac := a.cfg.Alpaca
			g, err := gather.NewAlpacaBarGatherer(ac.APIKey, ac.APISecret, ac.DataURL, ac.Feed,
				store.NewParquetStore(a.cfg.Storage.DataDir), key,
				gather.DateRange{Start: start, End: end}, ac.RateLimit)
			if err != nil {
				return err
			}
			a.log.Info("starting gatherer", "name", g.Name(), "symbol", key.Symbol)
			return g.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&key.Symbol, "symbol", "", "symbol to fetch")
	cmd.Flags().StringVar(&key.Market, "market", "us", "market to store the bars under")
	cmd.Flags().StringVar(&key.Interval, "interval", "1d", "bar interval: 1m, 1h or 1d")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), default today")
	return cmd
}
