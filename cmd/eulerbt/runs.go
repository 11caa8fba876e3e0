package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"eulerbt/internal/report"
	"eulerbt/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		id    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted backtest runs, or export one run's trade log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening run store: %w", err)
			}
			defer runs.Close()

			ctx, out := cmd.Context(), cmd.OutOrStdout()
			if id != "" {
				run, err := runs.GetRun(ctx, id)
				if err != nil {
					return err
				}
				return report.WriteTradesCSV(out, run.Events)
			}

			list, err := runs.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"ID", "Created", "Strategy", "Symbol", "Bars", "Trades", "Net", "Final"})
			for _, r := range list {
				table.Append([]string{
					r.ID,
					r.CreatedAt.Local().Format(time.DateTime),
					r.Strategy,
					r.Symbol,
					report.FormatInt(r.BarCount),
					report.FormatInt(r.Totals.TradeCount),
					report.FormatExact(r.Totals.NetProfit()),
					string(r.Final),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "export the trade log of this run as CSV")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
