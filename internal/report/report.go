// Package report renders backtest results as text and CSV.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"

	"eulerbt/internal/domain"
	"eulerbt/internal/strategy"
)

// Options controls optional report sections.
type Options struct {
	// Forecast is the predictor's estimate for the bar after the series.
	Forecast    float64
	HasForecast bool
}

// Summary holds per-round-trip statistics derived from the event log.
type Summary struct {
	RoundTrips   int
	Wins         int
	WinRate      float64
	MeanRealized float64
}

// Summarize computes round-trip statistics. Rates are zero when no position
// was ever closed.
func Summarize(events []domain.TradeEvent) Summary {
	var (
		s        Summary
		realized []float64
	)
	for _, e := range events {
		if e.Side != domain.SideSell {
			continue
		}
		s.RoundTrips++
		if e.RealizedProfit.IsPositive() {
			s.Wins++
		}
		realized = append(realized, e.RealizedProfit.InexactFloat64())
	}
	if s.RoundTrips == 0 {
		return s
	}

	s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	if mean, err := stats.Mean(realized); err == nil {
		s.MeanRealized = mean
	}
	return s
}

// Write prints the signal log followed by the summary table.
func Write(w io.Writer, res *strategy.Result, opts Options) error {
	var b strings.Builder

	b.WriteString("=== Signals ===\n")
	if len(res.Events) == 0 {
		b.WriteString("(no trades)\n")
	}
	for _, e := range res.Events {
		b.WriteString(eventLine(e))
		b.WriteByte('\n')
	}

	b.WriteString("\n=== Summary ===\n")
	sum := Summarize(res.Events)

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoWrapText(false)

	rows := [][]string{
		{"Strategy", res.Strategy},
		{"Bars", FormatInt(res.BarCount)},
		{"Gross profit", FormatMoney(res.Totals.GrossProfit)},
		{"Total fee", FormatMoney(res.Totals.TotalFee)},
		{"Total tax", FormatExact(res.Totals.TotalTax)},
		{"Trades", FormatInt(res.Totals.TradeCount)},
		{"Point value", FormatMoney(res.Costs.PointValue)},
		{"Net profit", FormatExact(res.Totals.NetProfit())},
		{"Round trips", FormatInt(sum.RoundTrips)},
		{"Win rate", FormatPct(sum.WinRate, sum.RoundTrips > 0)},
		{"Mean realized", printer.Sprintf("%.2f", sum.MeanRealized)},
		{"Final position", string(res.Final)},
	}
	if opts.HasForecast {
		rows = append(rows, []string{"Next forecast", printer.Sprintf("%.2f", opts.Forecast)})
	}
	table.AppendBulk(rows)
	table.Render()

	_, err := io.WriteString(w, b.String())
	return err
}

func eventLine(e domain.TradeEvent) string {
	line := fmt.Sprintf("#%d %s %-4s fill=%s notional=%s fee=%s tax=%s net=%s",
		e.Seq,
		e.Timestamp.Format(time.DateTime),
		strings.ToUpper(string(e.Side)),
		FormatMoney(e.FillPrice),
		FormatMoney(e.Notional),
		FormatMoney(e.Fee),
		FormatExact(e.Tax),
		FormatExact(e.NetCashFlow),
	)
	if e.Side == domain.SideSell {
		line += " realized=" + FormatExact(e.RealizedProfit)
	}
	if e.Reason != "" {
		line += "  " + e.Reason
	}
	return line
}

// tradeRow is the CSV shape of one trade event.
type tradeRow struct {
	Seq            int    `csv:"seq"`
	Timestamp      string `csv:"timestamp"`
	Side           string `csv:"side"`
	FillPrice      string `csv:"fill_price"`
	Notional       string `csv:"notional"`
	Fee            string `csv:"fee"`
	Tax            string `csv:"tax"`
	NetCashFlow    string `csv:"net_cash_flow"`
	RealizedProfit string `csv:"realized_profit"`
	Reason         string `csv:"reason"`
}

// WriteTradesCSV exports events as CSV. Money columns hold exact decimal
// strings; realized_profit is empty on buys.
func WriteTradesCSV(w io.Writer, events []domain.TradeEvent) error {
	rows := make([]tradeRow, len(events))
	for i, e := range events {
		rows[i] = tradeRow{
			Seq:         e.Seq,
			Timestamp:   e.Timestamp.Format(time.RFC3339),
			Side:        string(e.Side),
			FillPrice:   e.FillPrice.String(),
			Notional:    e.Notional.String(),
			Fee:         e.Fee.String(),
			Tax:         e.Tax.String(),
			NetCashFlow: e.NetCashFlow.String(),
			Reason:      e.Reason,
		}
		if e.Side == domain.SideSell {
			rows[i].RealizedProfit = e.RealizedProfit.String()
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing trades csv: %w", err)
	}
	return nil
}
