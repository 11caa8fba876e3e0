// Package ingest loads bar series from CSV files and aggregates intraday bars
// into session-aligned daily bars.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"eulerbt/internal/domain"
)

var (
	// ErrMissingColumn is returned when a required CSV column is absent.
	ErrMissingColumn = errors.New("missing column")

	// ErrNonFinite is returned for NaN or infinite prices and volumes.
	ErrNonFinite = errors.New("non-finite value")
)

// timeColumns are the accepted names of the timestamp column, in priority
// order.
var timeColumns = []string{"ts", "date", "datetime", "time", "timestamp"}

var layouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
}

// LoadCSV reads a bar series from r. Timestamps without a zone are taken as
// UTC.
func LoadCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	return LoadCSVIn(r, symbol, time.UTC)
}

// LoadCSVIn reads a bar series from r, interpreting zone-less timestamps in
// loc. The result is sorted by timestamp.
func LoadCSVIn(r io.Reader, symbol string, loc *time.Location) ([]domain.Bar, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	if len(rows) == 0 {
		return bars, nil
	}

	tcol, err := columns(rows[0])
	if err != nil {
		return nil, err
	}

	for i, raw := range rows {
		row := normalize(raw)
		line := i + 2 // header is line 1

		ts, err := parseTime(row[tcol], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var b domain.Bar
		b.Symbol = symbol
		b.Timestamp = ts
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[f.name]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing %s: %w", line, f.name, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: %w: %s is %v", line, ErrNonFinite, f.name, v)
			}
			*f.dst = v
		}

		if s := strings.TrimSpace(row["volume"]); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing volume: %w", line, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: %w: volume is %v", line, ErrNonFinite, v)
			}
			b.Volume = int64(v)
		}

		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// columns checks the header (taken from the first row) and returns the name
// of the timestamp column.
func columns(first map[string]string) (string, error) {
	row := normalize(first)

	tcol := ""
	for _, c := range timeColumns {
		if _, ok := row[c]; ok {
			tcol = c
			break
		}
	}
	if tcol == "" {
		return "", fmt.Errorf("%w: one of %s", ErrMissingColumn, strings.Join(timeColumns, ", "))
	}

	for _, c := range []string{"open", "high", "low", "close"} {
		if _, ok := row[c]; !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return tcol, nil
}

func normalize(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// dailyRow is the CSV shape written by WriteCSV.
type dailyRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// WriteCSV writes bars as date,open,high,low,close,volume rows.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	rows := make([]dailyRow, len(bars))
	for i, b := range bars {
		rows[i] = dailyRow{
			Date:   b.Timestamp.Format("2006-01-02"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
