// Package store defines storage interfaces for persisting and retrieving bar
// series and backtest runs.
package store

import (
	"context"
	"errors"
	"time"

	"eulerbt/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SeriesKey identifies one bar series.
type SeriesKey struct {
	Market   string // e.g. "twf", "us"
	Symbol   string
	Interval string // e.g. "1m", "1d"
}

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for the series, merging with any
	// bars already stored.
	WriteBars(ctx context.Context, key SeriesKey, bars []domain.Bar) error

	// ReadBars returns the series' bars within [start, end], ordered by
	// timestamp.
	ReadBars(ctx context.Context, key SeriesKey, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bars for a market and
	// interval.
	ListSymbols(ctx context.Context, market, interval string) ([]string, error)
}

// RunRecord is a persisted backtest run.
type RunRecord struct {
	ID        string
	Strategy  string
	Symbol    string
	CreatedAt time.Time
	BarCount  int
	Final     domain.PositionState
	Totals    domain.RunTotals
	Events    []domain.TradeEvent
}

// RunStore persists backtest runs and their trade logs.
type RunStore interface {
	// SaveRun inserts a run together with its events.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a run, including its events, by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs without events, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
