package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"eulerbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	strategy     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	bar_count    INTEGER NOT NULL,
	final_state  TEXT NOT NULL,
	gross_profit TEXT NOT NULL,
	total_fee    TEXT NOT NULL,
	total_tax    TEXT NOT NULL,
	trade_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trade_events (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	ts              INTEGER NOT NULL,
	side            TEXT NOT NULL,
	fill_price      TEXT NOT NULL,
	notional        TEXT NOT NULL,
	fee             TEXT NOT NULL,
	tax             TEXT NOT NULL,
	net_cash_flow   TEXT NOT NULL,
	realized_profit TEXT NOT NULL,
	reason          TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and all of its events in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, symbol, created_at, bar_count, final_state,
			gross_profit, total_fee, total_tax, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.CreatedAt.UnixMilli(), run.BarCount, string(run.Final),
		run.Totals.GrossProfit.String(), run.Totals.TotalFee.String(), run.Totals.TotalTax.String(),
		run.Totals.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trade_events (run_id, seq, ts, side, fill_price, notional, fee, tax,
			net_cash_flow, realized_profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range run.Events {
		_, err := stmt.ExecContext(ctx,
			run.ID, ev.Seq, ev.Timestamp.UnixMilli(), string(ev.Side),
			ev.FillPrice.String(), ev.Notional.String(), ev.Fee.String(), ev.Tax.String(),
			ev.NetCashFlow.String(), ev.RealizedProfit.String(), ev.Reason,
		)
		if err != nil {
			return fmt.Errorf("inserting event %d of run %s: %w", ev.Seq, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run and its events by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, strategy, symbol, created_at, bar_count, final_state,
			gross_profit, total_fee, total_tax, trade_count
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, side, fill_price, notional, fee, tax, net_cash_flow, realized_profit, reason
		FROM trade_events WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev                                      domain.TradeEvent
			ts                                      int64
			side                                    string
			fill, notional, fee, tax, net, realized string
		)
		if err := rows.Scan(&ev.Seq, &ts, &side, &fill, &notional, &fee, &tax, &net, &realized, &ev.Reason); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts).UTC()
		ev.Side = domain.Side(side)
		if err := parseDecimals(
			[]string{fill, notional, fee, tax, net, realized},
			[]*decimal.Decimal{&ev.FillPrice, &ev.Notional, &ev.Fee, &ev.Tax, &ev.NetCashFlow, &ev.RealizedProfit},
		); err != nil {
			return nil, fmt.Errorf("event %d of run %s: %w", ev.Seq, id, err)
		}
		run.Events = append(run.Events, ev)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without their events.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, symbol, created_at, bar_count, final_state,
			gross_profit, total_fee, total_tax, trade_count
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		run             RunRecord
		createdAt       int64
		final           string
		gross, fee, tax string
	)
	err := sc.Scan(&run.ID, &run.Strategy, &run.Symbol, &createdAt, &run.BarCount, &final,
		&gross, &fee, &tax, &run.Totals.TradeCount)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.Final = domain.PositionState(final)
	if err := parseDecimals(
		[]string{gross, fee, tax},
		[]*decimal.Decimal{&run.Totals.GrossProfit, &run.Totals.TotalFee, &run.Totals.TotalTax},
	); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return &run, nil
}

func parseDecimals(src []string, dst []*decimal.Decimal) error {
	for i, s := range src {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*dst[i] = d
	}
	return nil
}
