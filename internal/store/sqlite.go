package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/portfolio"

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
	id               TEXT PRIMARY KEY,
	strategy         TEXT NOT NULL,
	pair             TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	started_at       INTEGER NOT NULL,
	finished_at      INTEGER NOT NULL,
	initial_capital  REAL NOT NULL,
	final_equity     REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	win_rate_pct     REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	bars_processed   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	trade_id     TEXT NOT NULL,
	pair         TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        TEXT NOT NULL,
	size         TEXT NOT NULL,
	commission   TEXT NOT NULL,
	realized_pnl TEXT,
	executed_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_equity (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	timestamp INTEGER NOT NULL,
	equity    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id);
CREATE INDEX IF NOT EXISTS idx_run_equity_run ON run_equity(run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists the run summary, trade history, and equity curve in one
// transaction. Decimals are stored as text to preserve precision.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, trades []*domain.Trade, curve []portfolio.EquityPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, strategy, pair, timeframe, started_at, finished_at,
			initial_capital, final_equity, total_return_pct, sharpe_ratio,
			max_drawdown_pct, win_rate_pct, total_trades, bars_processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Pair, run.Timeframe,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.InitialCapital, run.FinalEquity, run.TotalReturnPct, run.SharpeRatio,
		run.MaxDrawdownPct, run.WinRatePct, run.TotalTrades, run.BarsProcessed)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, t := range trades {
		var pnl any
		if t.RealizedPnL != nil {
			pnl = t.RealizedPnL.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_trades (
				run_id, trade_id, pair, side, price, size, commission,
				realized_pnl, executed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, t.ID.String(), t.Pair.String(), string(t.Side),
			t.Price.String(), t.Size.String(), t.Commission.String(),
			pnl, t.ExecutedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("inserting trade %s: %w", t.ID, err)
		}
	}

	for _, p := range curve {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_equity (run_id, timestamp, equity) VALUES (?, ?, ?)`,
			run.ID, p.Timestamp.UnixMilli(), p.Equity.String())
		if err != nil {
			return fmt.Errorf("inserting equity sample: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a single run summary by its ID. A missing run yields
// sql.ErrNoRows.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, pair, timeframe, started_at, finished_at,
			initial_capital, final_equity, total_return_pct, sharpe_ratio,
			max_drawdown_pct, win_rate_pct, total_trades, bars_processed
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recently finished runs, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, pair, timeframe, started_at, finished_at,
			initial_capital, final_equity, total_return_pct, sharpe_ratio,
			max_drawdown_pct, win_rate_pct, total_trades, bars_processed
		FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RunEquity returns the stored equity curve for a run, ordered by timestamp.
func (s *SQLiteStore) RunEquity(ctx context.Context, runID string) ([]portfolio.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, equity FROM run_equity
		WHERE run_id = ? ORDER BY timestamp`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curve []portfolio.EquityPoint
	for rows.Next() {
		var ts int64
		var equity string
		if err := rows.Scan(&ts, &equity); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(equity)
		if err != nil {
			return nil, fmt.Errorf("parsing equity %q: %w", equity, err)
		}
		curve = append(curve, portfolio.EquityPoint{
			Timestamp: time.UnixMilli(ts).UTC(),
			Equity:    value,
		})
	}
	return curve, rows.Err()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt int64
	err := row.Scan(
		&run.ID, &run.Strategy, &run.Pair, &run.Timeframe,
		&startedAt, &finishedAt,
		&run.InitialCapital, &run.FinalEquity, &run.TotalReturnPct,
		&run.SharpeRatio, &run.MaxDrawdownPct, &run.WinRatePct,
		&run.TotalTrades, &run.BarsProcessed)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.FinishedAt = time.UnixMilli(finishedAt).UTC()
	return &run, nil
}
