// Package store persists and retrieves bar history and finished backtest
// runs. Bars live in Parquet files on disk; run results live in SQLite.
package store

import (
	"context"
	"time"

	"backsim/internal/domain"
	"backsim/internal/portfolio"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the pair and timeframe within [start, end],
	// sorted by timestamp.
	ReadBars(ctx context.Context, pair domain.TradingPair, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListPairs returns all distinct compact symbols available for the venue
	// and timeframe.
	ListPairs(ctx context.Context, venue string, tf domain.Timeframe) ([]string, error)
}

// Run is the persisted summary of one finished backtest.
type Run struct {
	ID        string
	Strategy  string
	Pair      string
	Timeframe string

	StartedAt  time.Time
	FinishedAt time.Time

	InitialCapital float64
	FinalEquity    float64
	TotalReturnPct float64
	SharpeRatio    float64
	MaxDrawdownPct float64
	WinRatePct     float64
	TotalTrades    int
	BarsProcessed  int
}

// RunStore journals finished backtest runs with their trades and equity
// curves.
type RunStore interface {
	// SaveRun persists the run summary together with its trade history and
	// equity curve, atomically.
	SaveRun(ctx context.Context, run *Run, trades []*domain.Trade, curve []portfolio.EquityPoint) error

	// GetRun retrieves a single run summary by its ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent run summaries, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// RunEquity returns the stored equity curve for a run, in order.
	RunEquity(ctx context.Context, runID string) ([]portfolio.EquityPoint, error)
}
