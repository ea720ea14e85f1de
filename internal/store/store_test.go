package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/portfolio"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func btcusdt(t *testing.T) domain.TradingPair {
	t.Helper()
	pair, err := domain.NewTradingPair("BTC", "USDT", "")
	if err != nil {
		t.Fatalf("NewTradingPair: %v", err)
	}
	return pair
}

func barAt(t *testing.T, pair domain.TradingPair, ts time.Time, close string) domain.Bar {
	t.Helper()
	c := d(close)
	bar, err := domain.NewBar(pair, domain.Timeframe1h, ts, c, c, c, c, d("10"))
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	return bar
}

func TestParquetWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ps := NewParquetStore(t.TempDir())
	pair := btcusdt(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	bars := []domain.Bar{
		barAt(t, pair, t0, "50000"),
		barAt(t, pair, t0.Add(time.Hour), "50500"),
		barAt(t, pair, t0.Add(2*time.Hour), "51000"),
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, pair, domain.Timeframe1h, t0, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("read %d bars, want 3", len(got))
	}
	for i, bar := range got {
		if !bar.Timestamp.Equal(bars[i].Timestamp) {
			t.Errorf("bar %d timestamp = %v, want %v", i, bar.Timestamp, bars[i].Timestamp)
		}
		if !bar.Close.Equal(bars[i].Close) {
			t.Errorf("bar %d close = %s, want %s", i, bar.Close, bars[i].Close)
		}
	}

	// A narrower window filters by timestamp.
	got, err = ps.ReadBars(ctx, pair, domain.Timeframe1h, t0.Add(time.Hour), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || !got[0].Close.Equal(d("50500")) {
		t.Fatalf("windowed read returned %d bars, want the middle bar", len(got))
	}
}

func TestParquetMergeOnWrite(t *testing.T) {
	ctx := context.Background()
	ps := NewParquetStore(t.TempDir())
	pair := btcusdt(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first := []domain.Bar{
		barAt(t, pair, t0, "50000"),
		barAt(t, pair, t0.Add(time.Hour), "50500"),
	}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Second batch overlaps at t0+1h with a corrected close and adds a bar.
	second := []domain.Bar{
		barAt(t, pair, t0.Add(time.Hour), "50600"),
		barAt(t, pair, t0.Add(2*time.Hour), "51000"),
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, pair, domain.Timeframe1h, t0, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("merged file has %d bars, want 3", len(got))
	}
	if !got[1].Close.Equal(d("50600")) {
		t.Errorf("overlapping bar close = %s, want the incoming 50600", got[1].Close)
	}
}

func TestParquetReadMissingFile(t *testing.T) {
	ctx := context.Background()
	ps := NewParquetStore(t.TempDir())
	pair := btcusdt(t)

	got, err := ps.ReadBars(ctx, pair, domain.Timeframe1h,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars on missing data: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("read %d bars from empty store, want 0", len(got))
	}
}

func TestParquetListPairs(t *testing.T) {
	ctx := context.Background()
	ps := NewParquetStore(t.TempDir())
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	btc := btcusdt(t)
	eth, _ := domain.NewTradingPair("ETH", "USDT", "")
	if err := ps.WriteBars(ctx, []domain.Bar{barAt(t, btc, t0, "50000"), barAt(t, eth, t0, "3000")}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListPairs(ctx, domain.DefaultVenue, domain.Timeframe1h)
	if err != nil {
		t.Fatalf("ListPairs: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Errorf("ListPairs = %v, want [BTCUSDT ETHUSDT]", symbols)
	}
}

func TestSQLiteRunJournal(t *testing.T) {
	ctx := context.Background()
	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "backsim.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer ss.Close()

	pair := btcusdt(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	opening, err := domain.NewTrade(uuid.New(), pair, domain.OrderSideBuy, d("50000"), d("0.1"), d("5"), t0)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	closing, err := domain.NewTrade(uuid.New(), pair, domain.OrderSideSell, d("55000"), d("0.1"), decimal.Zero, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	pnl := d("500")
	closing.RealizedPnL = &pnl

	curve := []portfolio.EquityPoint{
		{Timestamp: t0, Equity: d("10000")},
		{Timestamp: t0.Add(time.Hour), Equity: d("10500")},
	}

	run := &Run{
		ID:             uuid.NewString(),
		Strategy:       "sma-cross",
		Pair:           pair.String(),
		Timeframe:      "1h",
		StartedAt:      t0,
		FinishedAt:     t0.Add(time.Hour),
		InitialCapital: 10000,
		FinalEquity:    10500,
		TotalReturnPct: 5,
		SharpeRatio:    1.2,
		MaxDrawdownPct: 0,
		WinRatePct:     50,
		TotalTrades:    2,
		BarsProcessed:  2,
	}

	if err := ss.SaveRun(ctx, run, []*domain.Trade{opening, closing}, curve); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := ss.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != "sma-cross" || got.Pair != "BTC/USDT" {
		t.Errorf("GetRun = %+v, want the saved summary", got)
	}
	if got.FinalEquity != 10500 || got.TotalTrades != 2 {
		t.Errorf("GetRun numbers = %f/%d, want 10500/2", got.FinalEquity, got.TotalTrades)
	}
	if !got.FinishedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, t0.Add(time.Hour))
	}

	runs, err := ss.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("ListRuns = %+v, want the single saved run", runs)
	}

	gotCurve, err := ss.RunEquity(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunEquity: %v", err)
	}
	if len(gotCurve) != 2 {
		t.Fatalf("RunEquity returned %d samples, want 2", len(gotCurve))
	}
	if !gotCurve[1].Equity.Equal(d("10500")) {
		t.Errorf("equity sample = %s, want 10500", gotCurve[1].Equity)
	}
}

func TestSQLiteGetRunMissing(t *testing.T) {
	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "backsim.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer ss.Close()

	_, err = ss.GetRun(context.Background(), "no-such-run")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetRun error = %v, want sql.ErrNoRows", err)
	}
}
