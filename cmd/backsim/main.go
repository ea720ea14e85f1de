// backsim replays historical bars through a strategy and prints the
// performance report as JSON.
//
// Usage:
//
//	go run cmd/backsim/main.go
//
// The config path defaults to config/backsim.yaml and can be overridden with
// BACKSIM_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"backsim/internal/backtest"
	"backsim/internal/config"
	"backsim/internal/domain"
	"backsim/internal/event"
	"backsim/internal/store"
	"backsim/internal/strategy"
	"backsim/internal/strategy/builtins"
	"backsim/internal/util"
)

func main() {
	// Environment variables from .env take effect before config loading.
	_ = godotenv.Load()

	cfgPath := "config/backsim.yaml"
	if p := os.Getenv("BACKSIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = config.Default()
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pair, err := domain.ParsePair(cfg.Backtest.Pair, "")
	if err != nil {
		log.Fatalf("invalid pair %q: %v", cfg.Backtest.Pair, err)
	}
	tf, err := domain.ParseTimeframe(cfg.Backtest.Timeframe)
	if err != nil {
		log.Fatalf("invalid timeframe %q: %v", cfg.Backtest.Timeframe, err)
	}
	start, end, err := replayWindow(cfg.Backtest.StartDate, cfg.Backtest.EndDate)
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	ctx := context.Background()

	bars, err := store.NewParquetStore(cfg.Storage.DataDir).ReadBars(ctx, pair, tf, start, end)
	if err != nil {
		log.Fatalf("reading bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no bars for %s %s in %s..%s under %s",
			pair, tf, start.Format("2006-01-02"), end.Format("2006-01-02"), cfg.Storage.DataDir)
	}
	logger.Info("loaded bars", "pair", pair.String(), "timeframe", tf.String(), "count", len(bars))

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(pair, tf,
		cfg.Strategy.FastPeriod, cfg.Strategy.SlowPeriod,
		cfg.Strategy.StopLossPct, cfg.Strategy.TakeProfitPct))

	strat, ok := registry.Get(cfg.Strategy.Name)
	if !ok {
		log.Fatalf("unknown strategy %q, available: %v", cfg.Strategy.Name, registry.List())
	}

	bus := event.NewBus()
	bus.Subscribe("funds.rejected", func(e event.Event) {
		rej := e.(event.FundsRejected)
		logger.Warn("fill rejected for insufficient funds",
			"pair", rej.Pair.String(), "required", rej.Required, "available", rej.Available)
	})

	engineCfg := backtest.Config{
		InitialCapital: decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		MakerFee:       decimal.NewFromFloat(cfg.Backtest.MakerFee),
		TakerFee:       decimal.NewFromFloat(cfg.Backtest.TakerFee),
		SlippagePct:    decimal.NewFromFloat(cfg.Backtest.SlippagePct),
		Leverage:       decimal.NewFromFloat(cfg.Backtest.Leverage),
		WarmupBars:     cfg.Backtest.WarmupBars,
		RiskFreeRate:   cfg.Backtest.RiskFreeRate,
		PeriodsPerYear: cfg.Backtest.PeriodsPerYear,
	}

	startedAt := time.Now().UTC()
	result, err := backtest.NewEngine(engineCfg, strat, bus, logger).Run(bars)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if err := journalRun(ctx, cfg, strat.Name(), pair, tf, startedAt, result); err != nil {
		logger.Error("journaling run failed", "error", err)
	}

	report := struct {
		Strategy  map[string]any `json:"strategy"`
		Portfolio any            `json:"portfolio"`
		Metrics   any            `json:"metrics"`
		Bars      int            `json:"bars_processed"`
	}{
		Strategy:  result.Strategy,
		Portfolio: result.Portfolio,
		Metrics:   result.Metrics,
		Bars:      result.BarsProcessed,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("encoding report: %v", err)
	}
}

// replayWindow parses the configured date range. Empty dates widen to all
// available history.
func replayWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC()

	var err error
	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		// Include the whole end day.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

// journalRun persists the run summary, trades, and equity curve to SQLite.
func journalRun(ctx context.Context, cfg *config.Config, stratName string, pair domain.TradingPair, tf domain.Timeframe, startedAt time.Time, result *backtest.Result) error {
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	run := &store.Run{
		ID:             uuid.NewString(),
		Strategy:       stratName,
		Pair:           pair.String(),
		Timeframe:      tf.String(),
		StartedAt:      startedAt,
		FinishedAt:     time.Now().UTC(),
		InitialCapital: cfg.Backtest.InitialCapital,
		FinalEquity:    result.Portfolio.Cash.InexactFloat64(),
		TotalReturnPct: result.Metrics.TotalReturnPct,
		SharpeRatio:    result.Metrics.SharpeRatio,
		MaxDrawdownPct: result.Metrics.MaxDrawdownPct,
		WinRatePct:     result.Metrics.WinRatePct,
		TotalTrades:    result.Metrics.TotalTrades,
		BarsProcessed:  result.BarsProcessed,
	}
	return runs.SaveRun(ctx, run, result.Trades, result.EquityCurve)
}
