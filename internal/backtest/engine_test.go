package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/event"
	"backsim/internal/strategy/builtins"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

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

// hourBars builds flat hourly bars (open = high = low = close) one hour
// apart, starting at t0.
func hourBars(t *testing.T, pair domain.TradingPair, closes ...string) []domain.Bar {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		price := d(c)
		bar, err := domain.NewBar(pair, domain.Timeframe1h,
			t0.Add(time.Duration(i)*time.Hour),
			price, price, price, price, d("10"))
		if err != nil {
			t.Fatalf("NewBar: %v", err)
		}
		bars[i] = bar
	}
	return bars
}

// scripted returns pre-built signals keyed by OnBar invocation index.
type scripted struct {
	signals     map[int]*domain.Signal
	calls       int
	initialized int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Initialize(warmup []domain.Bar) { s.initialized = len(warmup) }

func (s *scripted) OnBar(_ domain.Bar) *domain.Signal {
	sig := s.signals[s.calls]
	s.calls++
	return sig
}

func (s *scripted) Reset() {
	s.calls = 0
	s.initialized = 0
}

func (s *scripted) PerformanceStats() map[string]any {
	return map[string]any{"scripted_signals": len(s.signals)}
}

// frictionlessConfig removes fees and slippage so cash arithmetic in tests
// stays exact.
func frictionlessConfig() Config {
	cfg := DefaultConfig()
	cfg.MakerFee = decimal.Zero
	cfg.TakerFee = decimal.Zero
	cfg.SlippagePct = decimal.Zero
	cfg.WarmupBars = 0
	return cfg
}

func TestEngineRoundTrip(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "100", "100", "110", "110")

	strat := &scripted{signals: map[int]*domain.Signal{
		0: {Pair: pair, Type: domain.SignalBuy, Price: d("100"), CreatedAt: t0},
		// A second buy while the position is open must be ignored.
		2: {Pair: pair, Type: domain.SignalBuy, Price: d("100"), CreatedAt: t0},
		3: {Pair: pair, Type: domain.SignalCloseLong, Price: d("110"), CreatedAt: t0},
	}}

	engine := NewEngine(frictionlessConfig(), strat, nil, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if engine.State() != StateFinalized {
		t.Errorf("state = %q, want finalized", engine.State())
	}
	if result.BarsProcessed != 5 {
		t.Errorf("BarsProcessed = %d, want 5", result.BarsProcessed)
	}

	// Sizing: 95% of 10000 at price 100 buys 95 units. The order fills on
	// the next bar at 100, closing at 110 realizes (110-100)*95 = 950.
	if !result.Portfolio.Cash.Equal(d("10950")) {
		t.Errorf("final cash = %s, want 10950", result.Portfolio.Cash)
	}
	if !result.Portfolio.TotalPnL.Equal(d("950")) {
		t.Errorf("total pnl = %s, want 950", result.Portfolio.TotalPnL)
	}
	if result.Portfolio.OpenPositions != 0 || result.Portfolio.ClosedPositions != 1 {
		t.Errorf("positions open/closed = %d/%d, want 0/1",
			result.Portfolio.OpenPositions, result.Portfolio.ClosedPositions)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want opening + closing", len(result.Trades))
	}
	if result.Trades[0].RealizedPnL != nil {
		t.Error("opening trade should carry no realized P&L")
	}
	if result.Trades[1].RealizedPnL == nil || !result.Trades[1].RealizedPnL.Equal(d("950")) {
		t.Errorf("closing trade pnl = %v, want 950", result.Trades[1].RealizedPnL)
	}

	if math.Abs(result.Metrics.TotalReturn-0.095) > 1e-12 {
		t.Errorf("total return = %v, want 0.095", result.Metrics.TotalReturn)
	}
	if result.Metrics.TotalTrades != 2 || result.Metrics.WinningTrades != 1 {
		t.Errorf("metrics trades = %d winners = %d, want 2 and 1",
			result.Metrics.TotalTrades, result.Metrics.WinningTrades)
	}
	if len(result.EquityCurve) != 5 {
		t.Errorf("equity curve has %d samples, want one per bar", len(result.EquityCurve))
	}
	if result.Strategy["scripted_signals"] != 3 {
		t.Errorf("strategy stats = %v, want scripted_signals 3", result.Strategy)
	}
}

func TestEngineOrdersFillOnNextBar(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "102")

	cfg := frictionlessConfig()
	cfg.TakerFee = d("0.001")
	cfg.SlippagePct = d("0.0005")

	strat := &scripted{signals: map[int]*domain.Signal{
		0: {Pair: pair, Type: domain.SignalBuy, Price: d("100"), CreatedAt: t0},
	}}

	engine := NewEngine(cfg, strat, nil, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want fill + force close", len(result.Trades))
	}
	fill := result.Trades[0]

	// The order placed on the first bar fills against the second bar at
	// close * (1 + slippage) = 102 * 1.0005.
	if !fill.ExecutedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("fill executed at %v, want the second bar", fill.ExecutedAt)
	}
	if !fill.Price.Equal(d("102.051")) {
		t.Errorf("fill price = %s, want 102.051", fill.Price)
	}
	if !fill.Size.Equal(d("95")) {
		t.Errorf("fill size = %s, want 95", fill.Size)
	}
	if !fill.Commission.Equal(d("9.694845")) {
		t.Errorf("commission = %s, want 9.694845", fill.Commission)
	}

	// The run ends with the position force-closed at the final close.
	if result.Portfolio.OpenPositions != 0 {
		t.Errorf("open positions = %d, want 0 after force close", result.Portfolio.OpenPositions)
	}
	forceClose := result.Trades[1]
	if forceClose.RealizedPnL == nil || !forceClose.RealizedPnL.Equal(d("-4.845")) {
		t.Errorf("force close pnl = %v, want -4.845", forceClose.RealizedPnL)
	}
}

func TestEngineWarmup(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "101", "102", "103", "104")

	cfg := frictionlessConfig()
	cfg.WarmupBars = 2

	strat := &scripted{signals: map[int]*domain.Signal{}}
	engine := NewEngine(cfg, strat, nil, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if strat.initialized != 2 {
		t.Errorf("Initialize saw %d bars, want 2", strat.initialized)
	}
	if strat.calls != 3 {
		t.Errorf("OnBar called %d times, want 3", strat.calls)
	}
	if result.BarsProcessed != 3 {
		t.Errorf("BarsProcessed = %d, want bars after warm-up only", result.BarsProcessed)
	}
}

func TestEngineDropsExpiredSignals(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "100")

	strat := &scripted{signals: map[int]*domain.Signal{
		0: {
			Pair:      pair,
			Type:      domain.SignalBuy,
			Price:     d("100"),
			CreatedAt: t0.Add(-2 * time.Hour),
			ExpiresAt: t0.Add(-time.Hour),
		},
	}}

	engine := NewEngine(frictionlessConfig(), strat, nil, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 0 {
		t.Errorf("expired signal produced %d trades, want 0", len(result.Trades))
	}
	if !result.Portfolio.Cash.Equal(d("10000")) {
		t.Errorf("cash = %s, want untouched 10000", result.Portfolio.Cash)
	}
}

func TestEngineSellSignalClosesAtSignalPrice(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "100", "110")

	strat := &scripted{signals: map[int]*domain.Signal{
		0: {Pair: pair, Type: domain.SignalBuy, Price: d("100"), CreatedAt: t0},
		// Sell closes at the signal price, not the bar close.
		2: {Pair: pair, Type: domain.SignalSell, Price: d("108"), CreatedAt: t0},
	}}

	engine := NewEngine(frictionlessConfig(), strat, nil, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// (108 - 100) * 95 = 760.
	if !result.Portfolio.TotalPnL.Equal(d("760")) {
		t.Errorf("total pnl = %s, want 760", result.Portfolio.TotalPnL)
	}
	if !result.Portfolio.Cash.Equal(d("10760")) {
		t.Errorf("cash = %s, want 10760", result.Portfolio.Cash)
	}
}

func TestEngineFundsRejectedWhenSlippageOutrunsCash(t *testing.T) {
	pair := btcusdt(t)
	bars := hourBars(t, pair, "100", "100")

	// 10% slippage pushes the fill to 110: 95 units * 110 = 10450 exceeds
	// the 10000 available, so the fill cannot open a position.
	cfg := frictionlessConfig()
	cfg.SlippagePct = d("0.10")

	strat := &scripted{signals: map[int]*domain.Signal{
		0: {Pair: pair, Type: domain.SignalBuy, Price: d("100"), CreatedAt: t0},
	}}

	bus := event.NewBus()
	rejections := 0
	bus.Subscribe("funds.rejected", func(e event.Event) {
		rejections++
		rej := e.(event.FundsRejected)
		if !rej.Required.Equal(d("10450")) {
			t.Errorf("required = %s, want 10450", rej.Required)
		}
	})

	engine := NewEngine(cfg, strat, bus, nil)
	result, err := engine.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rejections != 1 {
		t.Errorf("funds.rejected published %d times, want 1", rejections)
	}
	if result.Portfolio.OpenPositions != 0 || result.Portfolio.ClosedPositions != 0 {
		t.Error("rejected fill must not create a position")
	}
	// The fill itself is still part of the trade history.
	if len(result.Trades) != 1 {
		t.Errorf("got %d trades, want the rejected fill only", len(result.Trades))
	}
}

func TestEngineDeterministicReplay(t *testing.T) {
	pair := btcusdt(t)

	// Triangle wave with enough swings to trigger several crossovers.
	closes := make([]string, 0, 60)
	price := 100
	up := true
	for i := 0; i < 60; i++ {
		closes = append(closes, decimal.NewFromInt(int64(price)).String())
		if up {
			price += 3
			if price >= 121 {
				up = false
			}
		} else {
			price -= 3
			if price <= 91 {
				up = true
			}
		}
	}
	bars := hourBars(t, pair, closes...)

	cfg := DefaultConfig()
	cfg.WarmupBars = 0

	run := func() *Result {
		strat := builtins.NewSMACross(pair, domain.Timeframe1h, 3, 6, 0.02, 0.04)
		engine := NewEngine(cfg, strat, nil, nil)
		result, err := engine.Run(bars)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	first := run()
	second := run()

	if len(first.Trades) == 0 {
		t.Fatal("expected the crossover strategy to trade on this series")
	}
	if first.Metrics != second.Metrics {
		t.Errorf("metrics differ between runs:\n%+v\n%+v", first.Metrics, second.Metrics)
	}
	if first.BarsProcessed != second.BarsProcessed {
		t.Errorf("bars processed differ: %d vs %d", first.BarsProcessed, second.BarsProcessed)
	}
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		a, b := first.Trades[i], second.Trades[i]
		if !a.Price.Equal(b.Price) || !a.Size.Equal(b.Size) || !a.ExecutedAt.Equal(b.ExecutedAt) {
			t.Errorf("trade %d differs: %s@%s vs %s@%s", i, a.Size, a.Price, b.Size, b.Price)
		}
	}
	if len(first.EquityCurve) != len(second.EquityCurve) {
		t.Fatalf("equity curves differ in length: %d vs %d", len(first.EquityCurve), len(second.EquityCurve))
	}
	for i := range first.EquityCurve {
		if !first.EquityCurve[i].Equity.Equal(second.EquityCurve[i].Equity) {
			t.Errorf("equity sample %d differs: %s vs %s",
				i, first.EquityCurve[i].Equity, second.EquityCurve[i].Equity)
		}
	}
}

func TestEngineRequiresStrategy(t *testing.T) {
	engine := NewEngine(frictionlessConfig(), nil, nil, nil)
	if _, err := engine.Run(nil); err == nil {
		t.Fatal("Run without a strategy should fail")
	}
}
