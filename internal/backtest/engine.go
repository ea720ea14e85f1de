// Package backtest drives the replay loop: it feeds historical bars through
// the matching engine, the portfolio ledger, and a strategy, then hands the
// finished equity curve and trade history to the metrics calculator.
package backtest

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/event"
	"backsim/internal/exchange"
	"backsim/internal/metrics"
	"backsim/internal/portfolio"
	"backsim/internal/strategy"
)

// State is the lifecycle phase of a backtest run.
type State string

const (
	StateIdle             State = "idle"
	StateWarmingUp        State = "warming_up"
	StateRunning          State = "running"
	StateClosingPositions State = "closing_positions"
	StateFinalized        State = "finalized"
)

// sizingFraction is the share of available cash committed on a buy signal.
// Deliberately simplistic; this is not general position sizing.
const sizingFraction = 0.95

// Config holds the numeric knobs of a backtest.
type Config struct {
	InitialCapital decimal.Decimal
	MakerFee       decimal.Decimal
	TakerFee       decimal.Decimal
	SlippagePct    decimal.Decimal
	Leverage       decimal.Decimal
	WarmupBars     int
	RiskFreeRate   float64
	PeriodsPerYear int
}

// DefaultConfig returns the documented defaults: 10,000 capital, 0.1% fees,
// 0.05% slippage, 1x leverage, 100 warm-up bars, 2% risk-free rate, 252
// periods per year.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(10000),
		MakerFee:       decimal.NewFromFloat(0.001),
		TakerFee:       decimal.NewFromFloat(0.001),
		SlippagePct:    decimal.NewFromFloat(0.0005),
		Leverage:       decimal.NewFromInt(1),
		WarmupBars:     100,
		RiskFreeRate:   0.02,
		PeriodsPerYear: 252,
	}
}

// Result is the merged report of a finished run.
type Result struct {
	Portfolio     portfolio.Stats         `json:"portfolio"`
	Metrics       metrics.Report          `json:"metrics"`
	Strategy      map[string]any          `json:"strategy"`
	BarsProcessed int                     `json:"bars_processed"`
	EquityCurve   []portfolio.EquityPoint `json:"equity_curve"`
	Trades        []*domain.Trade         `json:"trades"`
}

// Engine replays bars through a strategy. It owns no position or order
// state itself, only the iteration cursor and the wiring between the
// matching engine, the ledger, and the strategy.
type Engine struct {
	cfg    Config
	strat  strategy.Strategy
	sim    *exchange.Simulator
	ledger *portfolio.Ledger
	bus    *event.Bus
	log    *slog.Logger

	state         State
	barsProcessed int
}

// NewEngine wires an Engine with its collaborators. The bus may be nil when
// no event sink is needed; a nil logger falls back to slog.Default().
func NewEngine(cfg Config, strat strategy.Strategy, bus *event.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Leverage.IsPositive() {
		cfg.Leverage = decimal.NewFromInt(1)
	}
	return &Engine{
		cfg:   cfg,
		strat: strat,
		sim: exchange.NewSimulator(exchange.Config{
			MakerFee:    cfg.MakerFee,
			TakerFee:    cfg.TakerFee,
			SlippagePct: cfg.SlippagePct,
		}, logger),
		ledger: portfolio.NewLedger(cfg.InitialCapital, cfg.Leverage, logger),
		bus:    bus,
		log:    logger,
		state:  StateIdle,
	}
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	return e.state
}

// Run replays the bars in order and returns the merged result. The replay is
// strictly synchronous and deterministic: identical inputs reproduce
// identical equity curves and trade lists.
func (e *Engine) Run(bars []domain.Bar) (*Result, error) {
	if e.strat == nil {
		return nil, errors.New("backtest: strategy is required")
	}

	e.reset()
	e.log.Info("starting backtest",
		"strategy", e.strat.Name(), "bars", len(bars), "warmup", e.cfg.WarmupBars)

	start := 0
	if len(bars) > e.cfg.WarmupBars {
		e.state = StateWarmingUp
		e.strat.Initialize(bars[:e.cfg.WarmupBars])
		start = e.cfg.WarmupBars
	}

	e.state = StateRunning
	for _, bar := range bars[start:] {
		e.processBar(bar)
	}

	e.state = StateClosingPositions
	if len(bars) > 0 {
		e.closeAllPositions(bars[len(bars)-1])
	}

	result := e.buildResult()
	e.state = StateFinalized

	e.log.Info("backtest complete",
		"bars_processed", e.barsProcessed,
		"total_return_pct", result.Metrics.TotalReturnPct,
		"trades", len(result.Trades))
	return result, nil
}

// processBar runs one replay step: match resting orders, absorb fills into
// the ledger, consult the strategy, route any signal, then mark to market at
// the bar close.
func (e *Engine) processBar(bar domain.Bar) {
	e.barsProcessed++

	for _, trade := range e.sim.Match(bar) {
		e.absorbFill(trade, bar)
	}

	if signal := e.strat.OnBar(bar); signal != nil {
		e.routeSignal(signal, bar)
	}

	prices := map[domain.TradingPair]decimal.Decimal{bar.Pair: bar.Close}
	e.ledger.MarkToMarket(bar.Timestamp, prices)
}

// absorbFill records a fill trade in the ledger and reconciles position
// state: a buy fill with no open position opens a long at the fill price, a
// sell fill with an open long closes it.
func (e *Engine) absorbFill(trade *domain.Trade, bar domain.Bar) {
	e.ledger.RecordTrade(trade)
	e.bus.Publish(event.OrderFilled{Trade: trade, At: bar.Timestamp})

	if trade.Side == domain.OrderSideBuy {
		if e.ledger.HasPosition(trade.Pair) {
			return
		}
		stopLoss, takeProfit := e.orderTargets(trade)
		pos, err := e.ledger.OpenPosition(trade.Pair, domain.PositionSideLong, trade.Size, trade.Price, stopLoss, takeProfit, trade.ExecutedAt)
		if err != nil {
			if errors.Is(err, portfolio.ErrInsufficientFunds) {
				required := trade.Notional().Div(e.cfg.Leverage)
				e.bus.Publish(event.FundsRejected{
					Pair:      trade.Pair,
					Required:  required,
					Available: e.ledger.Cash(),
					At:        bar.Timestamp,
				})
				return
			}
			e.log.Error("opening position from fill failed", "pair", trade.Pair.String(), "error", err)
			return
		}
		e.bus.Publish(event.PositionOpened{Position: pos, At: bar.Timestamp})
		return
	}

	if e.ledger.HasPosition(trade.Pair) {
		e.closePosition(trade.Pair, trade.Price, bar)
	}
}

// orderTargets recovers the stop-loss/take-profit attached to the order that
// produced the trade, if it is still in the filled history.
func (e *Engine) orderTargets(trade *domain.Trade) (stopLoss, takeProfit decimal.Decimal) {
	for _, order := range e.sim.FilledOrders() {
		if order.ID == trade.OrderID {
			return order.StopLoss, order.TakeProfit
		}
	}
	return decimal.Zero, decimal.Zero
}

// routeSignal turns a strategy signal into a matching-engine or ledger
// action. Expired signals are dropped with no state change.
func (e *Engine) routeSignal(signal *domain.Signal, bar domain.Bar) {
	if signal.Expired(bar.Timestamp) {
		e.log.Debug("dropping expired signal", "pair", signal.Pair.String(), "type", signal.Type)
		return
	}

	switch signal.Type {
	case domain.SignalBuy:
		e.handleBuy(signal, bar)
	case domain.SignalSell:
		// Treated as closing an existing long; short selling is not modeled.
		if e.ledger.HasPosition(signal.Pair) {
			e.closePosition(signal.Pair, signal.Price, bar)
		}
	case domain.SignalCloseLong, domain.SignalCloseShort:
		if e.ledger.HasPosition(signal.Pair) {
			e.closePosition(signal.Pair, bar.Close, bar)
		}
	}
}

// handleBuy sizes a market order from available cash and routes it to the
// matching engine. The order fills on a later bar; the resulting fill opens
// the ledger position.
func (e *Engine) handleBuy(signal *domain.Signal, bar domain.Bar) {
	if e.ledger.HasPosition(signal.Pair) {
		e.log.Debug("ignoring buy signal, position already open", "pair", signal.Pair.String())
		return
	}
	if !signal.Price.IsPositive() {
		return
	}

	available := e.ledger.Cash().Mul(decimal.NewFromFloat(sizingFraction))
	size := available.Div(signal.Price)
	if !size.IsPositive() {
		e.log.Warn("insufficient capital for buy signal", "pair", signal.Pair.String(), "cash", e.ledger.Cash())
		return
	}

	order, err := domain.NewMarketOrder(signal.Pair, domain.OrderSideBuy, size)
	if err != nil {
		e.log.Error("building order from signal failed", "error", err)
		return
	}
	order.StopLoss = signal.StopLoss
	order.TakeProfit = signal.TargetPrice

	e.sim.Place(order)
	e.bus.Publish(event.OrderPlaced{Order: order, At: bar.Timestamp})
}

func (e *Engine) closePosition(pair domain.TradingPair, price decimal.Decimal, bar domain.Bar) {
	pos, err := e.ledger.ClosePosition(pair, price, bar.Timestamp)
	if err != nil {
		// ErrNoPosition is an expected outcome; anything else is logged.
		if !errors.Is(err, portfolio.ErrNoPosition) {
			e.log.Error("closing position failed", "pair", pair.String(), "error", err)
		}
		return
	}
	e.bus.Publish(event.PositionClosed{Position: pos, At: bar.Timestamp})
}

// closeAllPositions force-closes every open position at the final bar's
// close. Pairs are closed in sorted order so replays stay deterministic.
func (e *Engine) closeAllPositions(last domain.Bar) {
	pairs := e.ledger.OpenPairs()
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	for _, pair := range pairs {
		e.closePosition(pair, last.Close, last)
	}
}

func (e *Engine) buildResult() *Result {
	curve := e.ledger.EquityCurve()
	trades := e.ledger.Trades()

	finalEquity := e.ledger.Cash()
	if len(curve) > 0 {
		finalEquity = curve[len(curve)-1].Equity
	}
	// Positions force-closed after the last mark change cash but not the
	// curve; prefer cash when nothing remains open.
	if len(e.ledger.OpenPairs()) == 0 {
		finalEquity = e.ledger.Cash()
	}

	return &Result{
		Portfolio: e.ledger.Stats(),
		Metrics: metrics.Calculate(e.cfg.InitialCapital, finalEquity, curve, trades, metrics.Config{
			RiskFreeRate:   e.cfg.RiskFreeRate,
			PeriodsPerYear: e.cfg.PeriodsPerYear,
		}),
		Strategy:      e.strat.PerformanceStats(),
		BarsProcessed: e.barsProcessed,
		EquityCurve:   curve,
		Trades:        trades,
	}
}

// reset restores all collaborators to their initial state before a run.
func (e *Engine) reset() {
	e.sim.Reset()
	e.ledger.Reset()
	e.strat.Reset()
	e.barsProcessed = 0
	e.state = StateIdle
}
