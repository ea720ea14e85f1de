// Package portfolio tracks cash, positions, trades, and the equity curve of
// a backtest. The Ledger owns the canonical position and trade collections.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
)

// Expected business outcomes. Callers branch on these; they are not faults.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoPosition        = errors.New("no open position")
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
}

// Stats is a summary of ledger state, suitable for the final report.
type Stats struct {
	InitialCapital  decimal.Decimal `json:"initial_capital"`
	Cash            decimal.Decimal `json:"cash"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	OpenPositions   int             `json:"open_positions"`
	ClosedPositions int             `json:"closed_positions"`
	TotalTrades     int             `json:"total_trades"`
	MaxDrawdownPct  decimal.Decimal `json:"max_drawdown_pct"`
}

// Ledger is the portfolio ledger. At most one open position per pair is
// permitted. Cash may go negative through realized losses on close; only
// position opening is gated by the funds check.
type Ledger struct {
	initialCapital decimal.Decimal
	leverage       decimal.Decimal
	log            *slog.Logger

	cash      decimal.Decimal
	positions map[domain.TradingPair]*domain.Position
	closed    []*domain.Position
	trades    []*domain.Trade

	equity      []EquityPoint
	peakEquity  decimal.Decimal
	maxDrawdown decimal.Decimal
}

// NewLedger creates a Ledger with the given starting capital. Leverage below
// or equal to zero falls back to 1.
func NewLedger(initialCapital, leverage decimal.Decimal, logger *slog.Logger) *Ledger {
	if !leverage.IsPositive() {
		leverage = decimal.NewFromInt(1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		initialCapital: initialCapital,
		leverage:       leverage,
		log:            logger,
		cash:           initialCapital,
		positions:      make(map[domain.TradingPair]*domain.Position),
		peakEquity:     initialCapital,
	}
}

// OpenPosition opens a position, debiting cash by notional / leverage. It
// returns ErrInsufficientFunds, with no state change, when the required
// capital exceeds available cash.
func (l *Ledger) OpenPosition(pair domain.TradingPair, side domain.PositionSide, size, entryPrice, stopLoss, takeProfit decimal.Decimal, at time.Time) (*domain.Position, error) {
	if _, exists := l.positions[pair]; exists {
		return nil, fmt.Errorf("position already open for %s", pair)
	}

	required := size.Mul(entryPrice).Div(l.leverage)
	if required.GreaterThan(l.cash) {
		l.log.Warn("insufficient funds to open position",
			"pair", pair.String(), "required", required, "available", l.cash)
		return nil, ErrInsufficientFunds
	}

	pos, err := domain.NewPosition(pair, side, size, entryPrice, at)
	if err != nil {
		return nil, err
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit

	l.cash = l.cash.Sub(required)
	l.positions[pair] = pos

	l.log.Info("opened position",
		"pair", pair.String(), "side", side, "size", size, "entry", entryPrice, "cash", l.cash)
	return pos, nil
}

// ClosePosition closes the open position for the pair at exitPrice. Cash is
// credited with the original margin plus the realized P&L, the position is
// archived, and a closing trade carrying the realized P&L is appended to the
// trade history. Returns ErrNoPosition when nothing is open for the pair.
func (l *Ledger) ClosePosition(pair domain.TradingPair, exitPrice decimal.Decimal, at time.Time) (*domain.Position, error) {
	pos, ok := l.positions[pair]
	if !ok || !pos.IsOpen() {
		l.log.Warn("no open position to close", "pair", pair.String())
		return nil, ErrNoPosition
	}

	realized := pos.PnLAt(exitPrice)
	pos.Close(exitPrice, realized, at)

	returned := pos.EntryNotional().Div(l.leverage)
	l.cash = l.cash.Add(returned).Add(realized)

	l.closed = append(l.closed, pos)
	delete(l.positions, pair)

	side := domain.OrderSideSell
	if pos.Side == domain.PositionSideShort {
		side = domain.OrderSideBuy
	}
	trade, err := domain.NewTrade(pos.ID, pair, side, exitPrice, pos.Size, decimal.Zero, at)
	if err != nil {
		return nil, fmt.Errorf("recording closing trade: %w", err)
	}
	trade.RealizedPnL = &realized
	l.trades = append(l.trades, trade)

	l.log.Info("closed position",
		"pair", pair.String(), "exit", exitPrice, "pnl", realized, "cash", l.cash)
	return pos, nil
}

// RecordTrade appends an executed trade to the trade history.
func (l *Ledger) RecordTrade(trade *domain.Trade) {
	if trade == nil {
		return
	}
	l.trades = append(l.trades, trade)
}

// Equity returns cash plus the unrealized P&L of every open position marked
// to the supplied prices. Positions without a price keep their previous
// mark.
func (l *Ledger) Equity(prices map[domain.TradingPair]decimal.Decimal, at time.Time) decimal.Decimal {
	equity := l.cash
	for pair, pos := range l.positions {
		if price, ok := prices[pair]; ok {
			pos.UpdatePrice(price, at)
		}
		equity = equity.Add(pos.UnrealizedPnL)
	}
	return equity
}

// MarkToMarket revalues open positions, appends an equity sample, and
// updates the running peak and maximum drawdown.
func (l *Ledger) MarkToMarket(at time.Time, prices map[domain.TradingPair]decimal.Decimal) EquityPoint {
	equity := l.Equity(prices, at)
	point := EquityPoint{Timestamp: at, Equity: equity}
	l.equity = append(l.equity, point)

	if equity.GreaterThan(l.peakEquity) {
		l.peakEquity = equity
	}
	drawdown := l.peakEquity.Sub(equity).Div(l.peakEquity)
	if drawdown.GreaterThan(l.maxDrawdown) {
		l.maxDrawdown = drawdown
	}
	return point
}

// Position returns the open position for the pair, if any.
func (l *Ledger) Position(pair domain.TradingPair) (*domain.Position, bool) {
	pos, ok := l.positions[pair]
	return pos, ok
}

// HasPosition reports whether an open position exists for the pair.
func (l *Ledger) HasPosition(pair domain.TradingPair) bool {
	pos, ok := l.positions[pair]
	return ok && pos.IsOpen()
}

// OpenPairs returns the pairs with open positions, in no particular order.
func (l *Ledger) OpenPairs() []domain.TradingPair {
	pairs := make([]domain.TradingPair, 0, len(l.positions))
	for pair := range l.positions {
		pairs = append(pairs, pair)
	}
	return pairs
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal { return l.cash }

// InitialCapital returns the starting capital.
func (l *Ledger) InitialCapital() decimal.Decimal { return l.initialCapital }

// EquityCurve returns the recorded equity samples in order.
func (l *Ledger) EquityCurve() []EquityPoint { return l.equity }

// Trades returns the full trade history in recording order.
func (l *Ledger) Trades() []*domain.Trade { return l.trades }

// ClosedPositions returns the archive of closed positions.
func (l *Ledger) ClosedPositions() []*domain.Position { return l.closed }

// MaxDrawdown returns the maximum drawdown seen so far as a fraction of the
// peak.
func (l *Ledger) MaxDrawdown() decimal.Decimal { return l.maxDrawdown }

// TotalPnL returns the sum of realized P&L over all closed positions.
func (l *Ledger) TotalPnL() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.closed {
		total = total.Add(pos.RealizedPnL)
	}
	return total
}

// Stats summarises the ledger for reporting.
func (l *Ledger) Stats() Stats {
	totalPnL := l.TotalPnL()
	hundred := decimal.NewFromInt(100)
	returnPct := decimal.Zero
	if l.initialCapital.IsPositive() {
		returnPct = totalPnL.Div(l.initialCapital).Mul(hundred)
	}
	return Stats{
		InitialCapital:  l.initialCapital,
		Cash:            l.cash,
		TotalPnL:        totalPnL,
		TotalReturnPct:  returnPct,
		OpenPositions:   len(l.positions),
		ClosedPositions: len(l.closed),
		TotalTrades:     len(l.trades),
		MaxDrawdownPct:  l.maxDrawdown.Mul(hundred),
	}
}

// Reset restores the ledger to its initial state.
func (l *Ledger) Reset() {
	l.cash = l.initialCapital
	l.positions = make(map[domain.TradingPair]*domain.Position)
	l.closed = nil
	l.trades = nil
	l.equity = nil
	l.peakEquity = l.initialCapital
	l.maxDrawdown = decimal.Zero
}
