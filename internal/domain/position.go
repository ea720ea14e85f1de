package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a position.
type PositionSide string

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"

	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is an open or closed holding in a single pair. Closing is
// terminal: a closed position is archived and never reopened.
type Position struct {
	ID   uuid.UUID
	Pair TradingPair
	Side PositionSide
	Size decimal.Decimal

	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal

	// Optional protective levels; zero means unset.
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal

	Status PositionStatus

	OpenedAt  time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// NewPosition validates and constructs an open position with the current
// price initialised to the entry price.
func NewPosition(pair TradingPair, side PositionSide, size, entryPrice decimal.Decimal, openedAt time.Time) (*Position, error) {
	if pair.IsZero() {
		return nil, errors.New("position: pair is required")
	}
	if side != PositionSideLong && side != PositionSideShort {
		return nil, errors.New("position: side is required")
	}
	if !size.IsPositive() {
		return nil, errors.New("position: size must be positive")
	}
	if !entryPrice.IsPositive() {
		return nil, errors.New("position: entry price must be positive")
	}
	return &Position{
		ID:           uuid.New(),
		Pair:         pair,
		Side:         side,
		Size:         size,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		Status:       PositionStatusOpen,
		OpenedAt:     openedAt,
		UpdatedAt:    openedAt,
	}, nil
}

// PnLAt returns the profit or loss the position would realise at price:
// long (price - entry) * size, short (entry - price) * size.
func (p *Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	if p.Side == PositionSideLong {
		return price.Sub(p.EntryPrice).Mul(p.Size)
	}
	return p.EntryPrice.Sub(price).Mul(p.Size)
}

// UpdatePrice marks the position to the given price and recomputes the
// unrealized P&L.
func (p *Position) UpdatePrice(price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price)
	p.UpdatedAt = at
}

// Close finalises the position at the given price, freezing the realized
// P&L and zeroing the unrealized P&L.
func (p *Position) Close(price, realizedPnL decimal.Decimal, at time.Time) {
	p.Status = PositionStatusClosed
	p.CurrentPrice = price
	p.RealizedPnL = realizedPnL
	p.UnrealizedPnL = decimal.Zero
	p.ClosedAt = at
	p.UpdatedAt = at
}

// IsOpen reports whether the position is open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// StopLossHit reports whether price breaches the stop-loss level.
func (p *Position) StopLossHit(price decimal.Decimal) bool {
	if p.StopLoss.IsZero() {
		return false
	}
	if p.Side == PositionSideLong {
		return price.LessThanOrEqual(p.StopLoss)
	}
	return price.GreaterThanOrEqual(p.StopLoss)
}

// TakeProfitHit reports whether price reaches the take-profit level.
func (p *Position) TakeProfitHit(price decimal.Decimal) bool {
	if p.TakeProfit.IsZero() {
		return false
	}
	if p.Side == PositionSideLong {
		return price.GreaterThanOrEqual(p.TakeProfit)
	}
	return price.LessThanOrEqual(p.TakeProfit)
}

// Notional returns size * current price.
func (p *Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.CurrentPrice)
}

// EntryNotional returns size * entry price.
func (p *Position) EntryNotional() decimal.Decimal {
	return p.Size.Mul(p.EntryPrice)
}
