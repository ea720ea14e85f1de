package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the record of an executed fill. Immutable after construction.
// RealizedPnL is set only on trades that close a position; it is nil on
// opening fills.
type Trade struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Pair    TradingPair
	Side    OrderSide

	Price decimal.Decimal
	Size  decimal.Decimal

	Commission      decimal.Decimal
	CommissionAsset string

	RealizedPnL *decimal.Decimal

	ExecutedAt time.Time
}

// NewTrade validates and constructs a Trade.
func NewTrade(orderID uuid.UUID, pair TradingPair, side OrderSide, price, size, commission decimal.Decimal, executedAt time.Time) (*Trade, error) {
	if pair.IsZero() {
		return nil, errors.New("trade: pair is required")
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, errors.New("trade: side is required")
	}
	if !price.IsPositive() {
		return nil, errors.New("trade: price must be positive")
	}
	if !size.IsPositive() {
		return nil, errors.New("trade: size must be positive")
	}
	return &Trade{
		ID:              uuid.New(),
		OrderID:         orderID,
		Pair:            pair,
		Side:            side,
		Price:           price,
		Size:            size,
		Commission:      commission,
		CommissionAsset: pair.Quote,
		ExecutedAt:      executedAt,
	}, nil
}

// Notional returns size * price.
func (t *Trade) Notional() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// NetValue returns the notional less commission.
func (t *Trade) NetValue() decimal.Decimal {
	return t.Notional().Sub(t.Commission)
}

// IsBuy reports whether the trade bought the base asset.
func (t *Trade) IsBuy() bool {
	return t.Side == OrderSideBuy
}
