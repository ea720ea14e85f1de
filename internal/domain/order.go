package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

// OrderType is the execution style of an order.
type OrderType string

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	// Declared for completeness; the simulated matching engine never fills
	// these.
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
	OrderTypeOCO        OrderType = "oco"

	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order is a trading order. It has identity via ID; its parameters are
// immutable after construction while fill state and status evolve through
// SetStatus and Fill.
type Order struct {
	ID   uuid.UUID
	Pair TradingPair
	Side OrderSide
	Type OrderType

	Status OrderStatus

	// Price is the limit price; zero for market orders.
	Price decimal.Decimal
	Size  decimal.Decimal

	// Optional protective targets; zero means unset.
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
	FilledAt  time.Time
}

// NewMarketOrder creates a pending market order.
func NewMarketOrder(pair TradingPair, side OrderSide, size decimal.Decimal) (*Order, error) {
	return newOrder(pair, side, OrderTypeMarket, decimal.Zero, size)
}

// NewLimitOrder creates a pending limit order at the given price.
func NewLimitOrder(pair TradingPair, side OrderSide, price, size decimal.Decimal) (*Order, error) {
	if !price.IsPositive() {
		return nil, errors.New("order: limit price must be positive")
	}
	return newOrder(pair, side, OrderTypeLimit, price, size)
}

func newOrder(pair TradingPair, side OrderSide, typ OrderType, price, size decimal.Decimal) (*Order, error) {
	if pair.IsZero() {
		return nil, errors.New("order: pair is required")
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, errors.New("order: side is required")
	}
	if !size.IsPositive() {
		return nil, errors.New("order: size must be positive")
	}
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.New(),
		Pair:      pair,
		Side:      side,
		Type:      typ,
		Status:    OrderStatusPending,
		Price:     price,
		Size:      size,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetStatus transitions the order to a new status and stamps UpdatedAt.
// Transitioning to filled also stamps FilledAt.
func (o *Order) SetStatus(status OrderStatus) {
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	if status == OrderStatusFilled {
		o.FilledAt = o.UpdatedAt
	}
}

// Fill records a (partial) fill, accumulating the size-weighted average fill
// price. The order becomes filled exactly when FilledSize >= Size.
func (o *Order) Fill(size, price decimal.Decimal) {
	if o.FilledSize.IsZero() {
		o.AvgFillPrice = price
		o.FilledSize = size
	} else {
		total := o.FilledSize.Mul(o.AvgFillPrice).Add(size.Mul(price))
		o.FilledSize = o.FilledSize.Add(size)
		o.AvgFillPrice = total.Div(o.FilledSize)
	}

	if o.FilledSize.GreaterThanOrEqual(o.Size) {
		o.SetStatus(OrderStatusFilled)
	} else if o.FilledSize.IsPositive() {
		o.SetStatus(OrderStatusPartiallyFilled)
	}
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// IsFilled reports whether the order is completely filled.
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// IsOpen reports whether the order can still fill.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusOpen, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Notional returns size * price, preferring the average fill price when the
// order has fills. Returns zero for an unfilled market order.
func (o *Order) Notional() decimal.Decimal {
	price := o.AvgFillPrice
	if price.IsZero() {
		price = o.Price
	}
	return o.Size.Mul(price)
}
