// Package event defines the closed set of domain events emitted during a
// backtest and a synchronous in-process bus for delivering them. Handlers
// run inline on the publisher's goroutine; the replay loop does not proceed
// until every handler has returned.
package event

import (
	"time"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
)

// Event is the closed union of domain events. Only types in this package
// implement it, so switches over the concrete types are exhaustive.
type Event interface {
	// Kind returns the event discriminator, e.g. "order.filled".
	Kind() string
	// OccurredAt returns the bar-clock time of the event.
	OccurredAt() time.Time

	isEvent()
}

// OrderPlaced is emitted when the orchestrator routes a new order to the
// matching engine.
type OrderPlaced struct {
	Order *domain.Order
	At    time.Time
}

// OrderFilled is emitted for every trade produced by the matching engine.
type OrderFilled struct {
	Trade *domain.Trade
	At    time.Time
}

// PositionOpened is emitted when the ledger opens a position.
type PositionOpened struct {
	Position *domain.Position
	At       time.Time
}

// PositionClosed is emitted when the ledger closes a position.
type PositionClosed struct {
	Position *domain.Position
	At       time.Time
}

// FundsRejected is emitted when opening a position fails the funds check.
// This is an expected outcome, surfaced for observability rather than as an
// error.
type FundsRejected struct {
	Pair      domain.TradingPair
	Required  decimal.Decimal
	Available decimal.Decimal
	At        time.Time
}

func (e OrderPlaced) Kind() string    { return "order.placed" }
func (e OrderFilled) Kind() string    { return "order.filled" }
func (e PositionOpened) Kind() string { return "position.opened" }
func (e PositionClosed) Kind() string { return "position.closed" }
func (e FundsRejected) Kind() string  { return "funds.rejected" }

func (e OrderPlaced) OccurredAt() time.Time    { return e.At }
func (e OrderFilled) OccurredAt() time.Time    { return e.At }
func (e PositionOpened) OccurredAt() time.Time { return e.At }
func (e PositionClosed) OccurredAt() time.Time { return e.At }
func (e FundsRejected) OccurredAt() time.Time  { return e.At }

func (OrderPlaced) isEvent()    {}
func (OrderFilled) isEvent()    {}
func (PositionOpened) isEvent() {}
func (PositionClosed) isEvent() {}
func (FundsRejected) isEvent()  {}
