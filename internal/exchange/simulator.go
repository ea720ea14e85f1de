// Package exchange provides a simulated matching engine that fills resting
// orders against historical bars. It owns only the set of not-yet-filled
// orders; portfolio state lives elsewhere.
package exchange

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backsim/internal/domain"
)

// Config holds the fee and slippage model for the simulator.
type Config struct {
	MakerFee    decimal.Decimal
	TakerFee    decimal.Decimal
	SlippagePct decimal.Decimal
}

// DefaultConfig returns the standard 0.1% fees and 0.05% slippage.
func DefaultConfig() Config {
	return Config{
		MakerFee:    decimal.NewFromFloat(0.001),
		TakerFee:    decimal.NewFromFloat(0.001),
		SlippagePct: decimal.NewFromFloat(0.0005),
	}
}

// Simulator matches resting orders against bars one bar at a time.
//
// Determinism: for a fixed bar and a fixed resting set, Match always produces
// the same trades in the same order. Orders are evaluated in placement order,
// never by price or size.
type Simulator struct {
	cfg Config
	log *slog.Logger

	resting map[uuid.UUID]*domain.Order
	// queue preserves placement order for deterministic iteration.
	queue  []uuid.UUID
	filled []*domain.Order
	trades []*domain.Trade
}

// NewSimulator creates a Simulator with the given fee model. A nil logger
// falls back to slog.Default().
func NewSimulator(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:     cfg,
		log:     logger,
		resting: make(map[uuid.UUID]*domain.Order),
	}
}

// Place accepts an order into the resting set and marks it open. Orders that
// are nil or already terminal are rejected.
func (s *Simulator) Place(order *domain.Order) bool {
	if order == nil || order.IsTerminal() {
		return false
	}
	order.SetStatus(domain.OrderStatusOpen)
	s.resting[order.ID] = order
	s.queue = append(s.queue, order.ID)
	s.log.Debug("order placed",
		"order_id", order.ID,
		"pair", order.Pair.String(),
		"side", order.Side,
		"type", order.Type,
		"size", order.Size)
	return true
}

// Cancel removes a resting order, marking it cancelled. It reports whether
// an order was removed.
func (s *Simulator) Cancel(orderID uuid.UUID) bool {
	order, ok := s.resting[orderID]
	if !ok {
		return false
	}
	order.SetStatus(domain.OrderStatusCancelled)
	s.remove(orderID)
	s.log.Debug("order cancelled", "order_id", orderID)
	return true
}

// Match evaluates every resting order whose pair matches the bar and returns
// the trades produced. Filled orders move to the filled history; unfilled
// orders rest unchanged. An order either fully fills on a bar or not at all.
func (s *Simulator) Match(bar domain.Bar) []*domain.Trade {
	var trades []*domain.Trade
	var filledIDs []uuid.UUID

	for _, id := range s.queue {
		order, ok := s.resting[id]
		if !ok {
			continue
		}
		if order.Pair != bar.Pair {
			continue
		}

		fillPrice, ok := s.fillPrice(order, bar)
		if !ok {
			continue
		}

		trade, err := domain.NewTrade(order.ID, order.Pair, order.Side, fillPrice, order.Size, s.commission(order, fillPrice), bar.Timestamp)
		if err != nil {
			// Unreachable for orders and bars that passed construction.
			s.log.Error("trade construction failed", "order_id", order.ID, "error", err)
			continue
		}

		order.Fill(order.Size, fillPrice)
		s.filled = append(s.filled, order)
		filledIDs = append(filledIDs, id)

		trades = append(trades, trade)
		s.trades = append(s.trades, trade)

		s.log.Debug("order filled", "order_id", order.ID, "price", fillPrice, "size", order.Size)
	}

	for _, id := range filledIDs {
		s.remove(id)
	}
	return trades
}

// fillPrice decides whether the order fills against the bar and at what
// price.
//
//   - Market orders fill at close +/- slippage (plus for buys, minus for
//     sells).
//   - Limit buys fill at the limit price when low <= limit.
//   - Limit sells fill at the limit price when high >= limit.
//   - Every other order type never fills.
func (s *Simulator) fillPrice(order *domain.Order, bar domain.Bar) (decimal.Decimal, bool) {
	switch order.Type {
	case domain.OrderTypeMarket:
		slip := bar.Close.Mul(s.cfg.SlippagePct)
		if order.Side == domain.OrderSideBuy {
			return bar.Close.Add(slip), true
		}
		return bar.Close.Sub(slip), true

	case domain.OrderTypeLimit:
		if order.Side == domain.OrderSideBuy {
			if bar.Low.LessThanOrEqual(order.Price) {
				return order.Price, true
			}
		} else {
			if bar.High.GreaterThanOrEqual(order.Price) {
				return order.Price, true
			}
		}
	}
	return decimal.Decimal{}, false
}

// commission returns notional * fee, using the taker fee for market orders
// and the maker fee otherwise.
func (s *Simulator) commission(order *domain.Order, fillPrice decimal.Decimal) decimal.Decimal {
	fee := s.cfg.MakerFee
	if order.Type == domain.OrderTypeMarket {
		fee = s.cfg.TakerFee
	}
	return order.Size.Mul(fillPrice).Mul(fee)
}

func (s *Simulator) remove(orderID uuid.UUID) {
	delete(s.resting, orderID)
	for i, id := range s.queue {
		if id == orderID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// Resting returns the resting orders in placement order, optionally filtered
// by pair (zero pair means all).
func (s *Simulator) Resting(pair domain.TradingPair) []*domain.Order {
	var orders []*domain.Order
	for _, id := range s.queue {
		order, ok := s.resting[id]
		if !ok {
			continue
		}
		if pair.IsZero() || order.Pair == pair {
			orders = append(orders, order)
		}
	}
	return orders
}

// FilledOrders returns the orders filled so far, in fill order.
func (s *Simulator) FilledOrders() []*domain.Order {
	return s.filled
}

// Trades returns every trade executed so far, in execution order.
func (s *Simulator) Trades() []*domain.Trade {
	return s.trades
}

// Reset clears all simulator state.
func (s *Simulator) Reset() {
	s.resting = make(map[uuid.UUID]*domain.Order)
	s.queue = nil
	s.filled = nil
	s.trades = nil
}
