package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType is the closed set of actions a strategy can request.
type SignalType string

const (
	SignalBuy        SignalType = "buy"
	SignalSell       SignalType = "sell"
	SignalCloseLong  SignalType = "close_long"
	SignalCloseShort SignalType = "close_short"
)

// Signal is a single trading intent emitted by a strategy. It is consumed
// once by the backtest orchestrator and then discarded.
type Signal struct {
	Pair TradingPair
	Type SignalType

	Price decimal.Decimal
	// Optional levels; zero means unset.
	TargetPrice decimal.Decimal
	StopLoss    decimal.Decimal

	// Confidence in [0, 1].
	Confidence float64

	Strategy  string
	Timeframe Timeframe

	CreatedAt time.Time
	// ExpiresAt zero means the signal never expires.
	ExpiresAt time.Time
}

// Expired reports whether the signal has expired as of the given time. The
// orchestrator passes the bar clock here, never the wall clock, so replays
// stay deterministic.
func (s *Signal) Expired(at time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return at.After(s.ExpiresAt)
}
