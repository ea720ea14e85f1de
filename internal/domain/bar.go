package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV candle for one pair over one timeframe interval.
// Bars are immutable by convention once constructed.
type Bar struct {
	Pair      TradingPair
	Timeframe Timeframe
	Timestamp time.Time

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	Volume decimal.Decimal
	// QuoteVolume and TradeCount are optional; zero means unknown.
	QuoteVolume decimal.Decimal
	TradeCount  int64
}

// NewBar validates and constructs a Bar. It enforces the OHLC invariants:
// all prices strictly positive, low <= {open, close} <= high, volume >= 0.
func NewBar(pair TradingPair, tf Timeframe, ts time.Time, open, high, low, close, volume decimal.Decimal) (Bar, error) {
	b := Bar{
		Pair:      pair,
		Timeframe: tf,
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Validate checks the bar invariants without modifying the bar.
func (b Bar) Validate() error {
	if b.Pair.IsZero() {
		return errors.New("bar: pair is required")
	}
	for _, p := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
	} {
		if !p.v.IsPositive() {
			return fmt.Errorf("bar: %s must be positive, got %s", p.name, p.v)
		}
	}
	if b.Low.GreaterThan(b.High) {
		return fmt.Errorf("bar: low %s > high %s", b.Low, b.High)
	}
	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return fmt.Errorf("bar: open %s outside [%s, %s]", b.Open, b.Low, b.High)
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return fmt.Errorf("bar: close %s outside [%s, %s]", b.Close, b.Low, b.High)
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("bar: volume must be >= 0, got %s", b.Volume)
	}
	return nil
}

// Range returns high - low.
func (b Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close.GreaterThan(b.Open)
}
