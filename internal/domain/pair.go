// Package domain defines the core entities and value objects of the
// backtesting system: trading pairs, timeframes, bars, orders, positions,
// trades, and signals. All monetary quantities use decimal.Decimal.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultVenue is used when a pair is constructed without an explicit venue.
const DefaultVenue = "binance"

// TradingPair is an immutable trading pair value object (e.g. BTC/USDT).
// Equality and map-key semantics are by value.
type TradingPair struct {
	Base  string
	Quote string
	Venue string
}

// NewTradingPair creates a TradingPair, normalising base and quote to upper
// case and the venue to lower case. An empty venue falls back to
// DefaultVenue.
func NewTradingPair(base, quote, venue string) (TradingPair, error) {
	if base == "" || quote == "" {
		return TradingPair{}, errors.New("base and quote must be non-empty")
	}
	if venue == "" {
		venue = DefaultVenue
	}
	return TradingPair{
		Base:  strings.ToUpper(base),
		Quote: strings.ToUpper(quote),
		Venue: strings.ToLower(venue),
	}, nil
}

// ParsePair creates a TradingPair from a string like "BTC/USDT" or
// "BTCUSDT". The compact form is resolved against a short list of well-known
// quote currencies.
func ParsePair(symbol, venue string) (TradingPair, error) {
	if base, quote, ok := strings.Cut(symbol, "/"); ok {
		return NewTradingPair(base, quote, venue)
	}
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return NewTradingPair(upper[:len(upper)-len(quote)], quote, venue)
		}
	}
	return TradingPair{}, fmt.Errorf("cannot parse symbol %q", symbol)
}

// String returns the canonical "BASE/QUOTE" form.
func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}

// Compact returns the venue-style "BASEQUOTE" form (e.g. BTCUSDT).
func (p TradingPair) Compact() string {
	return p.Base + p.Quote
}

// IsZero reports whether the pair is the zero value.
func (p TradingPair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}
