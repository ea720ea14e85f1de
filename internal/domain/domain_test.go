package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPair(t *testing.T) TradingPair {
	t.Helper()
	pair, err := NewTradingPair("BTC", "USDT", "")
	if err != nil {
		t.Fatalf("NewTradingPair: %v", err)
	}
	return pair
}

func TestTradingPairNormalisation(t *testing.T) {
	pair, err := NewTradingPair("btc", "usdt", "BINANCE")
	if err != nil {
		t.Fatalf("NewTradingPair returned error: %v", err)
	}
	if pair.Base != "BTC" || pair.Quote != "USDT" {
		t.Errorf("pair = %s/%s, want BTC/USDT", pair.Base, pair.Quote)
	}
	if pair.Venue != "binance" {
		t.Errorf("pair.Venue = %q, want %q", pair.Venue, "binance")
	}
	if pair.String() != "BTC/USDT" {
		t.Errorf("pair.String() = %q, want %q", pair.String(), "BTC/USDT")
	}

	// Value equality.
	other, _ := NewTradingPair("BTC", "usdt", "binance")
	if pair != other {
		t.Error("identical pairs should compare equal")
	}

	if _, err := NewTradingPair("", "USDT", ""); err == nil {
		t.Error("NewTradingPair should reject empty base")
	}
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		in        string
		wantBase  string
		wantQuote string
		wantErr   bool
	}{
		{"BTC/USDT", "BTC", "USDT", false},
		{"ethusdt", "ETH", "USDT", false},
		{"SOLUSD", "SOL", "USD", false},
		{"garbage", "", "", true},
	}
	for _, tt := range tests {
		pair, err := ParsePair(tt.in, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePair(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePair(%q) returned error: %v", tt.in, err)
			continue
		}
		if pair.Base != tt.wantBase || pair.Quote != tt.wantQuote {
			t.Errorf("ParsePair(%q) = %s/%s, want %s/%s", tt.in, pair.Base, pair.Quote, tt.wantBase, tt.wantQuote)
		}
	}
}

func TestTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("1H")
	if err != nil {
		t.Fatalf("ParseTimeframe returned error: %v", err)
	}
	if tf != Timeframe1h {
		t.Errorf("ParseTimeframe(1H) = %q, want %q", tf, Timeframe1h)
	}
	if tf.Duration() != time.Hour {
		t.Errorf("Duration() = %v, want 1h", tf.Duration())
	}
	if Timeframe5m.Seconds() != 300 {
		t.Errorf("5m Seconds() = %d, want 300", Timeframe5m.Seconds())
	}
	if !Timeframe12h.IsIntraday() {
		t.Error("12h should be intraday")
	}
	if Timeframe1d.IsIntraday() {
		t.Error("1d should not be intraday")
	}
	if _, err := ParseTimeframe("7m"); err == nil {
		t.Error("ParseTimeframe should reject unsupported interval")
	}
}

func TestNewBarValidation(t *testing.T) {
	pair := testPair(t)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	bar, err := NewBar(pair, Timeframe1h, ts, d("100"), d("110"), d("95"), d("105"), d("12.5"))
	if err != nil {
		t.Fatalf("NewBar returned error for valid bar: %v", err)
	}
	if !bar.IsBullish() {
		t.Error("bar closing above open should be bullish")
	}
	if !bar.Range().Equal(d("15")) {
		t.Errorf("Range() = %s, want 15", bar.Range())
	}

	tests := []struct {
		name                        string
		open, high, low, close, vol string
	}{
		{"low above high", "100", "90", "95", "100", "1"},
		{"open above high", "120", "110", "95", "105", "1"},
		{"close below low", "100", "110", "95", "90", "1"},
		{"zero open", "0", "110", "95", "105", "1"},
		{"negative volume", "100", "110", "95", "105", "-1"},
	}
	for _, tt := range tests {
		_, err := NewBar(pair, Timeframe1h, ts, d(tt.open), d(tt.high), d(tt.low), d(tt.close), d(tt.vol))
		if err == nil {
			t.Errorf("NewBar should reject %s", tt.name)
		}
	}
}
