// Package builtins provides built-in strategy implementations that ship with
// backsim.
package builtins

import (
	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// maxBars caps the in-memory bar buffer.
const maxBars = 1000

// SMACross implements a simple moving average crossover strategy. It emits a
// buy signal when the fast SMA crosses above the slow SMA and a sell signal
// when it crosses below. Consecutive signals of the same type are
// suppressed.
type SMACross struct {
	pair      domain.TradingPair
	timeframe domain.Timeframe

	fastPeriod    int
	slowPeriod    int
	stopLossPct   decimal.Decimal
	takeProfitPct decimal.Decimal

	bars       []domain.Bar
	lastSignal domain.SignalType

	totalSignals   int
	winningSignals int
	losingSignals  int
}

// NewSMACross creates an SMACross for one pair and timeframe with the given
// fast and slow periods. stopLossPct and takeProfitPct are fractions, e.g.
// 0.02 for a 2% stop.
func NewSMACross(pair domain.TradingPair, tf domain.Timeframe, fastPeriod, slowPeriod int, stopLossPct, takeProfitPct float64) *SMACross {
	return &SMACross{
		pair:          pair,
		timeframe:     tf,
		fastPeriod:    fastPeriod,
		slowPeriod:    slowPeriod,
		stopLossPct:   decimal.NewFromFloat(stopLossPct),
		takeProfitPct: decimal.NewFromFloat(takeProfitPct),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Initialize seeds the bar buffer with warm-up history.
func (s *SMACross) Initialize(warmup []domain.Bar) {
	s.bars = append(s.bars[:0], warmup...)
}

// OnBar appends the bar and emits a signal when the fast SMA crosses the
// slow SMA.
func (s *SMACross) OnBar(bar domain.Bar) *domain.Signal {
	s.addBar(bar)

	// Need one bar beyond the slow period to compare against the previous
	// SMA values.
	if len(s.bars) < s.slowPeriod+1 {
		return nil
	}

	fast := s.sma(s.fastPeriod, 0)
	slow := s.sma(s.slowPeriod, 0)
	prevFast := s.sma(s.fastPeriod, 1)
	prevSlow := s.sma(s.slowPeriod, 1)

	var signal *domain.Signal
	switch {
	case prevFast.LessThanOrEqual(prevSlow) && fast.GreaterThan(slow):
		if s.lastSignal != domain.SignalBuy {
			signal = s.buySignal(bar, fast, slow)
			s.lastSignal = domain.SignalBuy
		}
	case prevFast.GreaterThanOrEqual(prevSlow) && fast.LessThan(slow):
		if s.lastSignal != domain.SignalSell {
			signal = s.sellSignal(bar, fast, slow)
			s.lastSignal = domain.SignalSell
		}
	}

	if signal != nil {
		s.totalSignals++
	}
	return signal
}

// Reset clears all accumulated state.
func (s *SMACross) Reset() {
	s.bars = nil
	s.lastSignal = ""
	s.totalSignals = 0
	s.winningSignals = 0
	s.losingSignals = 0
}

// PerformanceStats returns the strategy's signal tallies.
func (s *SMACross) PerformanceStats() map[string]any {
	winRate := 0.0
	if s.totalSignals > 0 {
		winRate = float64(s.winningSignals) / float64(s.totalSignals) * 100
	}
	return map[string]any{
		"name":            s.Name(),
		"pair":            s.pair.String(),
		"timeframe":       s.timeframe.String(),
		"fast_period":     s.fastPeriod,
		"slow_period":     s.slowPeriod,
		"total_signals":   s.totalSignals,
		"winning_signals": s.winningSignals,
		"losing_signals":  s.losingSignals,
		"win_rate":        winRate,
	}
}

func (s *SMACross) addBar(bar domain.Bar) {
	s.bars = append(s.bars, bar)
	if len(s.bars) > maxBars {
		s.bars = s.bars[len(s.bars)-maxBars:]
	}
}

// sma computes the simple moving average of the last period closes, shifted
// back by offset bars.
func (s *SMACross) sma(period, offset int) decimal.Decimal {
	end := len(s.bars) - offset
	sum := decimal.Zero
	for _, bar := range s.bars[end-period : end] {
		sum = sum.Add(bar.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

func (s *SMACross) buySignal(bar domain.Bar, fast, slow decimal.Decimal) *domain.Signal {
	price := bar.Close
	one := decimal.NewFromInt(1)
	return &domain.Signal{
		Pair:        s.pair,
		Type:        domain.SignalBuy,
		Price:       price,
		StopLoss:    price.Mul(one.Sub(s.stopLossPct)),
		TargetPrice: price.Mul(one.Add(s.takeProfitPct)),
		Confidence:  s.confidence(fast, slow),
		Strategy:    s.Name(),
		Timeframe:   s.timeframe,
		CreatedAt:   bar.Timestamp,
	}
}

func (s *SMACross) sellSignal(bar domain.Bar, fast, slow decimal.Decimal) *domain.Signal {
	price := bar.Close
	one := decimal.NewFromInt(1)
	return &domain.Signal{
		Pair:        s.pair,
		Type:        domain.SignalSell,
		Price:       price,
		StopLoss:    price.Mul(one.Add(s.stopLossPct)),
		TargetPrice: price.Mul(one.Sub(s.takeProfitPct)),
		Confidence:  s.confidence(slow, fast),
		Strategy:    s.Name(),
		Timeframe:   s.timeframe,
		CreatedAt:   bar.Timestamp,
	}
}

// confidence scales the SMA separation into [0.5, 1.0].
func (s *SMACross) confidence(above, below decimal.Decimal) float64 {
	if !above.IsPositive() {
		return 0.5
	}
	diff, _ := above.Sub(below).Div(above).Float64()
	c := 0.5 + diff*10
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
