// Package metrics computes performance statistics over a finished backtest:
// return, risk-adjusted ratios, drawdown, and trade quality. All functions
// are pure and stateless.
package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"backsim/internal/domain"
	"backsim/internal/portfolio"
)

// RatioUndefined is the saturating sentinel reported for ratios whose
// denominator is zero (no losing trades, no drawdown, no downside returns).
const RatioUndefined = 999.0

// Config holds the annualisation parameters.
type Config struct {
	// RiskFreeRate is the annual risk-free rate, e.g. 0.02 for 2%.
	RiskFreeRate float64
	// PeriodsPerYear is the trading-day convention, normally 252.
	PeriodsPerYear int
}

// DefaultConfig returns the 2% / 252-day convention.
func DefaultConfig() Config {
	return Config{RiskFreeRate: 0.02, PeriodsPerYear: 252}
}

// Report is the full set of computed metrics.
type Report struct {
	TotalReturn     float64 `json:"total_return"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	MaxDrawdownDays int     `json:"max_drawdown_duration_days"`
	WinRate         float64 `json:"win_rate"`
	WinRatePct      float64 `json:"win_rate_pct"`
	ProfitFactor    float64 `json:"profit_factor"`
	AverageWin      float64 `json:"average_win"`
	AverageLoss     float64 `json:"average_loss"`
	CalmarRatio     float64 `json:"calmar_ratio"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
}

// Calculate computes every metric from the finished equity curve and trade
// list. Degenerate inputs (empty curve or empty trade list) produce an
// all-zero report.
func Calculate(initialCapital, finalEquity decimal.Decimal, curve []portfolio.EquityPoint, trades []*domain.Trade, cfg Config) Report {
	if len(curve) == 0 || len(trades) == 0 {
		return Report{}
	}

	totalReturn := TotalReturn(initialCapital, finalEquity)
	returns := Returns(curve)
	maxDD, ddDays := MaxDrawdown(curve)
	winRate := WinRate(trades)
	avgWin, avgLoss := AverageWinLoss(trades)

	winners, losers := 0, 0
	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		if t.RealizedPnL.IsPositive() {
			winners++
		} else if t.RealizedPnL.IsNegative() {
			losers++
		}
	}

	return Report{
		TotalReturn:     totalReturn,
		TotalReturnPct:  totalReturn * 100,
		SharpeRatio:     SharpeRatio(returns, cfg),
		SortinoRatio:    SortinoRatio(returns, cfg),
		MaxDrawdown:     maxDD,
		MaxDrawdownPct:  maxDD * 100,
		MaxDrawdownDays: ddDays,
		WinRate:         winRate,
		WinRatePct:      winRate * 100,
		ProfitFactor:    ProfitFactor(trades),
		AverageWin:      avgWin,
		AverageLoss:     avgLoss,
		CalmarRatio:     CalmarRatio(totalReturn, maxDD),
		TotalTrades:     len(trades),
		WinningTrades:   winners,
		LosingTrades:    losers,
	}
}

// TotalReturn is (finalEquity - initialCapital) / initialCapital.
func TotalReturn(initialCapital, finalEquity decimal.Decimal) float64 {
	if !initialCapital.IsPositive() {
		return 0
	}
	r, _ := finalEquity.Sub(initialCapital).Div(initialCapital).Float64()
	return r
}

// Returns computes the period-return series from consecutive equity samples.
// Fewer than two samples yield an empty series.
func Returns(curve []portfolio.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if !prev.IsPositive() {
			continue
		}
		r, _ := curve[i].Equity.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	return returns
}

// SharpeRatio is the annualised excess return over volatility. It yields 0
// with fewer than two returns or zero standard deviation.
func SharpeRatio(returns []float64, cfg Config) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := mean(returns)
	std := stddev(returns, mean)
	if std == 0 {
		return 0
	}
	ppy := float64(cfg.PeriodsPerYear)
	return (mean*ppy - cfg.RiskFreeRate) / (std * math.Sqrt(ppy))
}

// SortinoRatio mirrors Sharpe but penalises only downside deviation. The
// downside variance divides by the full returns count, not the downside
// count. With no negative returns it reports RatioUndefined.
func SortinoRatio(returns []float64, cfg Config) float64 {
	if len(returns) < 2 {
		return 0
	}
	var downsideSq float64
	negatives := 0
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
			negatives++
		}
	}
	if negatives == 0 {
		return RatioUndefined
	}
	downsideStd := math.Sqrt(downsideSq / float64(len(returns)))
	if downsideStd == 0 {
		return 0
	}
	ppy := float64(cfg.PeriodsPerYear)
	return (mean(returns)*ppy - cfg.RiskFreeRate) / (downsideStd * math.Sqrt(ppy))
}

// MaxDrawdown scans the equity curve and returns the maximum peak-to-trough
// decline as a fraction of the peak, together with its duration in whole
// days. The duration runs from the peak that led to the maximum drawdown to
// the sample where that maximum was recorded, and only advances when a new
// maximum is found.
func MaxDrawdown(curve []portfolio.EquityPoint) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}

	maxDD := decimal.Zero
	peak := curve[0].Equity
	peakTime := curve[0].Timestamp
	maxDays := 0
	var ddStart time.Time
	inDrawdown := false

	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
			peakTime = point.Timestamp
			inDrawdown = false
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(point.Equity).Div(peak)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			if !inDrawdown {
				ddStart = peakTime
				inDrawdown = true
			}
			days := int(point.Timestamp.Sub(ddStart).Hours() / 24)
			if days > maxDays {
				maxDays = days
			}
		}
	}

	out, _ := maxDD.Float64()
	return out, maxDays
}

// WinRate is the fraction of all trades whose realized P&L is positive.
// Trades with no or zero realized P&L count toward the denominator only.
func WinRate(trades []*domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	winners := 0
	for _, t := range trades {
		if t.RealizedPnL != nil && t.RealizedPnL.IsPositive() {
			winners++
		}
	}
	return float64(winners) / float64(len(trades))
}

// ProfitFactor is gross profit over gross loss. A zero gross loss yields
// RatioUndefined when there is any profit, 0 otherwise.
func ProfitFactor(trades []*domain.Trade) float64 {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		if t.RealizedPnL.IsPositive() {
			grossProfit = grossProfit.Add(*t.RealizedPnL)
		} else if t.RealizedPnL.IsNegative() {
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
		}
	}
	if grossLoss.IsZero() {
		if grossProfit.IsPositive() {
			return RatioUndefined
		}
		return 0
	}
	out, _ := grossProfit.Div(grossLoss).Float64()
	return out
}

// AverageWinLoss returns the mean winning and mean losing realized P&L.
func AverageWinLoss(trades []*domain.Trade) (avgWin, avgLoss float64) {
	winSum, lossSum := decimal.Zero, decimal.Zero
	wins, losses := 0, 0
	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		if t.RealizedPnL.IsPositive() {
			winSum = winSum.Add(*t.RealizedPnL)
			wins++
		} else if t.RealizedPnL.IsNegative() {
			lossSum = lossSum.Add(*t.RealizedPnL)
			losses++
		}
	}
	if wins > 0 {
		avgWin, _ = winSum.Div(decimal.NewFromInt(int64(wins))).Float64()
	}
	if losses > 0 {
		avgLoss, _ = lossSum.Div(decimal.NewFromInt(int64(losses))).Float64()
	}
	return avgWin, avgLoss
}

// CalmarRatio is total return over maximum drawdown, with the same sentinel
// convention as ProfitFactor for a zero drawdown.
func CalmarRatio(totalReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		if totalReturn > 0 {
			return RatioUndefined
		}
		return 0
	}
	return totalReturn / maxDrawdown
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64, mean float64) float64 {
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(xs)))
}
