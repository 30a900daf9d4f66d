package indicators

import (
	"math"
	"sort"
)

// tradingDays is the conventional number of trading sessions per year used
// to annualize daily figures.
const tradingDays = 252

// riskFreeRate is the annual risk-free rate assumed by SharpeRatio.
const riskFreeRate = 0.02

// Returns converts a price series into simple period-over-period returns.
// The result has one fewer entry than the input.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

// Volatility annualizes the standard deviation of daily returns.
func Volatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stdDev(returns) * math.Sqrt(tradingDays)
}

// Beta measures sensitivity to market returns, clamped to [-1, 3].
func Beta(asset, market []float64) float64 {
	n := len(asset)
	if len(market) < n {
		n = len(market)
	}
	if n < 2 {
		return 1
	}
	asset, market = asset[len(asset)-n:], market[len(market)-n:]
	mv := variance(market)
	if mv == 0 {
		return 1
	}
	b := covariance(asset, market) / mv
	if b < -1 {
		b = -1
	} else if b > 3 {
		b = 3
	}
	return b
}

// ValueAtRisk returns the loss magnitude at the given confidence level from
// the historical distribution of returns. Confidence outside (0, 1) falls
// back to 0.95.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	return math.Abs(percentile(returns, (1-confidence)*100))
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of
// the peak.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	var maxDD float64
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			if dd := (peak - p) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio annualizes excess return per unit of volatility. A flat
// series reads 0.
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	excess := mean(returns) - riskFreeRate/tradingDays
	return excess / sd * math.Sqrt(tradingDays)
}

// percentile returns the q-th percentile (0..100) of values with linear
// interpolation between ranks.
func percentile(values []float64, q float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if q <= 0 {
		return s[0]
	}
	if q >= 100 {
		return s[len(s)-1]
	}
	rank := q / 100 * float64(len(s)-1)
	lower := int(rank)
	if lower+1 >= len(s) {
		return s[len(s)-1]
	}
	frac := rank - float64(lower)
	return s[lower] + frac*(s[lower+1]-s[lower])
}
