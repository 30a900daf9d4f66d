// Package indicators implements the technical and risk math the analysis
// agents share. All functions are pure and operate on price series ordered
// oldest first.
package indicators

import (
	"fmt"
	"math"
)

// SMA returns the simple moving average over the trailing period.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("need %d values for SMA, have %d", period, len(values))
	}
	return mean(values[len(values)-period:]), nil
}

// EMA returns the exponential moving average of the series, seeded with the
// SMA of the first period and smoothed with 2/(period+1).
func EMA(values []float64, period int) (float64, error) {
	series, err := emaSeries(values, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// emaSeries returns the EMA at every index from period-1 onward.
func emaSeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("need %d values for EMA, have %d", period, len(values))
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	ema := mean(values[:period])
	out = append(out, ema)
	for _, v := range values[period:] {
		ema += k * (v - ema)
		out = append(out, ema)
	}
	return out, nil
}

// RSI returns the relative strength index over the trailing period, using
// the mean gain and mean loss of the last period deltas. A window with no
// losses reads 100, one with no gains reads 0.
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period+1 {
		return 0, fmt.Errorf("need %d values for RSI, have %d", period+1, len(values))
	}
	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACDResult holds the convergence/divergence line, its signal line, and the
// histogram between them.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the moving average convergence divergence with the given
// fast, slow, and signal periods (conventionally 12, 26, 9).
func MACD(values []float64, fast, slow, signalPeriod int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return MACDResult{}, fmt.Errorf("periods must be positive, got %d/%d/%d", fast, slow, signalPeriod)
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("fast period %d must be shorter than slow period %d", fast, slow)
	}
	need := slow + signalPeriod - 1
	if len(values) < need {
		return MACDResult{}, fmt.Errorf("need %d values for MACD, have %d", need, len(values))
	}

	fastSeries, err := emaSeries(values, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowSeries, err := emaSeries(values, slow)
	if err != nil {
		return MACDResult{}, err
	}

	// The slow series starts slow-fast entries later; align before
	// differencing.
	offset := slow - fast
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := emaSeries(macdLine, signalPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	m := macdLine[len(macdLine)-1]
	s := signalSeries[len(signalSeries)-1]
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}, nil
}

// Bands holds Bollinger bands around a moving average.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns the bands at width standard deviations around the
// trailing period SMA (conventionally 20 and 2).
func Bollinger(values []float64, period int, width float64) (Bands, error) {
	if period <= 0 {
		return Bands{}, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return Bands{}, fmt.Errorf("need %d values for Bollinger bands, have %d", period, len(values))
	}
	window := values[len(values)-period:]
	mid := mean(window)
	sd := stdDev(window)
	return Bands{
		Upper:  mid + width*sd,
		Middle: mid,
		Lower:  mid - width*sd,
	}, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the population variance.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

func covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, mb := mean(a), mean(b)
	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n)
}
