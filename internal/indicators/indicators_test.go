package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		period    int
		expected  float64
		expectErr bool
	}{
		{name: "full_window", values: []float64{1, 2, 3, 4, 5}, period: 5, expected: 3},
		{name: "trailing_window", values: []float64{10, 20, 30, 40}, period: 2, expected: 35},
		{name: "single_period", values: []float64{7, 9}, period: 1, expected: 9},
		{name: "insufficient_data", values: []float64{1, 2}, period: 3, expectErr: true},
		{name: "zero_period", values: []float64{1, 2, 3}, period: 0, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SMA(tt.values, tt.period)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestEMA(t *testing.T) {
	t.Run("seeded_with_sma", func(t *testing.T) {
		// Seed mean(1,2,3)=2 with k=0.5: 2 -> 3 -> 4.
		got, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, got, 1e-9)
	})

	t.Run("constant_series_is_flat", func(t *testing.T) {
		got, err := EMA([]float64{5, 5, 5, 5}, 2)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, got, 1e-9)
	})

	t.Run("insufficient_data", func(t *testing.T) {
		_, err := EMA([]float64{1, 2}, 3)
		assert.Error(t, err)
	})
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		period    int
		expected  float64
		expectErr bool
	}{
		{
			name:     "all_gains_reads_100",
			values:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			period:   14,
			expected: 100,
		},
		{
			name:     "all_losses_reads_0",
			values:   []float64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
			period:   14,
			expected: 0,
		},
		{
			name:     "balanced_reads_50",
			values:   []float64{10, 11, 10, 11, 10},
			period:   4,
			expected: 50,
		},
		{
			name:      "needs_period_plus_one",
			values:    []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
			period:    14,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.values, tt.period)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestMACD(t *testing.T) {
	t.Run("flat_series_is_zero", func(t *testing.T) {
		values := make([]float64, 40)
		for i := range values {
			values[i] = 50
		}
		res, err := MACD(values, 12, 26, 9)
		require.NoError(t, err)
		assert.InDelta(t, 0, res.MACD, 1e-9)
		assert.InDelta(t, 0, res.Signal, 1e-9)
		assert.InDelta(t, 0, res.Histogram, 1e-9)
	})

	t.Run("uptrend_is_positive", func(t *testing.T) {
		values := make([]float64, 40)
		for i := range values {
			values[i] = float64(i + 1)
		}
		res, err := MACD(values, 3, 6, 3)
		require.NoError(t, err)
		assert.Greater(t, res.MACD, 0.0, "fast EMA leads in an uptrend")
		assert.InDelta(t, res.MACD-res.Signal, res.Histogram, 1e-12)
	})

	t.Run("fast_must_be_shorter", func(t *testing.T) {
		_, err := MACD(make([]float64, 40), 26, 12, 9)
		assert.Error(t, err)
	})

	t.Run("insufficient_data", func(t *testing.T) {
		_, err := MACD(make([]float64, 33), 12, 26, 9)
		assert.Error(t, err)
	})
}

func TestBollinger(t *testing.T) {
	t.Run("two_sigma_bands", func(t *testing.T) {
		// Window mean 5, population sigma 2.
		values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
		bands, err := Bollinger(values, 8, 2)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, bands.Middle, 1e-9)
		assert.InDelta(t, 9.0, bands.Upper, 1e-9)
		assert.InDelta(t, 1.0, bands.Lower, 1e-9)
	})

	t.Run("insufficient_data", func(t *testing.T) {
		_, err := Bollinger([]float64{1, 2, 3}, 20, 2)
		assert.Error(t, err)
	})
}

func TestReturns(t *testing.T) {
	got := Returns([]float64{100, 110, 99})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.10, got[0], 1e-9)
	assert.InDelta(t, -0.10, got[1], 1e-9)

	assert.Nil(t, Returns([]float64{100}))
	assert.Nil(t, Returns(nil))
}

func TestVolatility(t *testing.T) {
	// Population std 0.1, annualized by sqrt(252).
	got := Volatility([]float64{0.1, -0.1})
	assert.InDelta(t, 1.5875, got, 1e-3)

	assert.Zero(t, Volatility(nil))
	assert.Zero(t, Volatility([]float64{0.05, 0.05, 0.05}))
}

func TestBeta(t *testing.T) {
	market := []float64{0.01, -0.01, 0.02, -0.02}

	double := make([]float64, len(market))
	for i, m := range market {
		double[i] = 2 * m
	}
	assert.InDelta(t, 2.0, Beta(double, market), 1e-9)

	extreme := make([]float64, len(market))
	inverse := make([]float64, len(market))
	for i, m := range market {
		extreme[i] = 10 * m
		inverse[i] = -5 * m
	}
	assert.InDelta(t, 3.0, Beta(extreme, market), 1e-9, "beta is capped above")
	assert.InDelta(t, -1.0, Beta(inverse, market), 1e-9, "beta is capped below")

	assert.InDelta(t, 1.0, Beta(double, []float64{0.01, 0.01, 0.01, 0.01}), 1e-9,
		"flat market defaults to neutral beta")
	assert.InDelta(t, 1.0, Beta([]float64{0.01}, market), 1e-9, "too little data defaults to 1")
}

func TestValueAtRisk(t *testing.T) {
	returns := []float64{-0.05, -0.02, 0.01, 0.03}
	// 5th percentile of the sorted returns, interpolated.
	assert.InDelta(t, 0.0455, ValueAtRisk(returns, 0.95), 1e-9)

	assert.Zero(t, ValueAtRisk(nil, 0.95))
	// Out-of-range confidence falls back to 0.95.
	assert.InDelta(t, ValueAtRisk(returns, 0.95), ValueAtRisk(returns, 1.5), 1e-12)
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, MaxDrawdown([]float64{100, 120, 90, 100, 80}), 1e-9)
	assert.Zero(t, MaxDrawdown([]float64{1, 2, 3, 4}))
	assert.Zero(t, MaxDrawdown(nil))
}

func TestSharpeRatio(t *testing.T) {
	got := SharpeRatio([]float64{0.01, -0.01})
	assert.InDelta(t, -0.126, got, 1e-3)

	assert.Zero(t, SharpeRatio(nil))
	assert.Zero(t, SharpeRatio([]float64{0.01, 0.01}), "flat series has no defined ratio")
}
