// Package marketdata supplies quotes, price history, and fundamentals to the
// collector agent. A Provider is the upstream source; CachedProvider fronts
// one with a TTL store so repeated requests inside a run do not re-fetch.
package marketdata

import (
	"context"
	"time"
)

// Quote is a point-in-time snapshot for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar is one OHLCV candle, oldest-first in a history series.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Closes extracts the closing prices of a series, oldest first.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Fundamentals carries the valuation and balance-sheet figures scored by the
// fundamental analyst. Growth rates and ROE are percentages.
type Fundamentals struct {
	Symbol         string  `json:"symbol"`
	MarketCap      float64 `json:"market_cap"`
	PERatio        float64 `json:"pe_ratio"`
	PBRatio        float64 `json:"pb_ratio"`
	EPS            float64 `json:"eps"`
	ROE            float64 `json:"roe"`
	DebtToEquity   float64 `json:"debt_to_equity"`
	FreeCashFlow   float64 `json:"free_cash_flow"`
	RevenueGrowth  float64 `json:"revenue_growth"`
	EarningsGrowth float64 `json:"earnings_growth"`
	DividendYield  float64 `json:"dividend_yield"`
}

// Provider is the upstream market data source.
type Provider interface {
	// Quote returns the current snapshot for one symbol.
	Quote(ctx context.Context, symbol string) (*Quote, error)

	// History returns the last days daily bars, oldest first.
	History(ctx context.Context, symbol string, days int) ([]Bar, error)

	// Fundamentals returns the symbol's financial figures.
	Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
}
