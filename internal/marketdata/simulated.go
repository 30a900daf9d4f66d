package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// DefaultHistoryDays is the series length used when a caller passes zero.
const DefaultHistoryDays = 90

// SimulatedProvider generates symbol-seeded market data for development and
// tests. The same symbol always yields the same prices, so downstream
// analysis is reproducible. Calls pass through a rate limiter sized like a
// real data vendor's quota.
type SimulatedProvider struct {
	limiter *rate.Limiter
}

// NewSimulatedProvider builds a provider allowing the given number of
// requests per minute. Zero or negative means 60.
func NewSimulatedProvider(requestsPerMinute int) *SimulatedProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &SimulatedProvider{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}
}

// Quote returns the snapshot derived from the last bar of the default
// history window, so quotes and history agree for a symbol.
func (p *SimulatedProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	bars := p.walk(symbol, DefaultHistoryDays)
	last := bars[len(bars)-1]
	return &Quote{
		Symbol:    symbol,
		Price:     last.Close,
		Open:      last.Open,
		High:      last.High,
		Low:       last.Low,
		Volume:    last.Volume,
		Timestamp: time.Now().UTC(),
	}, nil
}

// History returns the last days daily bars, oldest first.
func (p *SimulatedProvider) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}
	return p.walk(symbol, days), nil
}

// Fundamentals returns figures drawn from a separate symbol-seeded stream so
// they do not correlate with the price walk.
func (p *SimulatedProvider) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	rng := rand.New(rand.NewSource(seed(symbol) + 1))
	return &Fundamentals{
		Symbol:         symbol,
		MarketCap:      round2(2e9 + rng.Float64()*998e9),
		PERatio:        round2(8 + rng.Float64()*30),
		PBRatio:        round2(0.8 + rng.Float64()*4),
		EPS:            round2(1 + rng.Float64()*14),
		ROE:            round2(5 + rng.Float64()*25),
		DebtToEquity:   round2(rng.Float64() * 2.5),
		FreeCashFlow:   round2((rng.Float64() - 0.2) * 5e9),
		RevenueGrowth:  round2(-5 + rng.Float64()*30),
		EarningsGrowth: round2(-10 + rng.Float64()*35),
		DividendYield:  round2(rng.Float64() * 4),
	}, nil
}

// walk produces a deterministic random walk for the symbol. Prices stay
// positive; bar dates end yesterday.
func (p *SimulatedProvider) walk(symbol string, days int) []Bar {
	rng := rand.New(rand.NewSource(seed(symbol)))
	price := 20 + rng.Float64()*480
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -days)

	bars := make([]Bar, 0, days)
	for i := 0; i < days; i++ {
		open := price
		change := rng.NormFloat64() * 0.02
		closing := open * (1 + change)
		if closing < 1 {
			closing = 1
		}
		high := math.Max(open, closing) * (1 + rng.Float64()*0.01)
		low := math.Min(open, closing) * (1 - rng.Float64()*0.01)
		bars = append(bars, Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(closing),
			Volume: 1_000_000 + rng.Int63n(9_000_000),
		})
		price = closing
	}
	return bars
}

func seed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
