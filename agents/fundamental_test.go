package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

func newFundamental(t *testing.T) agent.Agent {
	t.Helper()
	return initAgent(t, TypeFundamentalAnalyst, agent.Descriptor{
		Name:    TypeFundamentalAnalyst,
		Enabled: true,
	}, Env{})
}

func TestFundamental_SolidCompany(t *testing.T) {
	// Valuation 3, profitability 2, health 3, growth 4: overall 12/20.
	upstream := fundamentalsUpstream(marketdata.Fundamentals{
		Symbol:          "TEST",
		PERatio:         12,
		PBRatio:         1.2,
		ROE:             22,
		DebtToEquity:    0.3,
		FreeCashFlow:    1e9,
		RevenueGrowth:   18,
		EarningsGrowth:  18,
	})
	a := newFundamental(t)

	res, err := a.Process(context.Background(), "TEST", upstream, nil)
	require.NoError(t, err)
	require.Equal(t, agent.StatusOK, res.Status)

	scores := res.Payload["scores"].(map[string]float64)
	assert.Equal(t, 3.0, scores["valuation"])
	assert.Equal(t, 2.0, scores["profitability"])
	assert.Equal(t, 3.0, scores["financial_health"])
	assert.Equal(t, 4.0, scores["growth"])
	assert.InDelta(t, 0.6, scores["overall"], 1e-9)

	require.Len(t, res.Signals, 1)
	assert.Equal(t, agent.SignalBuy, res.Signals[0].Kind)
	assert.InDelta(t, 0.6, res.Signals[0].Strength, 1e-9)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestFundamental_DeepValueQuality(t *testing.T) {
	// Ladder buy plus all three bullish metric signals.
	upstream := fundamentalsUpstream(marketdata.Fundamentals{
		Symbol:          "TEST",
		PERatio:         8,
		PBRatio:         1.0,
		ROE:             30,
		DebtToEquity:    0.2,
		FreeCashFlow:    2e9,
		RevenueGrowth:   25,
		EarningsGrowth:  25,
	})
	a := newFundamental(t)

	res, err := a.Process(context.Background(), "TEST", upstream, nil)
	require.NoError(t, err)

	require.Len(t, res.Signals, 4)
	for _, s := range res.Signals {
		assert.Equal(t, agent.SignalBuy, s.Kind)
	}
	// Strength-weighted confidence over (0.7,0.6) (0.6,0.5) (0.7,0.6) (0.8,0.7).
	assert.InDelta(t, 0.7083, res.Confidence, 1e-3)
}

func TestFundamental_Distressed(t *testing.T) {
	upstream := fundamentalsUpstream(marketdata.Fundamentals{
		Symbol:          "TEST",
		PERatio:         30,
		PBRatio:         3.5,
		ROE:             5,
		DebtToEquity:    2.5,
		FreeCashFlow:    -1e8,
		RevenueGrowth:   -5,
		EarningsGrowth:  -12,
	})
	a := newFundamental(t)

	res, err := a.Process(context.Background(), "TEST", upstream, nil)
	require.NoError(t, err)

	scores := res.Payload["scores"].(map[string]float64)
	assert.Equal(t, 0.0, scores["valuation"])
	assert.Equal(t, 0.0, scores["profitability"])
	assert.Equal(t, 0.0, scores["financial_health"])
	assert.Equal(t, 0.0, scores["growth"])
	assert.Equal(t, 0.0, scores["overall"])

	require.Len(t, res.Signals, 2)
	assert.Equal(t, agent.SignalSell, res.Signals[0].Kind)
	assert.InDelta(t, -0.8, res.Signals[0].Strength, 1e-9)
	assert.Equal(t, agent.SignalSell, res.Signals[1].Kind)
	assert.InDelta(t, 0.7231, res.Confidence, 1e-3)
}

func TestFundamental_FairValueHolds(t *testing.T) {
	// Overall lands exactly on the hold band at 8/20; the lone hold signal
	// has no strength, so confidence falls back to the plain mean.
	upstream := fundamentalsUpstream(marketdata.Fundamentals{
		Symbol:          "TEST",
		PERatio:         12,
		PBRatio:         2.0,
		ROE:             18,
		DebtToEquity:    0.8,
		FreeCashFlow:    1e8,
		RevenueGrowth:   18,
		EarningsGrowth:  8,
	})
	a := newFundamental(t)

	res, err := a.Process(context.Background(), "TEST", upstream, nil)
	require.NoError(t, err)

	scores := res.Payload["scores"].(map[string]float64)
	assert.InDelta(t, 0.4, scores["overall"], 1e-9)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, agent.SignalHold, res.Signals[0].Kind)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestFundamental_NoUpstream(t *testing.T) {
	a := newFundamental(t)
	_, err := a.Process(context.Background(), "TEST", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fundamentals")
}
