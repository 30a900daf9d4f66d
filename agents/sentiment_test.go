package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-dev/finsight/agent"
)

func newSentiment(t *testing.T, params map[string]any) agent.Agent {
	t.Helper()
	return initAgent(t, TypeSentimentAnalyzer, agent.Descriptor{
		Name:    TypeSentimentAnalyzer,
		Enabled: true,
		Params:  params,
	}, Env{})
}

func sentimentScores(t *testing.T, res *agent.Result) map[string]float64 {
	t.Helper()
	scores, ok := res.Payload["sentiment"].(map[string]float64)
	require.True(t, ok, "sentiment payload missing")
	return scores
}

func TestSentiment_StableAcrossRuns(t *testing.T) {
	first, err := newSentiment(t, nil).Process(context.Background(), "AAPL", nil, nil)
	require.NoError(t, err)
	second, err := newSentiment(t, nil).Process(context.Background(), "AAPL", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, sentimentScores(t, first), sentimentScores(t, second))
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, len(first.Signals), len(second.Signals))
}

func TestSentiment_SymbolsDiffer(t *testing.T) {
	a := newSentiment(t, nil)
	apple, err := a.Process(context.Background(), "AAPL", nil, nil)
	require.NoError(t, err)
	micro, err := a.Process(context.Background(), "MSFT", nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, sentimentScores(t, apple), sentimentScores(t, micro))
}

func TestSentiment_ScoresAndSignals(t *testing.T) {
	a := newSentiment(t, nil)
	for _, symbol := range []string{"AAPL", "MSFT", "TSLA", "NVDA"} {
		res, err := a.Process(context.Background(), symbol, nil, nil)
		require.NoError(t, err)

		scores := sentimentScores(t, res)
		for _, source := range []string{"news", "social", "analyst", "insider"} {
			v, ok := scores[source]
			require.True(t, ok, "%s: missing %s score", symbol, source)
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		blend := scores["news"]*0.3 + scores["social"]*0.2 + scores["analyst"]*0.4 + scores["insider"]*0.1
		assert.InDelta(t, blend, scores["overall"], 0.005, "%s: overall is not the weighted blend", symbol)
		assert.Equal(t, 24, res.Payload["window_hours"])

		// The aggregate verdict, when one fires, is always emitted first.
		switch {
		case blend >= 0.6:
			require.NotEmpty(t, res.Signals, "%s: strong positive overall must signal", symbol)
			assert.Equal(t, agent.SignalBuy, res.Signals[0].Kind)
		case blend <= -0.6:
			require.NotEmpty(t, res.Signals, "%s: strong negative overall must signal", symbol)
			assert.Equal(t, agent.SignalSell, res.Signals[0].Kind)
		case blend > -0.2 && blend < 0.2:
			require.NotEmpty(t, res.Signals)
			assert.Equal(t, agent.SignalHold, res.Signals[0].Kind)
		}

		lo, hi := 1.0, 0.0
		for _, s := range res.Signals {
			assert.Greater(t, s.Confidence, 0.0, "%s: %s", symbol, s.Rationale)
			assert.LessOrEqual(t, s.Confidence, 1.0)
			assert.GreaterOrEqual(t, s.Strength, -1.0)
			assert.LessOrEqual(t, s.Strength, 1.0)
			if s.Confidence < lo {
				lo = s.Confidence
			}
			if s.Confidence > hi {
				hi = s.Confidence
			}
		}
		if len(res.Signals) == 0 {
			assert.Equal(t, 0.5, res.Confidence, symbol)
		} else {
			// A reliability-weighted mean stays inside the raw range.
			assert.GreaterOrEqual(t, res.Confidence, lo, symbol)
			assert.LessOrEqual(t, res.Confidence, hi, symbol)
		}
	}
}

func TestSentiment_WindowParam(t *testing.T) {
	a := newSentiment(t, map[string]any{"lookback_hours": 72})
	res, err := a.Process(context.Background(), "AAPL", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 72, res.Payload["window_hours"])
}
