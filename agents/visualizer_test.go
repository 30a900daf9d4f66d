package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-dev/finsight/agent"
)

func newVisualizer(t *testing.T, params map[string]any) agent.Agent {
	t.Helper()
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["output_dir"]; !ok {
		params["output_dir"] = t.TempDir()
	}
	return initAgent(t, TypeVisualizer, agent.Descriptor{
		Name:    TypeVisualizer,
		Enabled: true,
		Params:  params,
	}, Env{})
}

// analystUpstream fakes just enough analyst output for chart building.
func analystUpstream(withTech, withFund bool) map[string]*agent.Result {
	up := map[string]*agent.Result{}
	if withTech {
		tech := agent.NewResult(TypeTechnicalAnalyst, "TEST")
		tech.Payload["trend"] = "bullish"
		tech.Payload["indicators"] = map[string]any{"rsi": 55.0}
		tech.Payload["support"] = 95.0
		tech.Payload["resistance"] = 110.0
		up[TypeTechnicalAnalyst] = tech
	}
	if withFund {
		fund := agent.NewResult(TypeFundamentalAnalyst, "TEST")
		fund.Payload["scores"] = map[string]float64{"overall": 0.6}
		up[TypeFundamentalAnalyst] = fund
	}
	return up
}

func chartPaths(t *testing.T, res *agent.Result) []string {
	t.Helper()
	paths, ok := res.Payload["charts"].([]string)
	require.True(t, ok, "charts payload missing")
	require.Equal(t, len(paths), res.Payload["count"])
	return paths
}

func TestVisualizer_FullChartSet(t *testing.T) {
	v := newVisualizer(t, nil)

	res, err := v.Process(context.Background(), "TEST", analystUpstream(true, true), nil)
	require.NoError(t, err)
	require.Equal(t, agent.StatusOK, res.Status)
	assert.Equal(t, 1.0, res.Confidence)

	paths := chartPaths(t, res)
	require.Len(t, paths, 4)
	for i, kind := range []string{"candlestick", "volume", "indicators", "fundamental"} {
		base := filepath.Base(paths[i])
		assert.True(t, strings.HasPrefix(base, "TEST_"+kind+"_"), "unexpected file name %s", base)
		_, err := os.Stat(paths[i])
		assert.NoError(t, err, "chart file %s not written", base)
	}

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(data, &spec))
	assert.Equal(t, "candlestick", spec["type"])
	assert.Equal(t, "TEST", spec["symbol"])
	assert.Equal(t, "bullish", spec["trend"])
}

func TestVisualizer_ComparisonForBatches(t *testing.T) {
	v := newVisualizer(t, nil)
	params := map[string]any{agent.ParamSubjects: []string{"TEST", "OTHR"}}

	res, err := v.Process(context.Background(), "TEST", analystUpstream(true, true), params)
	require.NoError(t, err)

	paths := chartPaths(t, res)
	require.Len(t, paths, 5)
	assert.Contains(t, filepath.Base(paths[4]), "_comparison_")

	data, err := os.ReadFile(paths[4])
	require.NoError(t, err)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(data, &spec))
	assert.Equal(t, []any{"TEST", "OTHR"}, spec["symbols"])
	assert.Equal(t, true, spec["normalize"])
}

func TestVisualizer_DegradesWithoutAnalysts(t *testing.T) {
	// Volume needs no analyst input, so a bare upstream still yields one chart.
	v := newVisualizer(t, nil)

	res, err := v.Process(context.Background(), "TEST", nil, nil)
	require.NoError(t, err)
	paths := chartPaths(t, res)
	require.Len(t, paths, 1)
	assert.Contains(t, filepath.Base(paths[0]), "_volume_")
}

func TestVisualizer_PartialInputs(t *testing.T) {
	v := newVisualizer(t, nil)

	res, err := v.Process(context.Background(), "TEST", analystUpstream(false, true), nil)
	require.NoError(t, err)
	paths := chartPaths(t, res)
	require.Len(t, paths, 2)
	assert.Contains(t, filepath.Base(paths[0]), "_volume_")
	assert.Contains(t, filepath.Base(paths[1]), "_fundamental_")
}

func TestVisualizer_NoInputs(t *testing.T) {
	v := newVisualizer(t, map[string]any{"chart_types": []string{"candlestick", "indicators"}})

	_, err := v.Process(context.Background(), "TEST", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chart inputs")
}
