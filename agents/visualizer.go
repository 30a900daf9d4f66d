package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/finsight-dev/finsight/agent"
)

// DefaultChartDir is where chart specifications land unless overridden.
const DefaultChartDir = "reports/charts"

type visualizerParams struct {
	OutputDir  string   `json:"output_dir"`
	ChartTypes []string `json:"chart_types"`
}

// Visualizer renders analyst output into chart specification documents:
// JSON files a charting frontend can plot without re-running the analysis.
type Visualizer struct {
	baseAgent
	params visualizerParams
}

func init() {
	Register(TypeVisualizer, NewVisualizer)
}

// NewVisualizer builds the chart specification agent.
func NewVisualizer(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &Visualizer{baseAgent: newBaseAgent(desc)}, nil
}

func (v *Visualizer) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p visualizerParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeVisualizer, err)
	}
	if p.OutputDir == "" {
		p.OutputDir = DefaultChartDir
	}
	if len(p.ChartTypes) == 0 {
		p.ChartTypes = []string{"candlestick", "volume", "indicators", "fundamental"}
	}
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create chart directory %s: %w", p.OutputDir, err)
	}
	v.params = p
	return v.baseAgent.Initialize(ctx, desc)
}

func (v *Visualizer) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	tech, techOK := findPayload(upstream, "trend")
	fund, fundOK := findPayload(upstream, "scores")

	type chart struct {
		kind string
		spec map[string]any
	}
	var charts []chart

	for _, chartType := range v.params.ChartTypes {
		switch chartType {
		case "candlestick":
			if !techOK {
				continue
			}
			charts = append(charts, chart{"candlestick", map[string]any{
				"type":       "candlestick",
				"symbol":     subject,
				"overlays":   tech.Payload["indicators"],
				"trend":      tech.Payload["trend"],
				"support":    tech.Payload["support"],
				"resistance": tech.Payload["resistance"],
			}})
		case "volume":
			charts = append(charts, chart{"volume", map[string]any{
				"type":   "volume",
				"symbol": subject,
			}})
		case "indicators":
			if !techOK {
				continue
			}
			charts = append(charts, chart{"indicators", map[string]any{
				"type":   "indicators",
				"symbol": subject,
				"panels": []string{"rsi", "macd"},
				"values": tech.Payload["indicators"],
			}})
		case "fundamental":
			if !fundOK {
				continue
			}
			charts = append(charts, chart{"fundamental", map[string]any{
				"type":   "fundamental_bars",
				"symbol": subject,
				"scores": fund.Payload["scores"],
			}})
		}
	}

	if subjects := agent.SubjectsParam(params); len(subjects) > 1 {
		charts = append(charts, chart{"comparison", map[string]any{
			"type":      "comparison",
			"symbols":   subjects,
			"normalize": true,
		}})
	}

	if len(charts) == 0 {
		return nil, fmt.Errorf("no chart inputs available for %s", subject)
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	paths := make([]string, 0, len(charts))
	for _, c := range charts {
		data, err := json.MarshalIndent(c.spec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s chart: %w", c.kind, err)
		}
		path := filepath.Join(v.params.OutputDir, fmt.Sprintf("%s_%s_%s.json", subject, c.kind, stamp))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s chart: %w", c.kind, err)
		}
		paths = append(paths, path)
	}

	res := agent.NewResult(v.name(), subject)
	res.Payload["charts"] = paths
	res.Payload["count"] = len(paths)
	res.Confidence = 1.0
	return res, nil
}
