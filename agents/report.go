package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/finsight-dev/finsight/agent"
)

// DefaultReportDir is where report documents land unless overridden.
const DefaultReportDir = "reports"

// Recommendation labels, strongest conviction outward.
const (
	RecStrongBuy  = "STRONG BUY"
	RecBuy        = "BUY"
	RecHold       = "HOLD"
	RecSell       = "SELL"
	RecStrongSell = "STRONG SELL"
)

// defaultSectionWeights blend the four analyst verdicts into one score.
var defaultSectionWeights = map[string]float64{
	"technical":   0.25,
	"fundamental": 0.35,
	"risk":        0.20,
	"sentiment":   0.20,
}

// riskLevelScores translate a risk grade into a signed contribution.
var riskLevelScores = map[string]float64{
	RiskLow:      0.5,
	RiskModerate: 0,
	RiskHigh:     -0.5,
	RiskVeryHigh: -1,
}

type reportParams struct {
	OutputDir string             `json:"output_dir"`
	Weights   map[string]float64 `json:"weights"`
}

// ReportGenerator folds the analyst verdicts into a single recommendation
// and writes the full report as a JSON document.
type ReportGenerator struct {
	baseAgent
	params reportParams
}

func init() {
	Register(TypeReportGenerator, NewReportGenerator)
}

// NewReportGenerator builds the report agent.
func NewReportGenerator(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &ReportGenerator{baseAgent: newBaseAgent(desc)}, nil
}

func (g *ReportGenerator) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p reportParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeReportGenerator, err)
	}
	if p.OutputDir == "" {
		p.OutputDir = DefaultReportDir
	}
	weights := make(map[string]float64, len(defaultSectionWeights))
	for section, w := range defaultSectionWeights {
		weights[section] = w
	}
	for section, w := range p.Weights {
		if w >= 0 {
			weights[section] = w
		}
	}
	p.Weights = weights
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create report directory %s: %w", p.OutputDir, err)
	}
	g.params = p
	return g.baseAgent.Initialize(ctx, desc)
}

func (g *ReportGenerator) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	sections := make(map[string]any, 4)
	var reasons []string
	var score, weightSum float64

	if tech, ok := findPayload(upstream, "trend"); ok {
		contribution := technicalScore(tech)
		trend, _ := tech.Payload["trend"].(string)
		score += g.params.Weights["technical"] * contribution
		weightSum += g.params.Weights["technical"]
		sections["technical"] = map[string]any{
			"trend":   trend,
			"score":   round2(contribution),
			"signals": len(tech.Signals),
		}
		reasons = append(reasons, fmt.Sprintf("technical trend %s", trend))
	}

	if fund, ok := findPayload(upstream, "scores"); ok {
		if scores, ok := fund.Payload["scores"].(map[string]float64); ok {
			contribution := (scores["overall"] - 0.5) * 2
			score += g.params.Weights["fundamental"] * contribution
			weightSum += g.params.Weights["fundamental"]
			sections["fundamental"] = map[string]any{
				"overall": scores["overall"],
				"score":   round2(contribution),
			}
			reasons = append(reasons, fmt.Sprintf("fundamental score %.2f", scores["overall"]))
		}
	}

	if risk, ok := findPayload(upstream, "risk_level"); ok {
		if level, ok := risk.Payload["risk_level"].(string); ok {
			contribution := riskLevelScores[level]
			score += g.params.Weights["risk"] * contribution
			weightSum += g.params.Weights["risk"]
			sections["risk"] = map[string]any{
				"level": level,
				"score": round2(contribution),
			}
			reasons = append(reasons, fmt.Sprintf("risk level %s", strings.ReplaceAll(level, "_", " ")))
		}
	}

	if sent, ok := findPayload(upstream, "sentiment"); ok {
		if scores, ok := sent.Payload["sentiment"].(map[string]float64); ok {
			contribution := scores["overall"]
			score += g.params.Weights["sentiment"] * contribution
			weightSum += g.params.Weights["sentiment"]
			sections["sentiment"] = map[string]any{
				"overall": scores["overall"],
				"score":   round2(contribution),
			}
			reasons = append(reasons, fmt.Sprintf("sentiment %.2f", scores["overall"]))
		}
	}

	if weightSum == 0 {
		return nil, fmt.Errorf("no analyst results to report on for %s", subject)
	}
	score /= weightSum

	recommendation, confidence := recommend(score)
	reasoning := strings.Join(reasons, "; ")

	doc := map[string]any{
		"symbol":         subject,
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"recommendation": recommendation,
		"score":          round2(score),
		"confidence":     round2(confidence),
		"reasoning":      reasoning,
		"sections":       sections,
	}
	if subjects := agent.SubjectsParam(params); len(subjects) > 1 {
		doc["portfolio"] = map[string]any{"symbols": subjects}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(g.params.OutputDir, fmt.Sprintf("%s_report_%s.json", subject, stamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	res := agent.NewResult(g.name(), subject)
	switch recommendation {
	case RecStrongBuy, RecBuy:
		res.AddSignal(agent.SignalBuy, confidence, score, reasoning)
	case RecStrongSell, RecSell:
		res.AddSignal(agent.SignalSell, confidence, score, reasoning)
	default:
		res.AddSignal(agent.SignalHold, confidence, 0, reasoning)
	}
	res.Payload["recommendation"] = recommendation
	res.Payload["score"] = round2(score)
	res.Payload["sections"] = sections
	res.Payload["report_path"] = path
	res.Confidence = confidence
	return res, nil
}

// technicalScore reduces the analyst's signal mix to net conviction: buys
// minus sells over all signals.
func technicalScore(res *agent.Result) float64 {
	if len(res.Signals) == 0 {
		return 0
	}
	buys, sells := 0, 0
	for _, s := range res.Signals {
		switch s.Kind {
		case agent.SignalBuy:
			buys++
		case agent.SignalSell:
			sells++
		}
	}
	return float64(buys-sells) / float64(len(res.Signals))
}

// recommend maps the weighted score onto the recommendation ladder.
func recommend(score float64) (string, float64) {
	switch {
	case score >= 0.6:
		return RecStrongBuy, math.Min(math.Abs(score), 1.0)
	case score >= 0.2:
		return RecBuy, math.Abs(score) * 0.8
	case score >= -0.2:
		return RecHold, 0.5
	case score >= -0.6:
		return RecSell, math.Abs(score) * 0.8
	default:
		return RecStrongSell, math.Min(math.Abs(score), 1.0)
	}
}
