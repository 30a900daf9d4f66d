package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/indicators"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

// Risk levels, ordered from calmest to most severe.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
	RiskVeryHigh = "very_high"
)

// minRiskObservations is the smallest return series worth scoring; below
// it the assessor reports neutral metrics instead of noisy ones.
const minRiskObservations = 30

type riskParams struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	LookbackDays    int     `json:"lookback_days"`
	Benchmark       string  `json:"benchmark"`
}

// RiskAssessor measures volatility, beta, value at risk, drawdown, and
// Sharpe ratio from the collector's history and grades the subject's risk.
type RiskAssessor struct {
	baseAgent
	env    Env
	params riskParams
}

func init() {
	Register(TypeRiskAssessor, NewRiskAssessor)
}

// NewRiskAssessor builds the risk assessment agent.
func NewRiskAssessor(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &RiskAssessor{baseAgent: newBaseAgent(desc), env: env}, nil
}

func (r *RiskAssessor) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p riskParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeRiskAssessor, err)
	}
	if p.ConfidenceLevel <= 0 || p.ConfidenceLevel >= 1 {
		p.ConfidenceLevel = 0.95
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = 252
	}
	if p.Benchmark == "" {
		p.Benchmark = "SPY"
	}
	r.params = p
	return r.baseAgent.Initialize(ctx, desc)
}

func (r *RiskAssessor) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	bars, err := historyFrom(upstream)
	if err != nil {
		return nil, err
	}
	closes := marketdata.Closes(bars)
	if len(closes) > r.params.LookbackDays+1 {
		closes = closes[len(closes)-r.params.LookbackDays-1:]
	}
	returns := indicators.Returns(closes)

	res := agent.NewResult(r.name(), subject)

	vol, beta, valueAtRisk, drawdown, sharpe := 0.0, 1.0, 0.0, 0.0, 0.0
	level := RiskModerate
	score := 0

	if len(returns) >= minRiskObservations {
		vol = indicators.Volatility(returns)
		valueAtRisk = indicators.ValueAtRisk(returns, r.params.ConfidenceLevel)
		drawdown = indicators.MaxDrawdown(closes)
		sharpe = indicators.SharpeRatio(returns)
		beta = r.benchmarkBeta(ctx, returns, len(closes))

		switch {
		case vol > 0.40:
			score += 3
		case vol > 0.25:
			score += 2
		case vol > 0.15:
			score++
		}
		switch {
		case drawdown > 0.5:
			score += 3
		case drawdown > 0.3:
			score += 2
		case drawdown > 0.15:
			score++
		}
		switch {
		case valueAtRisk > 0.05:
			score += 2
		case valueAtRisk > 0.03:
			score++
		}

		switch {
		case score >= 6:
			level = RiskVeryHigh
		case score >= 4:
			level = RiskHigh
		case score >= 2:
			level = RiskModerate
		default:
			level = RiskLow
		}

		switch level {
		case RiskVeryHigh:
			res.AddSignal(agent.SignalSell, 0.8, -0.8, "very high risk profile across volatility, drawdown, and tail loss")
		case RiskHigh:
			res.AddSignal(agent.SignalSell, 0.7, -0.6, "elevated risk profile")
		case RiskLow:
			res.AddSignal(agent.SignalBuy, 0.6, 0.5, "low risk profile supports exposure")
		}

		if vol > 0.5 {
			res.AddSignal(agent.SignalSell, 0.6, -0.5, fmt.Sprintf("annualized volatility %.0f%% is extreme", vol*100))
		} else if vol < 0.15 {
			res.AddSignal(agent.SignalBuy, 0.6, 0.5, fmt.Sprintf("annualized volatility %.0f%% is low", vol*100))
		}
		if beta > 1.5 {
			res.AddSignal(agent.SignalSell, 0.6, -0.5, fmt.Sprintf("beta %.2f amplifies market swings", beta))
		} else if beta < 0.5 {
			res.AddSignal(agent.SignalBuy, 0.6, 0.5, fmt.Sprintf("beta %.2f dampens market swings", beta))
		}
		if drawdown > 0.4 {
			res.AddSignal(agent.SignalSell, 0.6, -0.5, fmt.Sprintf("max drawdown %.0f%% in the lookback window", drawdown*100))
		}
		if sharpe > 1.5 {
			res.AddSignal(agent.SignalBuy, 0.6, 0.5, fmt.Sprintf("Sharpe ratio %.2f rewards the risk taken", sharpe))
		} else if sharpe < 0 {
			res.AddSignal(agent.SignalSell, 0.6, -0.5, fmt.Sprintf("Sharpe ratio %.2f: returns do not cover the risk", sharpe))
		}
	} else {
		res.AddSignal(agent.SignalWarn, 0.3, 0,
			fmt.Sprintf("only %d return observations, reporting neutral risk", len(returns)))
	}

	res.Payload["risk_level"] = level
	res.Payload["risk_score"] = score
	res.Payload["observations"] = len(returns)
	res.Payload["metrics"] = map[string]float64{
		"volatility":    vol,
		"beta":          beta,
		"value_at_risk": valueAtRisk,
		"max_drawdown":  drawdown,
		"sharpe_ratio":  sharpe,
	}
	res.Confidence = meanConfidence(res.Signals, 0.5)
	return res, nil
}

// benchmarkBeta regresses the subject's returns against the benchmark's
// over the same window. A missing provider or fetch failure degrades to
// the market-neutral 1.0 rather than failing the assessment.
func (r *RiskAssessor) benchmarkBeta(ctx context.Context, returns []float64, days int) float64 {
	if r.env.Market == nil {
		return 1.0
	}
	benchBars, err := r.env.Market.History(ctx, r.params.Benchmark, days)
	if err != nil {
		log.Printf("[RiskAssessor] Benchmark %s history: %v", r.params.Benchmark, err)
		return 1.0
	}
	return indicators.Beta(returns, indicators.Returns(marketdata.Closes(benchBars)))
}
