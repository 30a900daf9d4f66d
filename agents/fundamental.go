package agents

import (
	"context"
	"fmt"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

// FundamentalAnalyst scores valuation, profitability, financial health, and
// growth from the collector's fundamentals, each category on a 0..5 scale.
type FundamentalAnalyst struct {
	baseAgent
}

func init() {
	Register(TypeFundamentalAnalyst, NewFundamentalAnalyst)
}

// NewFundamentalAnalyst builds the fundamental analysis agent.
func NewFundamentalAnalyst(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &FundamentalAnalyst{baseAgent: newBaseAgent(desc)}, nil
}

func (f *FundamentalAnalyst) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	fund, err := fundamentalsFrom(upstream)
	if err != nil {
		return nil, err
	}

	valuation := 0.0
	switch {
	case fund.PERatio < 15:
		valuation += 2
	case fund.PERatio > 25:
		valuation--
	default:
		valuation++
	}
	switch {
	case fund.PBRatio < 1.5:
		valuation++
	case fund.PBRatio > 3:
		valuation--
	}
	valuation = clamp(valuation, 0, 5)

	profitability := 0.0
	switch {
	case fund.ROE > 20:
		profitability += 2
	case fund.ROE > 15:
		profitability++
	case fund.ROE < 10:
		profitability--
	}
	profitability = clamp(profitability, 0, 5)

	health := 0.0
	switch {
	case fund.DebtToEquity < 0.5:
		health += 2
	case fund.DebtToEquity < 1.0:
		health++
	default:
		health--
	}
	if fund.FreeCashFlow > 0 {
		health++
	} else {
		health--
	}
	health = clamp(health, 0, 5)

	growth := 0.0
	switch {
	case fund.RevenueGrowth > 15:
		growth += 2
	case fund.RevenueGrowth > 5:
		growth++
	case fund.RevenueGrowth < 0:
		growth--
	}
	switch {
	case fund.EarningsGrowth > 15:
		growth += 2
	case fund.EarningsGrowth > 5:
		growth++
	case fund.EarningsGrowth < 0:
		growth--
	}
	growth = clamp(growth, 0, 5)

	overall := (valuation + profitability + health + growth) / 20.0

	res := agent.NewResult(f.name(), subject)
	switch {
	case overall >= 0.8:
		res.AddSignal(agent.SignalBuy, 0.8, 0.8, fmt.Sprintf("fundamental score %.2f is exceptional", overall))
	case overall >= 0.6:
		res.AddSignal(agent.SignalBuy, 0.7, 0.6, fmt.Sprintf("fundamental score %.2f is strong", overall))
	case overall >= 0.4:
		res.AddSignal(agent.SignalHold, 0.6, 0, fmt.Sprintf("fundamental score %.2f is fair", overall))
	case overall >= 0.2:
		res.AddSignal(agent.SignalSell, 0.7, -0.6, fmt.Sprintf("fundamental score %.2f is weak", overall))
	default:
		res.AddSignal(agent.SignalSell, 0.8, -0.8, fmt.Sprintf("fundamental score %.2f is poor", overall))
	}

	if fund.PERatio > 0 && fund.PERatio < 10 {
		res.AddSignal(agent.SignalBuy, 0.6, 0.5, fmt.Sprintf("P/E %.1f is deep value territory", fund.PERatio))
	}
	if fund.ROE > 25 {
		res.AddSignal(agent.SignalBuy, 0.7, 0.6, fmt.Sprintf("return on equity %.1f%% is outstanding", fund.ROE))
	}
	if fund.DebtToEquity > 2 {
		res.AddSignal(agent.SignalSell, 0.6, -0.5, fmt.Sprintf("debt to equity %.2f is a leverage concern", fund.DebtToEquity))
	}
	if fund.RevenueGrowth > 20 && fund.EarningsGrowth > 20 {
		res.AddSignal(agent.SignalBuy, 0.8, 0.7, "revenue and earnings both compounding above 20%")
	}

	res.Payload["scores"] = map[string]float64{
		"valuation":        valuation,
		"profitability":    profitability,
		"financial_health": health,
		"growth":           growth,
		"overall":          round2(overall),
	}
	res.Payload["metrics"] = fundamentalMetrics(fund)
	res.Confidence = strengthWeightedConfidence(res.Signals, 0.5)
	return res, nil
}

func fundamentalMetrics(f marketdata.Fundamentals) map[string]float64 {
	return map[string]float64{
		"pe_ratio":        f.PERatio,
		"pb_ratio":        f.PBRatio,
		"eps":             f.EPS,
		"roe":             f.ROE,
		"debt_to_equity":  f.DebtToEquity,
		"free_cash_flow":  f.FreeCashFlow,
		"revenue_growth":  f.RevenueGrowth,
		"earnings_growth": f.EarningsGrowth,
		"dividend_yield":  f.DividendYield,
	}
}
