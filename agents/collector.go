package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

// orchestratorName is the bus participant that receives collection events.
const orchestratorName = "orchestrator"

// DefaultMaxSymbols bounds how many symbols one request may carry before
// the collector refuses it.
const DefaultMaxSymbols = 10

type collectorParams struct {
	MaxSymbols  int `json:"max_symbols"`
	HistoryDays int `json:"history_days"`
}

// Collector fetches quote, price history, and fundamentals for each subject
// and hands them downstream. Every other built-in depends on its output.
type Collector struct {
	baseAgent
	env    Env
	params collectorParams
}

func init() {
	Register(TypeDataCollector, NewCollector)
}

// NewCollector builds the data collection agent.
func NewCollector(desc agent.Descriptor, env Env) (agent.Agent, error) {
	if env.Market == nil {
		return nil, fmt.Errorf("%s requires a market data provider", TypeDataCollector)
	}
	return &Collector{baseAgent: newBaseAgent(desc), env: env}, nil
}

func (c *Collector) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p collectorParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeDataCollector, err)
	}
	if p.MaxSymbols <= 0 {
		p.MaxSymbols = DefaultMaxSymbols
	}
	if p.HistoryDays <= 0 {
		p.HistoryDays = marketdata.DefaultHistoryDays
	}
	c.params = p
	return c.baseAgent.Initialize(ctx, desc)
}

func (c *Collector) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	if subjects := agent.SubjectsParam(params); len(subjects) > c.params.MaxSymbols {
		return nil, fmt.Errorf("request carries %d symbols, the collector accepts at most %d",
			len(subjects), c.params.MaxSymbols)
	}

	quote, err := c.env.Market.Quote(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("quote for %s: %w", subject, err)
	}
	history, err := c.env.Market.History(ctx, subject, c.params.HistoryDays)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", subject, err)
	}
	fundamentals, err := c.env.Market.Fundamentals(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("fundamentals for %s: %w", subject, err)
	}

	res := agent.NewResult(c.name(), subject)
	res.Payload["quote"] = *quote
	res.Payload["history"] = history
	res.Payload["fundamentals"] = *fundamentals
	res.Confidence = 1.0

	if c.env.Bus != nil {
		msg := agent.NewMessage("data.collected", c.name(), orchestratorName, map[string]any{
			"symbol": subject,
			"bars":   len(history),
			"price":  quote.Price,
		})
		if err := c.env.Bus.Publish(ctx, msg); err != nil {
			log.Printf("[Collector] Publish data.collected for %s: %v", subject, err)
		}
	}
	return res, nil
}
