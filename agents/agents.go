// Package agents ships the built-in analysis agents: a market data
// collector, four analysts, a chart visualizer, and a report generator.
// Each registers a factory under its type name so the engine can build
// the standard pipeline from configuration alone.
package agents

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

// Built-in agent type names. The default instance name of each built-in
// matches its type.
const (
	TypeDataCollector      = "data_collector"
	TypeTechnicalAnalyst   = "technical_analyst"
	TypeFundamentalAnalyst = "fundamental_analyst"
	TypeRiskAssessor       = "risk_assessor"
	TypeSentimentAnalyzer  = "sentiment_analyzer"
	TypeVisualizer         = "visualizer"
	TypeReportGenerator    = "report_generator"
)

// Env carries the shared collaborators an agent factory binds into the
// instances it builds. Bus may be nil; agents must tolerate its absence.
type Env struct {
	Bus    *agent.Bus
	Market marketdata.Provider
}

// Factory builds one agent bound to its descriptor and environment.
type Factory func(desc agent.Descriptor, env Env) (agent.Agent, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a factory available under the given type name. Built-ins
// register themselves in init; external packages may add their own types
// before the engine starts.
func Register(typeName string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[typeName] = factory
}

// New builds an agent of the given type.
func New(typeName string, desc agent.Descriptor, env Env) (agent.Agent, error) {
	factoriesMu.RLock()
	factory, ok := factories[typeName]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent type: %s", typeName)
	}
	return factory(desc, env)
}

// Types returns the registered type names, sorted.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Upstream payload extraction. Agents locate collector output by its
// payload shape rather than by instance name, so renaming the collector
// in configuration does not break the analysts.

func historyFrom(upstream map[string]*agent.Result) ([]marketdata.Bar, error) {
	for _, res := range upstream {
		if res == nil || res.Payload == nil {
			continue
		}
		if bars, ok := res.Payload["history"].([]marketdata.Bar); ok {
			return bars, nil
		}
	}
	return nil, errors.New("no price history in upstream results")
}

func fundamentalsFrom(upstream map[string]*agent.Result) (marketdata.Fundamentals, error) {
	for _, res := range upstream {
		if res == nil || res.Payload == nil {
			continue
		}
		if f, ok := res.Payload["fundamentals"].(marketdata.Fundamentals); ok {
			return f, nil
		}
	}
	return marketdata.Fundamentals{}, errors.New("no fundamentals in upstream results")
}

// findPayload returns the first usable upstream result whose payload
// carries the given key. Downstream composers use distinctive keys
// (trend, scores, risk_level, sentiment) to identify each analyst.
func findPayload(upstream map[string]*agent.Result, key string) (*agent.Result, bool) {
	for _, res := range upstream {
		if res == nil || res.Payload == nil {
			continue
		}
		if _, ok := res.Payload[key]; ok {
			return res, true
		}
	}
	return nil, false
}

// meanConfidence averages signal confidences, falling back when the agent
// produced no directional findings.
func meanConfidence(signals []agent.Signal, fallback float64) float64 {
	if len(signals) == 0 {
		return fallback
	}
	var sum float64
	for _, s := range signals {
		sum += s.Confidence
	}
	return sum / float64(len(signals))
}

// strengthWeightedConfidence weighs each signal's confidence by the
// magnitude of its strength, so decisive findings dominate. Neutral holds
// carry no weight; an all-neutral set falls back to the plain mean.
func strengthWeightedConfidence(signals []agent.Signal, fallback float64) float64 {
	var num, den float64
	for _, s := range signals {
		w := math.Abs(s.Strength)
		if w == 0 {
			continue
		}
		num += s.Confidence * w
		den += w
	}
	if den == 0 {
		return meanConfidence(signals, fallback)
	}
	return num / den
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
