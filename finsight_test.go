package finsight

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/agents"
	"github.com/finsight-dev/finsight/pkg/config"
)

// testConfig returns the default pipeline with file-writing agents pointed
// at a per-test directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	for name, ac := range cfg.Agents {
		switch ac.Type {
		case agents.TypeVisualizer, agents.TypeReportGenerator:
			params := make(map[string]any, len(ac.Params)+1)
			for k, v := range ac.Params {
				params[k] = v
			}
			params["output_dir"] = filepath.Join(dir, name)
			ac.Params = params
			cfg.Agents[name] = ac
		}
	}
	return cfg
}

func startEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return eng
}

func TestNew_NilConfigBuildsDefaultPipeline(t *testing.T) {
	eng, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}

	status := eng.Status()
	if status.Started {
		t.Error("Started = true before Start")
	}

	// Close without Start must be a clean no-op.
	if err := eng.Close(context.Background()); err != nil {
		t.Errorf("Close before Start: %v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MarketData.Provider = "alpaca"

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	if !strings.Contains(err.Error(), "validate config") {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestEngine_AnalyzeSubset(t *testing.T) {
	eng := startEngine(t)

	req := agent.NewRequest("AAPL").WithAgents("data_collector", "technical_analyst")
	agg, err := eng.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if agg.Overall != agent.OverallComplete {
		t.Errorf("Overall = %v, want %v", agg.Overall, agent.OverallComplete)
	}
	if len(agg.Results) != 2 {
		t.Errorf("got results for %d agents, want 2", len(agg.Results))
	}

	collected := agg.Result("data_collector", "AAPL")
	if collected == nil || collected.Status != agent.StatusOK {
		t.Fatalf("collector result = %+v, want ok", collected)
	}
	if _, ok := collected.Payload["history"]; !ok {
		t.Error("collector payload has no history")
	}

	technical := agg.Result("technical_analyst", "AAPL")
	if technical == nil || technical.Status != agent.StatusOK {
		t.Fatalf("technical result = %+v, want ok", technical)
	}
	if _, ok := technical.Payload["trend"]; !ok {
		t.Error("technical payload has no trend")
	}

	levels := eng.Levels()
	if len(levels) < 2 {
		t.Fatalf("got %d levels, want at least 2", len(levels))
	}
	foundCollector := false
	for _, name := range levels[0] {
		if name == "data_collector" {
			foundCollector = true
		}
	}
	if !foundCollector {
		t.Errorf("level 0 = %v, want data_collector in it", levels[0])
	}
}

func TestEngine_AnalyzeBeforeStart(t *testing.T) {
	eng, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close(context.Background())

	_, err = eng.Analyze(context.Background(), agent.NewRequest("AAPL"))
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("error = %v, want ErrNotStarted", err)
	}
}

// echoAgent is a minimal custom agent that reports what it received.
type echoAgent struct {
	desc agent.Descriptor
}

func (a *echoAgent) Initialize(ctx context.Context, desc agent.Descriptor) error { return nil }

func (a *echoAgent) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	res := agent.NewResult(a.desc.Name, subject)
	res.Payload["upstream_count"] = len(upstream)
	res.Confidence = 1
	return res, nil
}

func (a *echoAgent) Shutdown(ctx context.Context) error { return nil }
func (a *echoAgent) Describe() agent.Descriptor         { return a.desc }

func TestEngine_CustomAgentJoinsPipeline(t *testing.T) {
	eng, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	echo := &echoAgent{desc: agent.Descriptor{
		Name:      "echo",
		DependsOn: []string{"data_collector"},
		Enabled:   true,
	}}
	if err := eng.RegisterAgent(echo); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Close(context.Background())

	agg, err := eng.Analyze(context.Background(),
		agent.NewRequest("TSLA").WithAgents("data_collector", "echo"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	res := agg.Result("echo", "TSLA")
	if res == nil || res.Status != agent.StatusOK {
		t.Fatalf("echo result = %+v, want ok", res)
	}
	if got := res.Payload["upstream_count"]; got != 1 {
		t.Errorf("upstream_count = %v, want 1", got)
	}

	// Registration is sealed once the engine is running.
	if err := eng.RegisterAgent(&echoAgent{desc: agent.Descriptor{Name: "late"}}); err == nil {
		t.Error("expected error registering after Start, got nil")
	}
}

func TestEngine_CloseIdempotent(t *testing.T) {
	eng, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := eng.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}

	_, err = eng.Analyze(context.Background(), agent.NewRequest("AAPL"))
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("Analyze after Close = %v, want ErrNotStarted", err)
	}
}

func TestEngine_StatusReportsHealth(t *testing.T) {
	eng := startEngine(t)

	status := eng.Status()
	if !status.Started {
		t.Error("Started = false after Start")
	}
	if len(status.Agents) != 7 {
		t.Errorf("got %d agents in status, want 7", len(status.Agents))
	}
	if h, ok := status.Agents["data_collector"]; !ok || h.State != agent.StateRunning {
		t.Errorf("data_collector health = %+v, want running", h)
	}
}
