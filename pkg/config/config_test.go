package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
system:
  max_concurrent_requests: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.System.MaxConcurrentRequests != 5 {
		t.Errorf("expected max_concurrent_requests 5, got %d", cfg.System.MaxConcurrentRequests)
	}
	if cfg.System.QueueSize != 1000 {
		t.Errorf("expected default queue_size 1000, got %d", cfg.System.QueueSize)
	}
	if cfg.System.RetryAttempts != 3 {
		t.Errorf("expected default retry_attempts 3, got %d", cfg.System.RetryAttempts)
	}
	if cfg.System.DefaultTimeout.Duration != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.System.DefaultTimeout.Duration)
	}
	if cfg.System.PublishTimeout.Duration != 2*time.Second {
		t.Errorf("expected default publish_timeout 2s, got %v", cfg.System.PublishTimeout.Duration)
	}
	if cfg.MarketData.Provider != "simulated" {
		t.Errorf("expected simulated provider, got %s", cfg.MarketData.Provider)
	}
	if cfg.MarketData.RateLimitPerMinute != 60 {
		t.Errorf("expected default rate limit 60, got %d", cfg.MarketData.RateLimitPerMinute)
	}
	// No agents block means the built-in pipeline.
	if len(cfg.Agents) != 7 {
		t.Errorf("expected 7 default agents, got %d", len(cfg.Agents))
	}
}

func TestLoad_AgentTree(t *testing.T) {
	path := writeConfig(t, `
agents:
  data_collector:
    type: data_collector
    priority: 1
    timeout: 45s
    params:
      max_symbols: 3
  technical_analyst:
    type: technical_analyst
    enabled: false
    priority: 2
    depends_on: [data_collector]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}

	collector := cfg.Agents["data_collector"]
	if !collector.IsEnabled() {
		t.Error("omitted enabled should mean enabled")
	}
	if collector.Timeout.Duration != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", collector.Timeout.Duration)
	}
	if collector.Params["max_symbols"] != 3 {
		t.Errorf("expected max_symbols 3, got %v", collector.Params["max_symbols"])
	}

	tech := cfg.Agents["technical_analyst"]
	if tech.IsEnabled() {
		t.Error("enabled: false should disable the agent")
	}
	desc := tech.Descriptor("technical_analyst")
	if desc.Enabled {
		t.Error("descriptor should carry the disabled flag")
	}
	if len(desc.DependsOn) != 1 || desc.DependsOn[0] != "data_collector" {
		t.Errorf("unexpected dependencies: %v", desc.DependsOn)
	}
}

func TestLoad_FileSizeLimit(t *testing.T) {
	path := writeConfig(t, strings.Repeat("x: value\n", 200000))

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/finsight.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "system: [[[\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_EnvFallbacks(t *testing.T) {
	t.Setenv("FINSIGHT_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("FINSIGHT_API_KEY", "env-key")

	path := writeConfig(t, `
market_data:
  api_key: file-key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MarketData.Redis.Addr != "redis.internal:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.MarketData.Redis.Addr)
	}
	if cfg.MarketData.APIKey != "file-key" {
		t.Errorf("file value should win over env, got %q", cfg.MarketData.APIKey)
	}
}

func TestLoad_UnknownDependency(t *testing.T) {
	path := writeConfig(t, `
agents:
  technical_analyst:
    type: technical_analyst
    depends_on: [data_collector]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown agent") {
		t.Errorf("expected unknown-agent error, got: %v", err)
	}
}

func TestValidate_MissingType(t *testing.T) {
	cfg := Default()
	a := cfg.Agents["data_collector"]
	a.Type = ""
	cfg.Agents["data_collector"] = a

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestValidate_BadProvider(t *testing.T) {
	cfg := Default()
	cfg.MarketData.Provider = "bloomberg_terminal"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestDefault_Pipeline(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if len(cfg.Agents) != 7 {
		t.Fatalf("expected 7 agents, got %d", len(cfg.Agents))
	}

	report, ok := cfg.Agents["report_generator"]
	if !ok {
		t.Fatal("default tree missing report_generator")
	}
	if len(report.DependsOn) != 4 {
		t.Errorf("report_generator should depend on the four analysts, got %v", report.DependsOn)
	}

	descs := cfg.Descriptors()
	if descs[0].Name != "data_collector" {
		t.Errorf("lowest priority first, got %s", descs[0].Name)
	}
	if descs[len(descs)-1].Name != "report_generator" {
		t.Errorf("report last, got %s", descs[len(descs)-1].Name)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(Default(), path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(cfg.Agents) != 7 {
		t.Errorf("round trip lost agents: %d", len(cfg.Agents))
	}
	if cfg.Agents["data_collector"].Timeout.Duration != 60*time.Second {
		t.Errorf("round trip lost collector timeout: %v", cfg.Agents["data_collector"].Timeout.Duration)
	}
}
