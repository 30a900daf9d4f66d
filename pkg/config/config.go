// Package config loads and validates the engine configuration from YAML,
// fills unset fields with the documented defaults, and applies environment
// fallbacks for deployment secrets.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/agents"
)

// maxConfigSize bounds the config file. A megabyte is far beyond any real
// agent tree; larger files are almost certainly the wrong file.
const maxConfigSize = 1 << 20

// Duration wraps time.Duration so YAML accepts "30s" style strings.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration document.
type Config struct {
	System        System                 `yaml:"system"`
	MarketData    MarketData             `yaml:"market_data"`
	Observability Observability          `yaml:"observability"`
	Agents        map[string]AgentConfig `yaml:"agents"`
}

// System holds the engine-level options.
type System struct {
	// MaxConcurrentRequests bounds concurrent Analyze calls. Default 10.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
	// DefaultTimeout applies to agents without a per-agent timeout. Default 30s.
	DefaultTimeout Duration `yaml:"default_timeout"`
	// RetryAttempts retries failed (never timed-out) invocations. Zero means
	// the default 3; -1 disables retries.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryBackoffBase is the first retry delay, doubling per attempt.
	// Default 500ms.
	RetryBackoffBase Duration `yaml:"retry_backoff_base"`
	// StartupTimeout bounds each agent's Initialize. Default 10s.
	StartupTimeout Duration `yaml:"startup_timeout"`
	// ShutdownTimeout bounds each agent's Shutdown. Default 5s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// HealthCheckInterval is the monitor sweep period. Default 60s.
	HealthCheckInterval Duration `yaml:"health_check_interval"`
	// QueueSize bounds each bus recipient's queue. Default 1000.
	QueueSize int `yaml:"queue_size"`
	// PublishTimeout bounds a blocking publish into a full queue. Default 2s.
	PublishTimeout Duration `yaml:"publish_timeout"`
}

// MarketData configures the data source feeding the collector.
type MarketData struct {
	// Provider names the data source. Only "simulated" is built in.
	Provider string `yaml:"provider"`
	// APIKey authenticates against a real data vendor. Unused by the
	// simulated provider. Falls back to FINSIGHT_API_KEY.
	APIKey             string   `yaml:"api_key"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	APITimeout         Duration `yaml:"api_timeout"`
	Redis              Redis    `yaml:"redis"`
	CacheTTL           CacheTTL `yaml:"cache_ttl"`
}

// Redis locates the shared market-data cache. An empty Addr selects the
// in-process memory store.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheTTL overrides the per-kind cache lifetimes.
type CacheTTL struct {
	Quote        Duration `yaml:"quote"`
	History      Duration `yaml:"history"`
	Fundamentals Duration `yaml:"fundamentals"`
}

// Observability configures the metrics endpoint and trace exporter.
type Observability struct {
	// MetricsAddr is the listen address for /metrics and the health
	// endpoints. Default ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
	// TraceExporter selects "otlp", "stdout", or "none". Default "none".
	TraceExporter string `yaml:"trace_exporter"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

// AgentConfig is one agent block, keyed by agent name in Config.Agents.
type AgentConfig struct {
	// Type selects the factory that builds the agent.
	Type string `yaml:"type"`
	// Enabled defaults to true when omitted: listing an agent means
	// wanting it.
	Enabled           *bool          `yaml:"enabled"`
	Priority          int            `yaml:"priority"`
	Timeout           Duration       `yaml:"timeout"`
	DependsOn         []string       `yaml:"depends_on"`
	OptionalDependsOn []string       `yaml:"optional_depends_on"`
	Params            map[string]any `yaml:"params"`
}

// IsEnabled resolves the tri-state Enabled flag.
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Descriptor converts the block into the engine's registration metadata.
func (a AgentConfig) Descriptor(name string) agent.Descriptor {
	return agent.Descriptor{
		Name:      name,
		DependsOn: append([]string(nil), a.DependsOn...),
		Optional:  append([]string(nil), a.OptionalDependsOn...),
		Priority:  a.Priority,
		Timeout:   a.Timeout.Duration,
		Enabled:   a.IsEnabled(),
		Params:    a.Params,
	}
}

// Descriptors converts every agent block, ordered by priority then name.
func (c *Config) Descriptors() []agent.Descriptor {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]agent.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, c.Agents[name].Descriptor(name))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Default returns the configuration the engine runs with when no file is
// given: the built-in seven-agent pipeline and every system default.
func Default() *Config {
	cfg := &Config{Agents: make(map[string]AgentConfig, 7)}
	for _, entry := range agents.DefaultPipeline() {
		d := entry.Desc
		enabled := d.Enabled
		cfg.Agents[d.Name] = AgentConfig{
			Type:              entry.Type,
			Enabled:           &enabled,
			Priority:          d.Priority,
			Timeout:           Duration{d.Timeout},
			DependsOn:         d.DependsOn,
			OptionalDependsOn: d.Optional,
			Params:            d.Params,
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, applies defaults and environment fallbacks, and
// validates the result. A file without an agents block inherits the built-in
// pipeline.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("config file %s too large: %d bytes (limit %d)", path, len(data), maxConfigSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Agents) == 0 {
		cfg.Agents = Default().Agents
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.System.MaxConcurrentRequests == 0 {
		c.System.MaxConcurrentRequests = 10
	}
	if c.System.DefaultTimeout.Duration == 0 {
		c.System.DefaultTimeout.Duration = 30 * time.Second
	}
	if c.System.RetryAttempts == 0 {
		c.System.RetryAttempts = 3
	}
	if c.System.RetryBackoffBase.Duration == 0 {
		c.System.RetryBackoffBase.Duration = 500 * time.Millisecond
	}
	if c.System.StartupTimeout.Duration == 0 {
		c.System.StartupTimeout.Duration = 10 * time.Second
	}
	if c.System.ShutdownTimeout.Duration == 0 {
		c.System.ShutdownTimeout.Duration = 5 * time.Second
	}
	if c.System.HealthCheckInterval.Duration == 0 {
		c.System.HealthCheckInterval.Duration = 60 * time.Second
	}
	if c.System.QueueSize == 0 {
		c.System.QueueSize = 1000
	}
	if c.System.PublishTimeout.Duration == 0 {
		c.System.PublishTimeout.Duration = 2 * time.Second
	}

	if c.MarketData.Provider == "" {
		c.MarketData.Provider = "simulated"
	}
	if c.MarketData.RateLimitPerMinute == 0 {
		c.MarketData.RateLimitPerMinute = 60
	}
	if c.MarketData.APITimeout.Duration == 0 {
		c.MarketData.APITimeout.Duration = 30 * time.Second
	}

	if c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = ":9090"
	}
	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = "none"
	}
}

// applyEnv fills empty fields from the environment; file values win.
func (c *Config) applyEnv() {
	if c.MarketData.Redis.Addr == "" {
		c.MarketData.Redis.Addr = os.Getenv("FINSIGHT_REDIS_ADDR")
	}
	if c.MarketData.Redis.Password == "" {
		c.MarketData.Redis.Password = os.Getenv("FINSIGHT_REDIS_PASSWORD")
	}
	if c.MarketData.Redis.DB == 0 {
		if v := os.Getenv("FINSIGHT_REDIS_DB"); v != "" {
			if db, err := strconv.Atoi(v); err == nil {
				c.MarketData.Redis.DB = db
			}
		}
	}
	if c.MarketData.APIKey == "" {
		c.MarketData.APIKey = os.Getenv("FINSIGHT_API_KEY")
	}
	if c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = os.Getenv("FINSIGHT_METRICS_ADDR")
	}
	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = os.Getenv("FINSIGHT_TRACE_EXPORTER")
	}
	if c.Observability.OTLPEndpoint == "" {
		c.Observability.OTLPEndpoint = os.Getenv("FINSIGHT_OTLP_ENDPOINT")
	}
}

// Validate checks structural invariants the engine cannot repair.
func (c *Config) Validate() error {
	if c.System.MaxConcurrentRequests < 0 {
		return fmt.Errorf("system.max_concurrent_requests must be positive")
	}
	if c.System.RetryAttempts < -1 {
		return fmt.Errorf("system.retry_attempts must be -1, 0, or positive")
	}
	if c.System.QueueSize < 0 {
		return fmt.Errorf("system.queue_size must be positive")
	}
	switch c.MarketData.Provider {
	case "simulated":
	default:
		return fmt.Errorf("unsupported market data provider %q", c.MarketData.Provider)
	}
	switch c.Observability.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unsupported trace exporter %q", c.Observability.TraceExporter)
	}

	for name, a := range c.Agents {
		if a.Type == "" {
			return fmt.Errorf("agent %s: type is required", name)
		}
		for _, dep := range a.DependsOn {
			if _, ok := c.Agents[dep]; !ok {
				return fmt.Errorf("agent %s depends on unknown agent %s", name, dep)
			}
		}
	}
	return nil
}
