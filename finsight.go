// Package finsight is a concurrent multi-agent stock-analysis engine. An
// Engine wires the configured agents into a dependency-ordered pipeline,
// fans analysis requests out across agents and symbols, and aggregates
// their results.
//
// The zero-configuration path runs the built-in seven-agent pipeline
// against the simulated market-data provider:
//
//	eng, err := finsight.New(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := eng.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close(context.Background())
//
//	agg, err := eng.Analyze(ctx, agent.NewRequest("AAPL", "MSFT"))
//
// Custom agents implement agent.Agent and join the pipeline through
// RegisterAgent before Start.
package finsight

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/agents"
	"github.com/finsight-dev/finsight/internal/marketdata"
	"github.com/finsight-dev/finsight/internal/monitor"
	"github.com/finsight-dev/finsight/internal/observability"
	"github.com/finsight-dev/finsight/internal/orchestrator"
	"github.com/finsight-dev/finsight/internal/registry"
	"github.com/finsight-dev/finsight/pkg/config"
	metrics "github.com/finsight-dev/finsight/pkg/observability"
)

// Structural errors surfaced from the engine. Agent failures never appear
// here; they are reported per result inside the aggregate.
var (
	ErrNotStarted         = orchestrator.ErrNotStarted
	ErrInvalidRequest     = orchestrator.ErrInvalidRequest
	ErrNoApplicableAgents = orchestrator.ErrNoApplicableAgents
	ErrUnknownAgent       = orchestrator.ErrUnknownAgent
)

// Engine owns one configured analysis pipeline: the agent instances, the
// message bus, the market-data layer, and the orchestrator that drives them.
type Engine struct {
	cfg      *config.Config
	bus      *agent.Bus
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	market   marketdata.Provider
	cache    *marketdata.RedisStore
	monitor  *monitor.Monitor

	mu      sync.Mutex
	started bool
	closed  bool
}

// Status is a point-in-time snapshot of a running engine.
type Status struct {
	Started bool                    `json:"started"`
	Agents  map[string]agent.Health `json:"agents"`
	Bus     agent.BusStats          `json:"bus"`
}

// New builds an engine from the given configuration. A nil cfg runs the
// default pipeline. Every configured agent is constructed here; Start
// initializes them.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	market, cache, err := buildMarketData(cfg.MarketData)
	if err != nil {
		return nil, err
	}

	bus := agent.NewBus(agent.BusConfig{
		QueueSize:      cfg.System.QueueSize,
		PublishTimeout: cfg.System.PublishTimeout.Duration,
	})

	reg := registry.New()
	env := agents.Env{Bus: bus, Market: market}
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ac := cfg.Agents[name]
		inst, err := agents.New(ac.Type, ac.Descriptor(name), env)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", name, err)
		}
		if err := reg.Add(inst); err != nil {
			return nil, err
		}
	}

	orch := orchestrator.New(reg, bus, orchestrator.Config{
		MaxConcurrentRequests: cfg.System.MaxConcurrentRequests,
		DefaultTimeout:        cfg.System.DefaultTimeout.Duration,
		RetryAttempts:         cfg.System.RetryAttempts,
		RetryBackoffBase:      cfg.System.RetryBackoffBase.Duration,
		StartupTimeout:        cfg.System.StartupTimeout.Duration,
		ShutdownTimeout:       cfg.System.ShutdownTimeout.Duration,
	})

	return &Engine{
		cfg:      cfg,
		bus:      bus,
		registry: reg,
		orch:     orch,
		market:   market,
		cache:    cache,
		monitor:  monitor.New(orch, bus, cfg.System.HealthCheckInterval.Duration),
	}, nil
}

// buildMarketData assembles the provider chain: the configured source
// wrapped in a cache, Redis-backed when an address is configured.
func buildMarketData(cfg config.MarketData) (marketdata.Provider, *marketdata.RedisStore, error) {
	source := marketdata.NewSimulatedProvider(cfg.RateLimitPerMinute)

	ttl := marketdata.TTLConfig{
		Quote:        cfg.CacheTTL.Quote.Duration,
		History:      cfg.CacheTTL.History.Duration,
		Fundamentals: cfg.CacheTTL.Fundamentals.Duration,
	}

	if cfg.Redis.Addr == "" {
		return marketdata.NewCachedProvider(source, marketdata.NewMemoryStore(), ttl), nil, nil
	}
	store, err := marketdata.NewRedisStore(marketdata.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect market-data cache: %w", err)
	}
	return marketdata.NewCachedProvider(source, store, ttl), store, nil
}

// RegisterAgent adds a custom agent to the pipeline. It must be called
// before Start; the agent's Describe() supplies its name and dependencies.
func (e *Engine) RegisterAgent(a agent.Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("register agent: engine already started")
	}
	return e.registry.Add(a)
}

// Start initializes tracing, brings every enabled agent up in dependency
// order and begins the periodic health sweep. Agents that fail to
// initialize stay registered in a failed state; the rest of the pipeline
// still comes up.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	if e.started {
		return fmt.Errorf("engine already started")
	}

	obsCfg := observability.Config{
		ExporterType: e.cfg.Observability.TraceExporter,
		Enabled:      e.cfg.Observability.TraceExporter != "" && e.cfg.Observability.TraceExporter != "none",
		OTLPEndpoint: e.cfg.Observability.OTLPEndpoint,
	}
	if err := observability.Init(obsCfg); err != nil {
		log.Printf("[Engine] Warning: tracing disabled: %v", err)
	}

	if err := e.orch.Start(ctx); err != nil {
		return err
	}

	e.registerHealthChecks()
	if err := e.monitor.Start(); err != nil {
		log.Printf("[Engine] Warning: health sweep not running: %v", err)
	}

	e.started = true
	return nil
}

// registerHealthChecks wires the engine's dependencies into the health
// endpoint surface.
func (e *Engine) registerHealthChecks() {
	checker := metrics.GetHealthChecker()
	checker.RegisterCheck(metrics.PingCheck())
	checker.RegisterCheck(metrics.AgentsCheck(func() (running, failed int) {
		for _, h := range e.orch.Health() {
			switch h.State {
			case agent.StateRunning:
				running++
			case agent.StateFailed:
				failed++
			}
		}
		return running, failed
	}))
	if e.cache != nil {
		checker.RegisterCheck(metrics.CacheCheck(e.cache.Ping))
	}
}

// Analyze runs one request across the pipeline and returns its aggregate.
// It blocks while the engine is at its concurrent-request limit. Agent
// failures land inside the aggregate; only structural problems (no
// subjects, unknown agent names, missing mandatory dependencies) surface
// as errors.
func (e *Engine) Analyze(ctx context.Context, req agent.Request) (*agent.Aggregate, error) {
	return e.orch.Analyze(ctx, req)
}

// Status reports every agent's health and the bus counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	return Status{
		Started: started,
		Agents:  e.orch.Health(),
		Bus:     e.bus.Stats(),
	}
}

// Levels returns the execution-level ordering computed at Start, outermost
// level first. Empty before Start.
func (e *Engine) Levels() [][]string {
	return e.orch.Levels()
}

// Close stops the sweep, shuts agents down in reverse dependency order,
// closes the bus and the cache, and flushes tracing. Safe to call more
// than once; later calls are no-ops.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.started = false
	e.mu.Unlock()

	var firstErr error
	if err := e.monitor.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := e.orch.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	e.bus.Close()
	if e.cache != nil {
		if err := e.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := observability.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
