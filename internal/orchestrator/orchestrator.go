// Package orchestrator coordinates analysis requests across the registered
// agents: it resolves the dependency graph, starts agents level by level,
// fans invocations out with bounded concurrency and aggregates the results.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/graph"
	"github.com/finsight-dev/finsight/internal/registry"
	"github.com/finsight-dev/finsight/internal/runner"
)

// busName is the orchestrator's own recipient name on the message bus.
const busName = "orchestrator"

// Config carries the orchestration knobs. The zero value is usable; every
// field falls back to its default.
type Config struct {
	// MaxConcurrentRequests bounds the number of Analyze calls executing at
	// once. Further calls block until a slot frees or their context ends.
	MaxConcurrentRequests int

	// DefaultTimeout applies to agents whose descriptor does not set one.
	DefaultTimeout time.Duration

	// RetryAttempts is the number of retries after a failed invocation.
	// Timed-out invocations are never retried. Zero means the default;
	// -1 disables retries entirely.
	RetryAttempts int

	// RetryBackoffBase is the delay before the first retry. Each further
	// retry doubles it, capped at RetryBackoffCap.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// StartupTimeout bounds each agent's Initialize call during Start.
	StartupTimeout time.Duration

	// ShutdownTimeout bounds each agent's Shutdown call during Stop.
	ShutdownTimeout time.Duration
}

// Defaults for the zero Config.
const (
	DefaultMaxConcurrentRequests = 10
	DefaultRetryAttempts         = 3
	DefaultRetryBackoffBase      = 500 * time.Millisecond
	DefaultRetryBackoffCap       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = runner.DefaultInvokeTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	} else if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if c.RetryBackoffCap < c.RetryBackoffBase {
		c.RetryBackoffCap = DefaultRetryBackoffCap
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = runner.DefaultStartupTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = runner.DefaultShutdownTimeout
	}
	return c
}

// Orchestrator owns the agent runners and executes requests against them.
type Orchestrator struct {
	cfg      Config
	registry *registry.Registry
	bus      *agent.Bus

	mu      sync.RWMutex
	started bool
	runners map[string]*runner.Runner
	levels  [][]string

	sem chan struct{}

	eventsDone chan struct{}
}

// New builds an orchestrator over the given registry and bus. Agents must be
// registered before Start; later additions are not picked up.
func New(reg *registry.Registry, bus *agent.Bus, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		bus:      bus,
		runners:  make(map[string]*runner.Runner),
		sem:      make(chan struct{}, cfg.MaxConcurrentRequests),
	}
}

// Start initializes every enabled agent in dependency order. Agents in the
// same level start concurrently; a level must finish before the next begins.
// An agent that fails to initialize is kept in a failed state rather than
// aborting startup, so the remaining agents still come up.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator already started")
	}

	descriptors := o.registry.Enabled()
	levels, err := graph.Resolve(descriptors)
	if err != nil {
		return fmt.Errorf("resolve agent graph: %w", err)
	}
	o.levels = levels

	// Register every participant on the bus before any agent initializes,
	// so publishes between agents during startup already have a mailbox.
	if err := o.bus.Register(busName); err != nil {
		return fmt.Errorf("register orchestrator on bus: %w", err)
	}
	for _, d := range descriptors {
		if err := o.bus.Register(d.Name); err != nil {
			return fmt.Errorf("register %s on bus: %w", d.Name, err)
		}
	}

	for _, d := range descriptors {
		inst, err := o.registry.Get(d.Name)
		if err != nil {
			return err
		}
		if d.Timeout <= 0 {
			d.Timeout = o.cfg.DefaultTimeout
		}
		o.runners[d.Name] = runner.New(inst, d,
			runner.WithStartupTimeout(o.cfg.StartupTimeout),
			runner.WithShutdownTimeout(o.cfg.ShutdownTimeout),
		)
	}

	for i, level := range levels {
		log.Printf("[Orchestrator] Starting level %d agents: %v", i, level)
		g := new(errgroup.Group)
		for _, name := range level {
			name := name
			r := o.runners[name]
			g.Go(func() error {
				if err := r.Start(ctx); err != nil {
					log.Printf("[Orchestrator] Agent %s failed to start: %v", name, err)
				}
				return nil
			})
		}
		g.Wait()
	}

	sub, err := o.bus.Subscribe(busName, nil)
	if err != nil {
		return fmt.Errorf("subscribe orchestrator queue: %w", err)
	}
	o.eventsDone = make(chan struct{})
	go o.consumeEvents(sub)

	o.started = true
	log.Printf("[Orchestrator] Started with %d agents in %d levels", len(descriptors), len(levels))
	return nil
}

// consumeEvents drains messages addressed to the orchestrator. Agents use
// this channel for notifications such as data_collector's data.collected.
func (o *Orchestrator) consumeEvents(sub *agent.Subscription) {
	defer close(o.eventsDone)
	for msg := range sub.C() {
		if msg.Sender == busName {
			continue
		}
		log.Printf("[Orchestrator] Event %s from %s", msg.Kind, msg.Sender)
	}
}

// Stop shuts agents down in reverse level order, so consumers go away before
// the producers they depend on. It is safe to call more than once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}

	for i := len(o.levels) - 1; i >= 0; i-- {
		level := o.levels[i]
		log.Printf("[Orchestrator] Stopping level %d agents: %v", i, level)
		g := new(errgroup.Group)
		for _, name := range level {
			name := name
			r := o.runners[name]
			g.Go(func() error {
				if err := r.Stop(ctx); err != nil {
					log.Printf("[Orchestrator] Agent %s failed to stop: %v", name, err)
				}
				return nil
			})
		}
		g.Wait()
	}

	for name := range o.runners {
		o.bus.Deregister(name)
	}
	o.bus.Deregister(busName)
	if o.eventsDone != nil {
		<-o.eventsDone
	}

	o.started = false
	o.runners = make(map[string]*runner.Runner)
	o.levels = nil
	log.Printf("[Orchestrator] Stopped")
	return nil
}

// Health reports a snapshot of every runner's health, keyed by agent name.
func (o *Orchestrator) Health() map[string]agent.Health {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]agent.Health, len(o.runners))
	for name, r := range o.runners {
		out[name] = r.Health()
	}
	return out
}

// Levels returns the startup ordering computed at Start, outermost slice
// first. The result is a copy.
func (o *Orchestrator) Levels() [][]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([][]string, len(o.levels))
	for i, level := range o.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

func (o *Orchestrator) runner(name string) *runner.Runner {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runners[name]
}

func (o *Orchestrator) isStarted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.started
}
