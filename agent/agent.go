package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Agent is the contract every analysis agent implements.
// External packages implement this interface for custom agents; the engine
// never depends on anything beyond these four methods.
//
// Agents are passive: the engine decides when to initialize, invoke, and
// shut them down. An agent must not assume any ordering among concurrent
// Process calls for different subjects.
type Agent interface {
	// Initialize prepares the agent for processing using its descriptor's
	// parameters. It is called exactly once, before any Process call, and
	// must return within the engine's startup timeout.
	Initialize(ctx context.Context, desc Descriptor) error

	// Process runs one unit of analysis for a single subject. Results from
	// agents in earlier execution levels are passed read-only in upstream,
	// keyed by agent name; entries exist only for this agent's declared
	// dependencies that produced a result for the same subject.
	// The implementation should be thread-safe: the engine invokes Process
	// concurrently for different subjects.
	Process(ctx context.Context, subject string, upstream map[string]*Result, params map[string]any) (*Result, error)

	// Shutdown releases the agent's resources. Best-effort; always called
	// on teardown regardless of prior failures.
	Shutdown(ctx context.Context) error

	// Describe reports the agent's self-declared metadata. The engine uses
	// it to populate the registry when no configuration override exists.
	Describe() Descriptor
}

// Descriptor is an agent's registration metadata. It is created at process
// start and immutable for the lifetime of a run.
type Descriptor struct {
	// Name uniquely identifies the agent within one engine.
	Name string

	// DependsOn lists agents whose results this agent requires. Every name
	// must resolve to an enabled agent or level resolution fails.
	DependsOn []string

	// Optional lists agents whose results this agent can use but does not
	// require: a failed optional dependency does not cause this agent to
	// be skipped, and an optional dependency absent from the run is
	// ignored entirely.
	Optional []string

	// Priority orders agents for display and start order inside one
	// execution level. It has no effect on level assignment.
	Priority int

	// Timeout bounds a single Process call. Zero means the engine default.
	Timeout time.Duration

	// Enabled excludes the agent from every run when false.
	Enabled bool

	// Params carries agent-specific options, decoded by the agent itself.
	Params map[string]any
}

// Dependencies returns the mandatory and optional dependency names as one
// sorted, de-duplicated slice. The resolver levels agents by this union.
func (d Descriptor) Dependencies() []string {
	seen := make(map[string]bool, len(d.DependsOn)+len(d.Optional))
	all := make([]string, 0, len(d.DependsOn)+len(d.Optional))
	for _, name := range d.DependsOn {
		if !seen[name] {
			seen[name] = true
			all = append(all, name)
		}
	}
	for _, name := range d.Optional {
		if !seen[name] {
			seen[name] = true
			all = append(all, name)
		}
	}
	sort.Strings(all)
	return all
}

// UnmarshalParams decodes the descriptor's Params into a typed struct by
// round-tripping through JSON. Missing keys leave the target's fields at
// their zero values, so agents apply their own defaults afterward.
func (d Descriptor) UnmarshalParams(v any) error {
	if len(d.Params) == 0 {
		return nil
	}
	data, err := json.Marshal(d.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	return nil
}

// RequiresResult reports whether name is a mandatory dependency.
func (d Descriptor) RequiresResult(name string) bool {
	for _, dep := range d.DependsOn {
		if dep == name {
			return true
		}
	}
	return false
}

// State is an agent's lifecycle state as tracked by its runtime wrapper.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
	StateFailed        State = "failed"
)

// Health is a point-in-time snapshot of one agent's condition. It is owned
// by the runtime wrapper and read by the monitoring surface.
type Health struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	LastHeartbeat       time.Time `json:"last_heartbeat"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
