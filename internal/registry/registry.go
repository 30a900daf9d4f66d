// Package registry holds the engine's agent instances and their immutable
// descriptors. It is pure data: constructed at startup, handed to the
// orchestrator by reference, and torn down with it. Resolution and
// execution decisions live elsewhere.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/finsight-dev/finsight/agent"
)

var (
	// ErrDuplicateAgent is returned when a name is registered twice.
	ErrDuplicateAgent = errors.New("agent already registered")

	// ErrAgentUnknown is returned by lookups for names never registered.
	ErrAgentUnknown = errors.New("agent not registered")
)

// Registry maps agent names to their instance and self-reported descriptor.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	instance   agent.Agent
	descriptor agent.Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Add registers an agent under the name its descriptor reports. The
// descriptor is captured once here and never re-read; per-run metadata is
// immutable after registration. Dependency names are not checked here; the
// resolver validates them against the full set at Start.
func (r *Registry) Add(a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("add agent: nil instance")
	}
	desc := a.Describe()
	if desc.Name == "" {
		return fmt.Errorf("add agent: descriptor has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("add agent: %w: %s", ErrDuplicateAgent, desc.Name)
	}
	r.entries[desc.Name] = entry{instance: a, descriptor: desc}
	return nil
}

// Remove drops an agent from the registry. Removing an unknown name is a
// no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

// Get returns the registered instance for a name.
func (r *Registry) Get(name string) (agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentUnknown, name)
	}
	return e.instance, nil
}

// Descriptor returns the captured descriptor for a name.
func (r *Registry) Descriptor(name string) (agent.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return agent.Descriptor{}, fmt.Errorf("%w: %s", ErrAgentUnknown, name)
	}
	return e.descriptor, nil
}

// Contains reports whether a name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	_, ok := r.entries[name]
	r.mu.RUnlock()
	return ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every captured descriptor sorted by name.
func (r *Registry) Descriptors() []agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]agent.Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		descs = append(descs, e.descriptor)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Enabled returns the descriptors of enabled agents sorted by name.
func (r *Registry) Enabled() []agent.Descriptor {
	all := r.Descriptors()
	out := all[:0]
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
