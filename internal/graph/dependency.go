// Package graph resolves declared agent dependencies into execution levels.
//
// A level is a set of agents whose dependencies are all satisfied by
// strictly earlier levels, so everything within one level may run
// concurrently. Graphs are built per request from immutable descriptor
// snapshots and discarded with the request.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/finsight-dev/finsight/agent"
)

var (
	// ErrCycleDetected is returned when the dependency graph is not acyclic.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrUnknownDependency is returned when an agent requires a dependency
	// that is absent from, or disabled in, the descriptor set.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// Graph is a directed dependency graph over one request's agent set. Edges
// point from an agent to the agents it waits on.
type Graph struct {
	edges map[string][]string
}

// New builds a graph from descriptors. Disabled descriptors are excluded
// entirely, so a mandatory dependency on a disabled or unknown name fails
// with ErrUnknownDependency. An optional dependency on an absent name is
// pruned instead: a collaborator that is not running imposes no ordering.
func New(descriptors []agent.Descriptor) (*Graph, error) {
	enabled := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Enabled {
			enabled[d.Name] = true
		}
	}

	g := &Graph{edges: make(map[string][]string, len(enabled))}
	for _, d := range descriptors {
		if !enabled[d.Name] {
			continue
		}
		deps := make([]string, 0, len(d.DependsOn)+len(d.Optional))
		for _, dep := range d.DependsOn {
			if !enabled[dep] {
				return nil, fmt.Errorf("%w: agent %q requires %q", ErrUnknownDependency, d.Name, dep)
			}
			deps = append(deps, dep)
		}
		for _, dep := range d.Optional {
			if enabled[dep] {
				deps = append(deps, dep)
			}
		}
		g.edges[d.Name] = dedupe(deps)
	}
	return g, nil
}

// dedupe sorts and uniques a dependency list in place.
func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	sort.Strings(names)
	out := names[:1]
	for _, n := range names[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of agents in the graph.
func (g *Graph) Len() int { return len(g.edges) }

// Contains reports whether the named agent survived descriptor filtering.
func (g *Graph) Contains(name string) bool {
	_, ok := g.edges[name]
	return ok
}

// Dependencies returns the resolved (post-pruning) dependency edges for one
// agent, or nil when the agent is not in the graph. The returned slice is a
// copy.
func (g *Graph) Dependencies(name string) []string {
	deps, ok := g.edges[name]
	if !ok || len(deps) == 0 {
		return nil
	}
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Validate checks the graph for cycles with a three-color depth-first
// search. Nodes are visited in sorted order so the reported cycle path is
// stable for a given input.
func (g *Graph) Validate() error {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // fully explored
	)
	colors := make(map[string]int, len(g.edges))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case gray:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			return &CycleError{Path: append(append([]string{}, stack[start:]...), name)}
		case black:
			return nil
		}
		colors[name] = gray
		stack = append(stack, name)
		for _, dep := range g.edges[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[name] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, name := range g.sortedNames() {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Levels partitions the graph into execution levels using Kahn's algorithm.
// Level 0 holds agents with no dependencies; level n holds agents whose
// dependencies all sit in levels below n. Each level is sorted, so equal
// descriptor sets always produce equal partitions.
func (g *Graph) Levels() ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(g.edges) == 0 {
		return nil, nil
	}

	pending := make(map[string]int, len(g.edges))
	dependents := make(map[string][]string)
	for name, deps := range g.edges {
		pending[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var levels [][]string
	for len(pending) > 0 {
		var ready []string
		for name, n := range pending {
			if n == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			// Unreachable after Validate; kept as a guard against future
			// edits to the validation pass.
			return nil, ErrCycleDetected
		}
		sort.Strings(ready)
		for _, name := range ready {
			delete(pending, name)
			for _, dependent := range dependents[name] {
				pending[dependent]--
			}
		}
		levels = append(levels, ready)
	}
	return levels, nil
}

func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve is the one-shot form: build a graph from descriptors and level it.
func Resolve(descriptors []agent.Descriptor) ([][]string, error) {
	g, err := New(descriptors)
	if err != nil {
		return nil, err
	}
	return g.Levels()
}
