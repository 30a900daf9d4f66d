package agents

import (
	"context"
	"sync"

	"github.com/finsight-dev/finsight/agent"
)

// baseAgent carries the descriptor bookkeeping every built-in shares.
// Embed it and override Initialize when the agent decodes parameters.
type baseAgent struct {
	mu    sync.RWMutex
	desc  agent.Descriptor
	ready bool
}

func newBaseAgent(desc agent.Descriptor) baseAgent {
	return baseAgent{desc: desc}
}

// Initialize records the engine's view of the descriptor, which may carry
// configuration overrides on top of the built-in defaults.
func (b *baseAgent) Initialize(ctx context.Context, desc agent.Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desc = desc
	b.ready = true
	return nil
}

func (b *baseAgent) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	return nil
}

func (b *baseAgent) Describe() agent.Descriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desc
}

func (b *baseAgent) name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desc.Name
}
