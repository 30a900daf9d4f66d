// Package runner wraps one agent instance with the lifecycle state machine
// the orchestrator drives. A runner owns its agent's state transitions,
// enforces per-call timeouts, and exposes a cheap health snapshot. It never
// retries; retry policy is a cross-agent concern and lives in the
// orchestrator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/finsight-dev/finsight/agent"
)

const (
	// DefaultStartupTimeout bounds Initialize during Start.
	DefaultStartupTimeout = 10 * time.Second

	// DefaultInvokeTimeout applies when a descriptor carries no timeout.
	DefaultInvokeTimeout = 30 * time.Second

	// DefaultShutdownTimeout bounds the best-effort Shutdown call.
	DefaultShutdownTimeout = 5 * time.Second
)

// Runner manages one agent's lifecycle:
//
//	uninitialized -> starting -> running -> stopping -> stopped
//	                     |           |
//	                     +-> failed <+
//
// A failed initialization is terminal for the run. A failed invocation is
// not: the next successful invocation moves the agent back to running.
type Runner struct {
	instance agent.Agent
	desc     agent.Descriptor

	mu                  sync.RWMutex
	state               agent.State
	initFailed          bool
	lastHeartbeat       time.Time
	consecutiveFailures int

	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

// Option adjusts a Runner at construction.
type Option func(*Runner)

// WithStartupTimeout overrides the Initialize bound.
func WithStartupTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.startupTimeout = d
		}
	}
}

// WithShutdownTimeout overrides the Shutdown bound.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.shutdownTimeout = d
		}
	}
}

// New wraps an agent instance with its registry-captured descriptor.
func New(instance agent.Agent, desc agent.Descriptor, opts ...Option) *Runner {
	r := &Runner{
		instance:        instance,
		desc:            desc,
		state:           agent.StateUninitialized,
		startupTimeout:  DefaultStartupTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the wrapped agent's name.
func (r *Runner) Name() string { return r.desc.Name }

// Descriptor returns the registry-captured descriptor.
func (r *Runner) Descriptor() agent.Descriptor { return r.desc }

// State returns the current lifecycle state.
func (r *Runner) State() agent.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Unrecoverable reports whether the agent can never serve invocations again
// because its Initialize failed. Callers use this to stop retrying.
func (r *Runner) Unrecoverable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initFailed
}

// Start initializes the agent. The transition to running happens only when
// Initialize returns success within the startup timeout; otherwise the
// runner lands in failed and stays there for the rest of the run.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != agent.StateUninitialized {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("start %s: invalid transition from %s", r.desc.Name, state)
	}
	r.state = agent.StateStarting
	r.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.instance.Initialize(initCtx, r.desc)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-initCtx.Done():
		err = fmt.Errorf("initialize timed out after %s", r.startupTimeout)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = agent.StateFailed
		r.initFailed = true
		r.consecutiveFailures++
		return fmt.Errorf("start %s: %w", r.desc.Name, err)
	}
	r.state = agent.StateRunning
	r.lastHeartbeat = time.Now()
	return nil
}

// Invoke executes one agent x subject unit of work. It always settles into
// a Result; agent errors and timeouts surface as data, never as an error to
// the caller. A timed-out call is abandoned, not interrupted: the goroutine
// keeps running until the agent honors its context, and its eventual result
// is discarded.
func (r *Runner) Invoke(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) *agent.Result {
	r.mu.RLock()
	state := r.state
	permanent := r.initFailed
	r.mu.RUnlock()
	// An invoke-time failure is recoverable; an initialization failure is
	// terminal for the run.
	if permanent || (state != agent.StateRunning && state != agent.StateFailed) {
		res := agent.NewResult(r.desc.Name, subject)
		res.Status = agent.StatusFailed
		if permanent {
			res.Reason = "agent failed to initialize"
		} else {
			res.Reason = fmt.Sprintf("agent is %s, not running", state)
		}
		return res
	}

	timeout := r.desc.Timeout
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *agent.Result
		err error
	}
	outChan := make(chan outcome, 1)
	started := time.Now()
	go func() {
		res, err := r.instance.Process(callCtx, subject, upstream, params)
		outChan <- outcome{res: res, err: err}
	}()

	select {
	case out := <-outChan:
		// An agent that promptly surfaces our own cancellation is
		// classified the same as an abandoned call, so the outcome does
		// not depend on which select case fires first.
		if callCtx.Err() != nil && (errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded)) {
			return r.abandoned(ctx.Err(), timeout, subject)
		}
		return r.settle(subject, out.res, out.err, started)
	case <-callCtx.Done():
		return r.abandoned(ctx.Err(), timeout, subject)
	}
}

// abandoned records a call that ended at a deadline instead of returning.
// parentErr distinguishes request-level cancellation, which leaves the
// agent's failure counters untouched, from the agent's own timeout.
func (r *Runner) abandoned(parentErr error, timeout time.Duration, subject string) *agent.Result {
	res := agent.NewResult(r.desc.Name, subject)
	res.Status = agent.StatusTimedOut

	if parentErr != nil {
		r.mu.Lock()
		r.lastHeartbeat = time.Now()
		r.mu.Unlock()
		res.Reason = fmt.Sprintf("canceled: %v", parentErr)
		return res
	}

	r.mu.Lock()
	r.state = agent.StateFailed
	r.consecutiveFailures++
	r.lastHeartbeat = time.Now()
	r.mu.Unlock()
	res.Reason = fmt.Sprintf("process timed out after %s", timeout)
	return res
}

// settle normalizes a returned result and updates health bookkeeping.
func (r *Runner) settle(subject string, res *agent.Result, err error, started time.Time) *agent.Result {
	r.mu.Lock()
	r.lastHeartbeat = time.Now()
	if err != nil {
		r.consecutiveFailures++
	} else {
		r.consecutiveFailures = 0
		if r.state == agent.StateFailed {
			r.state = agent.StateRunning
		}
	}
	r.mu.Unlock()

	if err != nil {
		failed := agent.NewResult(r.desc.Name, subject)
		failed.Status = agent.StatusFailed
		failed.Reason = err.Error()
		return failed
	}
	if res == nil {
		failed := agent.NewResult(r.desc.Name, subject)
		failed.Status = agent.StatusFailed
		failed.Reason = "agent returned no result"
		return failed
	}

	if res.Agent == "" {
		res.Agent = r.desc.Name
	}
	if res.Subject == "" {
		res.Subject = subject
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	} else if res.Confidence > 1 {
		res.Confidence = 1
	}
	if res.ProducedAt.IsZero() {
		res.ProducedAt = started
	}
	return res
}

// Health returns a point-in-time snapshot; safe to call from a monitor on
// its own schedule.
func (r *Runner) Health() agent.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return agent.Health{
		Name:                r.desc.Name,
		State:               r.state,
		LastHeartbeat:       r.lastHeartbeat,
		ConsecutiveFailures: r.consecutiveFailures,
	}
}

// Stop shuts the agent down, best effort. Shutdown errors are logged, not
// returned as failures; the runner always lands in stopped.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case agent.StateStopped, agent.StateStopping:
		r.mu.Unlock()
		return nil
	case agent.StateUninitialized:
		r.state = agent.StateStopped
		r.mu.Unlock()
		return nil
	}
	r.state = agent.StateStopping
	r.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, r.shutdownTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.instance.Shutdown(stopCtx)
	}()
	select {
	case err := <-errChan:
		if err != nil {
			log.Printf("[Runner] %s shutdown error: %v", r.desc.Name, err)
		}
	case <-stopCtx.Done():
		log.Printf("[Runner] %s shutdown timed out after %s", r.desc.Name, r.shutdownTimeout)
	}

	r.mu.Lock()
	r.state = agent.StateStopped
	r.mu.Unlock()
	return nil
}
