package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/graph"
	obs "github.com/finsight-dev/finsight/internal/observability"
	"github.com/finsight-dev/finsight/internal/runner"
	metrics "github.com/finsight-dev/finsight/pkg/observability"
)

// unit is one agent×subject invocation inside a level.
type unit struct {
	runner  *runner.Runner
	desc    agent.Descriptor
	subject string
}

// Analyze runs one request to completion and returns its aggregate. The
// returned error is structural only (bad request, unknown agent, unresolvable
// graph); agent failures are reported inside the aggregate, never as an
// error. Cancellation of ctx stops scheduling further levels and returns
// whatever settled, with the untouched pairs marked skipped.
func (o *Orchestrator) Analyze(ctx context.Context, req agent.Request) (*agent.Aggregate, error) {
	if !o.isStarted() {
		return nil, ErrNotStarted
	}
	if len(req.Subjects) == 0 {
		return nil, fmt.Errorf("%w: no subjects", ErrInvalidRequest)
	}
	for _, s := range req.Subjects {
		if s == "" {
			return nil, fmt.Errorf("%w: empty subject", ErrInvalidRequest)
		}
	}
	requestID := req.ID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Every Process call sees the full subject list, so batch-aware agents
	// can enforce request-wide limits or build cross-symbol output.
	params := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	params[agent.ParamSubjects] = append([]string(nil), req.Subjects...)
	req.Params = params

	// Admission control: at most MaxConcurrentRequests in flight.
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for request slot: %w", ctx.Err())
	}
	defer func() { <-o.sem }()

	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()

	ctx, span := obs.StartSpan(ctx, "orchestrator.analyze", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.Int("request.subjects", len(req.Subjects)),
	))
	defer span.End()

	descriptors, err := o.selectAgents(req.Agents)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	levels, err := graph.Resolve(descriptors)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve dependencies: %w", err)
	}

	byName := make(map[string]agent.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}

	agg := &agent.Aggregate{
		RequestID: requestID,
		Results:   make(map[string]map[string]*agent.Result, len(descriptors)),
		StartedAt: time.Now().UTC(),
	}
	for _, d := range descriptors {
		agg.Results[d.Name] = make(map[string]*agent.Result, len(req.Subjects))
	}

	log.Printf("[Orchestrator] Request %s: %d subjects across %d agents in %d levels",
		requestID, len(req.Subjects), len(descriptors), len(levels))

	o.runLevels(ctx, req, requestID, byName, levels, agg)

	agg.Overall = overallStatus(levels, req.Subjects, agg)
	agg.FinishedAt = time.Now().UTC()
	span.SetAttributes(attribute.String("request.overall", string(agg.Overall)))
	metrics.RecordRequest(string(agg.Overall), agg.FinishedAt.Sub(agg.StartedAt))

	o.announce(agg)
	return agg, nil
}

// selectAgents intersects the requested names with the enabled registry set.
// Empty requested means every enabled agent.
func (o *Orchestrator) selectAgents(requested []string) ([]agent.Descriptor, error) {
	enabled := o.registry.Enabled()
	if len(requested) == 0 {
		if len(enabled) == 0 {
			return nil, ErrNoApplicableAgents
		}
		return enabled, nil
	}
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !o.registry.Contains(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
		}
		want[name] = true
	}
	selected := make([]agent.Descriptor, 0, len(requested))
	for _, d := range enabled {
		if want[d.Name] {
			selected = append(selected, d)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: all requested agents are disabled", ErrNoApplicableAgents)
	}
	return selected, nil
}

// runLevels executes each level as a barrier: every unit in a level settles
// before the next level starts. Results merge into agg only between levels,
// so in-flight goroutines read a stable view of upstream data.
func (o *Orchestrator) runLevels(ctx context.Context, req agent.Request, requestID string, byName map[string]agent.Descriptor, levels [][]string, agg *agent.Aggregate) {
	for i, level := range levels {
		if ctx.Err() != nil {
			log.Printf("[Orchestrator] Request %s: context done before level %d, skipping the rest", requestID, i)
			markSkipped(levels[i:], req.Subjects, requestID, agg, "request deadline exceeded")
			return
		}

		levelCtx, span := obs.StartSpan(ctx, "orchestrator.level", trace.WithAttributes(
			attribute.Int("level.index", i),
			attribute.StringSlice("level.agents", level),
		))

		units := make([]unit, 0, len(level)*len(req.Subjects))
		for _, name := range level {
			d := byName[name]
			r := o.runner(name)
			for _, subject := range req.Subjects {
				units = append(units, unit{runner: r, desc: d, subject: subject})
			}
		}

		results := make([]*agent.Result, len(units))
		g := new(errgroup.Group)
		for idx, u := range units {
			idx, u := idx, u
			g.Go(func() error {
				results[idx] = o.invoke(levelCtx, u, req, requestID, agg)
				return nil
			})
		}
		g.Wait()
		span.End()

		for idx, res := range results {
			agg.Results[units[idx].desc.Name][units[idx].subject] = res
		}
	}
}

// invoke settles one unit: dependency skip check, upstream assembly, then the
// runner call with retries. Only failed invocations retry; timeouts do not.
func (o *Orchestrator) invoke(ctx context.Context, u unit, req agent.Request, requestID string, agg *agent.Aggregate) *agent.Result {
	for _, dep := range u.desc.DependsOn {
		res := agg.Result(dep, u.subject)
		if res == nil || !res.Status.Usable() {
			skipped := agent.NewResult(u.desc.Name, u.subject)
			skipped.RequestID = requestID
			skipped.Status = agent.StatusSkipped
			skipped.Reason = fmt.Sprintf("dependency %s produced no usable result", dep)
			metrics.RecordInvocation(u.desc.Name, string(agent.StatusSkipped), 0)
			return skipped
		}
	}

	upstream := make(map[string]*agent.Result, len(u.desc.DependsOn)+len(u.desc.Optional))
	for _, dep := range u.desc.DependsOn {
		upstream[dep] = agg.Result(dep, u.subject)
	}
	for _, dep := range u.desc.Optional {
		if res := agg.Result(dep, u.subject); res != nil && res.Status.Usable() {
			upstream[dep] = res
		}
	}

	if u.runner == nil {
		res := agent.NewResult(u.desc.Name, u.subject)
		res.RequestID = requestID
		res.Status = agent.StatusFailed
		res.Reason = "agent has no active runner"
		return res
	}

	ctx, span := obs.StartSpan(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.name", u.desc.Name),
		attribute.String("agent.subject", u.subject),
	))
	defer span.End()

	attempts := 0
	var res *agent.Result
	for {
		attempts++
		started := time.Now()
		res = u.runner.Invoke(ctx, u.subject, upstream, req.Params)
		metrics.RecordInvocation(u.desc.Name, string(res.Status), time.Since(started))
		if res.Status != agent.StatusFailed || attempts > o.cfg.RetryAttempts || u.runner.Unrecoverable() {
			break
		}
		delay := o.backoff(attempts - 1)
		log.Printf("[Orchestrator] %s failed for %s (attempt %d/%d), retrying in %s: %s",
			u.desc.Name, u.subject, attempts, o.cfg.RetryAttempts+1, delay, res.Reason)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			span.SetAttributes(
				attribute.String("invoke.status", string(res.Status)),
				attribute.Int("invoke.attempts", attempts),
			)
			res.RequestID = requestID
			return res
		}
	}
	span.SetAttributes(
		attribute.String("invoke.status", string(res.Status)),
		attribute.Int("invoke.attempts", attempts),
	)
	res.RequestID = requestID
	return res
}

// backoff returns the delay before retry n (zero-based), doubling from the
// base and clamped to the cap.
func (o *Orchestrator) backoff(retry int) time.Duration {
	d := o.cfg.RetryBackoffBase << retry
	if d <= 0 || d > o.cfg.RetryBackoffCap {
		d = o.cfg.RetryBackoffCap
	}
	return d
}

// markSkipped records a skipped result for every pair in the given levels
// that has not settled yet.
func markSkipped(levels [][]string, subjects []string, requestID string, agg *agent.Aggregate, reason string) {
	for _, level := range levels {
		for _, name := range level {
			for _, subject := range subjects {
				if agg.Result(name, subject) != nil {
					continue
				}
				res := agent.NewResult(name, subject)
				res.RequestID = requestID
				res.Status = agent.StatusSkipped
				res.Reason = reason
				agg.Results[name][subject] = res
				metrics.RecordInvocation(name, string(agent.StatusSkipped), 0)
			}
		}
	}
}

// overallStatus classifies the aggregate. Failed means the root level
// produced nothing: every level-0 invocation failed or timed out. A run cut
// short by the deadline stays partial because earlier levels may still hold
// usable data.
func overallStatus(levels [][]string, subjects []string, agg *agent.Aggregate) agent.OverallStatus {
	allOK := true
	for _, byAgent := range agg.Results {
		for _, res := range byAgent {
			if res.Status != agent.StatusOK {
				allOK = false
			}
		}
	}
	if allOK {
		return agent.OverallComplete
	}

	if len(levels) > 0 {
		rootDead := true
		for _, name := range levels[0] {
			for _, subject := range subjects {
				res := agg.Result(name, subject)
				if res == nil || (res.Status != agent.StatusFailed && res.Status != agent.StatusTimedOut) {
					rootDead = false
				}
			}
		}
		if rootDead {
			return agent.OverallFailed
		}
	}
	return agent.OverallPartial
}

// announce broadcasts the request outcome on the bus so interested agents
// can observe completions.
func (o *Orchestrator) announce(agg *agent.Aggregate) {
	msg := agent.NewBroadcast("request.completed", busName, map[string]any{
		"request_id": agg.RequestID,
		"overall":    string(agg.Overall),
		"ok":         agg.Count(agent.StatusOK),
		"failed":     agg.Count(agent.StatusFailed),
		"skipped":    agg.Count(agent.StatusSkipped),
		"timed_out":  agg.Count(agent.StatusTimedOut),
	})
	if err := o.bus.Publish(context.Background(), msg); err != nil {
		log.Printf("[Orchestrator] Broadcast request.completed failed: %v", err)
	}
}
