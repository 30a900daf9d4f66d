package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of one agent×subject invocation.
type Status string

const (
	// StatusOK marks a successful invocation carrying usable data.
	StatusOK Status = "ok"
	// StatusFailed marks an invocation whose Process call returned an error
	// after all retries were exhausted.
	StatusFailed Status = "failed"
	// StatusSkipped marks an invocation that was never attempted because a
	// mandatory dependency produced no usable result, or because the
	// request deadline expired before its level started.
	StatusSkipped Status = "skipped"
	// StatusTimedOut marks an invocation abandoned at its deadline.
	StatusTimedOut Status = "timed_out"
)

// Usable reports whether the status satisfies a downstream dependency.
func (s Status) Usable() bool { return s == StatusOK }

// SignalKind classifies an analysis signal.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
	SignalWarn SignalKind = "warn"
	SignalInfo SignalKind = "info"
)

// Signal is a single directional finding produced by an agent. Strength is
// signed: positive leans buy, negative leans sell, zero is neutral.
type Signal struct {
	Kind       SignalKind     `json:"kind"`
	Confidence float64        `json:"confidence"`
	Strength   float64        `json:"strength"`
	Rationale  string         `json:"rationale"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Request describes one analysis run. It is immutable once submitted; the
// caller's context carries the optional overall deadline.
type Request struct {
	// ID uniquely identifies the request. NewRequest generates one.
	ID string

	// Subjects are the symbols to analyze, in caller order.
	Subjects []string

	// Agents restricts the run to the named agents. Empty means every
	// enabled agent. Names must exist in the registry, and the selection
	// must contain the mandatory dependencies of every selected agent.
	Agents []string

	// Params are request-scoped options passed through to every agent.
	Params map[string]any

	// CreatedAt is when the request was built.
	CreatedAt time.Time
}

// NewRequest builds a request for the given subjects with a generated ID.
func NewRequest(subjects ...string) Request {
	return Request{
		ID:        uuid.New().String(),
		Subjects:  subjects,
		CreatedAt: time.Now().UTC(),
	}
}

// WithAgents restricts the request to the named agents.
func (r Request) WithAgents(names ...string) Request {
	r.Agents = names
	return r
}

// WithParam attaches a request-scoped parameter.
func (r Request) WithParam(key string, value any) Request {
	params := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		params[k] = v
	}
	params[key] = value
	r.Params = params
	return r
}

// ParamSubjects is the params key under which the engine passes the full
// request subject list to every Process call. Agents that care about the
// request as a whole, such as batch limits or cross-symbol charts, read it
// with SubjectsParam.
const ParamSubjects = "request_subjects"

// SubjectsParam extracts the engine-provided subject list from a Process
// params map. It returns nil when the key is absent or malformed.
func SubjectsParam(params map[string]any) []string {
	switch v := params[ParamSubjects].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Result is the outcome of one agent×subject invocation. Exactly one result
// exists per attempted pair; failures are results, not errors.
type Result struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id"`
	Agent      string         `json:"agent"`
	Subject    string         `json:"subject"`
	Signals    []Signal       `json:"signals,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Confidence float64        `json:"confidence"`
	Status     Status         `json:"status"`
	// Reason is a human-readable explanation, set whenever Status is not ok.
	Reason     string    `json:"reason,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

// NewResult builds an ok result shell for an agent to fill in.
func NewResult(agentName, subject string) *Result {
	return &Result{
		ID:         uuid.New().String(),
		Agent:      agentName,
		Subject:    subject,
		Status:     StatusOK,
		Payload:    make(map[string]any),
		ProducedAt: time.Now().UTC(),
	}
}

// AddSignal appends a signal to the result.
func (r *Result) AddSignal(kind SignalKind, confidence, strength float64, rationale string) {
	r.Signals = append(r.Signals, Signal{
		Kind:       kind,
		Confidence: confidence,
		Strength:   strength,
		Rationale:  rationale,
	})
}

// OverallStatus summarizes an aggregate across all attempted invocations.
type OverallStatus string

const (
	// OverallComplete means every invocation settled ok.
	OverallComplete OverallStatus = "complete"
	// OverallPartial means at least one invocation settled not-ok but some
	// usable data exists.
	OverallPartial OverallStatus = "partial"
	// OverallFailed means every level-0 invocation failed; nothing usable
	// was produced.
	OverallFailed OverallStatus = "failed"
)

// Aggregate is the composite outcome of one request across all attempted
// agents and subjects.
type Aggregate struct {
	RequestID string `json:"request_id"`
	// Results holds one entry per attempted agent×subject pair, keyed
	// agent name first, then subject.
	Results    map[string]map[string]*Result `json:"results"`
	Overall    OverallStatus                 `json:"overall"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
}

// Result returns the entry for one agent×subject pair, or nil.
func (a *Aggregate) Result(agentName, subject string) *Result {
	if byAgent, ok := a.Results[agentName]; ok {
		return byAgent[subject]
	}
	return nil
}

// Count returns the number of results with the given status.
func (a *Aggregate) Count(status Status) int {
	n := 0
	for _, byAgent := range a.Results {
		for _, res := range byAgent {
			if res.Status == status {
				n++
			}
		}
	}
	return n
}

// Total returns the number of attempted agent×subject pairs.
func (a *Aggregate) Total() int {
	n := 0
	for _, byAgent := range a.Results {
		n += len(byAgent)
	}
	return n
}
