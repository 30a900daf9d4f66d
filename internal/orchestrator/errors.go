package orchestrator

import "errors"

// Structural errors: these fail the whole Analyze call. Everything else an
// agent does wrong is captured inside a Result status instead.
var (
	// ErrNotStarted is returned when Analyze is called before Start.
	ErrNotStarted = errors.New("orchestrator not started")

	// ErrInvalidRequest is returned for requests with no subjects or other
	// malformed fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoApplicableAgents is returned when the requested ∩ enabled agent
	// set is empty.
	ErrNoApplicableAgents = errors.New("no applicable agents")

	// ErrUnknownAgent is returned when a request names an agent that was
	// never registered.
	ErrUnknownAgent = errors.New("unknown agent")
)
