package agent

import "errors"

// Bus delivery errors. Both are raised to the sender only; the bus itself
// keeps running.
var (
	// ErrRecipientUnknown reports a point-to-point message addressed to a
	// name that was never registered on the bus.
	ErrRecipientUnknown = errors.New("recipient unknown")

	// ErrBusSaturated reports a publish that stayed blocked on a full
	// recipient queue for the whole publish timeout.
	ErrBusSaturated = errors.New("bus saturated")
)
