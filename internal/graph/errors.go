package graph

import (
	"fmt"
	"strings"
)

// CycleError reports the offending cycle as the sequence of agent names
// walked to close it, first name repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap makes the error match ErrCycleDetected under errors.Is.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
