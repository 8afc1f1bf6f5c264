package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// CycleError reports a circular dependency and the task ids involved in it.
type CycleError struct {
	// InvolvedIDs are the task ids Kahn's algorithm could not drain.
	InvolvedIDs []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected involving tasks: %s", strings.Join(e.InvolvedIDs, ", "))
}

// Unwrap lets errors.Is match against ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// UnknownDependencyError reports a dependency reference to a task that is
// not present in the graph.
type UnknownDependencyError struct {
	// TaskID is the task declaring the dependency.
	TaskID string
	// MissingDepID is the referenced id that does not exist.
	MissingDepID string
}

// Error implements the error interface.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.MissingDepID)
}
