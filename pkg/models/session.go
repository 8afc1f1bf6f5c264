package models

import "time"

// SessionMode selects the dispatch policy for a session.
type SessionMode string

const (
	// ModeSequential executes tasks one at a time in topological order.
	ModeSequential SessionMode = "sequential"
	// ModeParallel dispatches every ready task concurrently, unbounded.
	ModeParallel SessionMode = "parallel"
	// ModeAdaptive dispatches ready tasks bounded by per-worker-type capacity.
	ModeAdaptive SessionMode = "adaptive"
)

// Valid returns true if the mode is a known value.
func (m SessionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeAdaptive:
		return true
	default:
		return false
	}
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// SessionInitializing indicates the session exists but dispatch has not begun.
	SessionInitializing SessionStatus = "initializing"
	// SessionRunning indicates the first dispatch pass has happened.
	SessionRunning SessionStatus = "running"
	// SessionCompleted indicates every task finished successfully.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates at least one task ended failed.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled indicates the session was cancelled by the caller.
	SessionCancelled SessionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInitializing, SessionRunning, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the session has finished.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// Session represents one execution run of a task graph under a dispatch policy.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Mode is the dispatch policy in effect.
	Mode SessionMode `json:"mode"`
	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`
	// StartedAt is when orchestration began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the session reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ConcurrencyLimit caps concurrent dispatch when > 0. Adaptive mode
	// additionally bounds per worker type by pool capacity.
	ConcurrencyLimit int `json:"concurrency_limit,omitempty"`
	// MaxRetries is how many times a failed task is re-dispatched before
	// it is terminally failed.
	MaxRetries int `json:"max_retries,omitempty"`
	// ContinueOnError lets sequential mode proceed past independent
	// branches after a failure instead of ending the session.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}
