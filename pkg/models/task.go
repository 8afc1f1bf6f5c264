// Package models defines the shared vocabulary types for taskweave:
// tasks, sessions, messages, and progress snapshots.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task can never run because a
	// required dependency failed.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is allowed out of the status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a status change from s to next is allowed.
// Transitions are monotonic: pending -> in_progress, in_progress ->
// completed|failed, pending -> blocked. Terminal states admit nothing.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusInProgress || next == TaskStatusBlocked || next == TaskStatusFailed
	case TaskStatusInProgress:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// DefaultPriority is assigned to tasks that arrive without a priority hint.
const DefaultPriority = 3

// Task represents a unit of work in the system.
// Priority runs 1-5 with 1 the most urgent.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description provides detailed information about the task.
	Description string `json:"description"`
	// WorkerType names the specialized worker role this task is assigned to.
	WorkerType string `json:"worker_type"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// OptionalDeps lists task IDs whose outcome is awaited but whose
	// failure does not block this task.
	OptionalDeps []string `json:"optional_deps,omitempty"`
	// Priority is the urgency of the task, 1 (most urgent) to 5.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the worker output for a completed task.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// BlockedReason explains why the task was blocked, if it was.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// EstimatedDuration is the heuristic duration estimate for the task.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
