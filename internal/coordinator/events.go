// Package coordinator schedules task-graph execution: it owns the session
// registry, drives dispatch under the configured policy, and is the single
// writer of task and session status.
package coordinator

import (
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// EventType represents the type of coordinator lifecycle event.
type EventType string

const (
	// EventOrchestrationStarted indicates a session has been created and
	// its first dispatch pass is about to run.
	EventOrchestrationStarted EventType = "orchestration_started"
	// EventTaskQueued indicates a task is ready and queued for execution.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed attempt is being re-dispatched.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskBlocked indicates a task can never run because a required
	// dependency failed.
	EventTaskBlocked EventType = "task_blocked"
	// EventProgressUpdated carries a fresh progress snapshot.
	EventProgressUpdated EventType = "progress_updated"
	// EventOrchestrationCompleted indicates the session reached a
	// terminal status through normal execution.
	EventOrchestrationCompleted EventType = "orchestration_completed"
	// EventOrchestrationCancelled indicates the session was cancelled.
	EventOrchestrationCancelled EventType = "orchestration_cancelled"
)

// Event represents a lifecycle event emitted by the coordinator.
// Observers (renderers, loggers, test harnesses) subscribe via Events().
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SessionID is the session the event belongs to.
	SessionID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// WorkerType is the worker role of the related task, if applicable.
	WorkerType string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error string
	// Snapshot carries the session's progress for progress_updated events.
	Snapshot *models.ProgressSnapshot
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
