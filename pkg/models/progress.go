package models

// WorkerTypeProgress counts completed vs. total tasks for one worker type.
type WorkerTypeProgress struct {
	// Completed is the number of finished tasks for this worker type.
	Completed int `json:"completed"`
	// Total is the number of tasks assigned to this worker type.
	Total int `json:"total"`
}

// FailedTask records a failed or blocked task for postmortem reporting.
type FailedTask struct {
	// ID is the task id.
	ID string `json:"id"`
	// Status is the terminal status the task ended in.
	Status TaskStatus `json:"status"`
	// Error is the recorded error message or blocked reason.
	Error string `json:"error,omitempty"`
}

// ProgressSnapshot is a point-in-time aggregate view of a session's progress.
// It is an incrementally maintained projection, never recomputed from raw
// task state on read.
type ProgressSnapshot struct {
	// SessionID identifies the session this snapshot belongs to.
	SessionID string `json:"session_id"`
	// Total is the number of tasks in the session's graph.
	Total int `json:"total"`
	// Completed counts tasks that finished successfully.
	Completed int `json:"completed"`
	// Failed counts tasks that ended failed.
	Failed int `json:"failed"`
	// Blocked counts tasks that can never run.
	Blocked int `json:"blocked"`
	// InProgress counts tasks currently executing.
	InProgress int `json:"in_progress"`
	// Pending counts tasks not yet started.
	Pending int `json:"pending"`
	// Stage is a human-readable label for the current phase.
	Stage string `json:"stage,omitempty"`
	// PerWorkerType breaks progress down by worker type.
	PerWorkerType map[string]WorkerTypeProgress `json:"per_worker_type,omitempty"`
	// FailedTasks lists every failed or blocked task with its error,
	// so callers can render a complete postmortem.
	FailedTasks []FailedTask `json:"failed_tasks,omitempty"`
}

// Done returns true when every task has reached a terminal state.
func (p ProgressSnapshot) Done() bool {
	return p.Completed+p.Failed+p.Blocked == p.Total
}

// Equal reports whether two snapshots carry the same content.
// Used by subscribers to suppress duplicate emissions.
func (p ProgressSnapshot) Equal(o ProgressSnapshot) bool {
	if p.SessionID != o.SessionID || p.Total != o.Total ||
		p.Completed != o.Completed || p.Failed != o.Failed ||
		p.Blocked != o.Blocked || p.InProgress != o.InProgress ||
		p.Pending != o.Pending || p.Stage != o.Stage {
		return false
	}
	if len(p.PerWorkerType) != len(o.PerWorkerType) {
		return false
	}
	for wt, wp := range p.PerWorkerType {
		if o.PerWorkerType[wt] != wp {
			return false
		}
	}
	if len(p.FailedTasks) != len(o.FailedTasks) {
		return false
	}
	for i := range p.FailedTasks {
		if p.FailedTasks[i] != o.FailedTasks[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so cached snapshots can be handed out safely.
func (p ProgressSnapshot) Clone() ProgressSnapshot {
	out := p
	if p.PerWorkerType != nil {
		out.PerWorkerType = make(map[string]WorkerTypeProgress, len(p.PerWorkerType))
		for wt, wp := range p.PerWorkerType {
			out.PerWorkerType[wt] = wp
		}
	}
	if p.FailedTasks != nil {
		out.FailedTasks = append([]FailedTask(nil), p.FailedTasks...)
	}
	return out
}
