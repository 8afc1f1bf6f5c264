// Package progress maintains cached, incrementally-updated progress
// snapshots per session and streams them to subscribers.
package progress

import (
	"sync"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Aggregator holds one cached snapshot per session, folded synchronously on
// every status transition the coordinator applies. Reads never recompute
// from raw task state.
type Aggregator struct {
	mu       sync.RWMutex
	sessions map[string]*sessionProgress
}

// sessionProgress is the cached projection plus its subscribers.
type sessionProgress struct {
	snapshot models.ProgressSnapshot
	subs     map[int]*Subscription
	nextSub  int
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{sessions: make(map[string]*sessionProgress)}
}

// Init seeds the cached snapshot for a new session from its task list.
func (a *Aggregator) Init(sessionID string, tasks []*models.Task) {
	snapshot := models.ProgressSnapshot{
		SessionID:     sessionID,
		Total:         len(tasks),
		Pending:       len(tasks),
		Stage:         "initializing",
		PerWorkerType: make(map[string]models.WorkerTypeProgress, 4),
	}
	for _, task := range tasks {
		wp := snapshot.PerWorkerType[task.WorkerType]
		wp.Total++
		snapshot.PerWorkerType[task.WorkerType] = wp
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionID] = &sessionProgress{
		snapshot: snapshot,
		subs:     make(map[int]*Subscription),
	}
}

// Transition folds one task status change into the cached snapshot and
// emits to subscribers. Called synchronously by the coordinator the instant
// a transition is applied, so no update is lost to coalescing: the fold
// always happens before any emission.
func (a *Aggregator) Transition(sessionID string, task *models.Task, from models.TaskStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp, ok := a.sessions[sessionID]
	if !ok {
		return
	}

	snap := &sp.snapshot
	adjust(snap, from, -1)
	adjust(snap, task.Status, +1)

	switch task.Status {
	case models.TaskStatusCompleted:
		wp := snap.PerWorkerType[task.WorkerType]
		wp.Completed++
		snap.PerWorkerType[task.WorkerType] = wp
	case models.TaskStatusFailed:
		snap.FailedTasks = append(snap.FailedTasks, models.FailedTask{
			ID:     task.ID,
			Status: task.Status,
			Error:  task.Error,
		})
	case models.TaskStatusBlocked:
		snap.FailedTasks = append(snap.FailedTasks, models.FailedTask{
			ID:     task.ID,
			Status: task.Status,
			Error:  task.BlockedReason,
		})
	}

	a.emitLocked(sp)
}

// SetStage updates the human-readable stage label.
func (a *Aggregator) SetStage(sessionID, stage string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp, ok := a.sessions[sessionID]
	if !ok || sp.snapshot.Stage == stage {
		return
	}
	sp.snapshot.Stage = stage
	a.emitLocked(sp)
}

// adjust moves a status counter by delta.
func adjust(snap *models.ProgressSnapshot, status models.TaskStatus, delta int) {
	switch status {
	case models.TaskStatusPending:
		snap.Pending += delta
	case models.TaskStatusInProgress:
		snap.InProgress += delta
	case models.TaskStatusCompleted:
		snap.Completed += delta
	case models.TaskStatusFailed:
		snap.Failed += delta
	case models.TaskStatusBlocked:
		snap.Blocked += delta
	}
}

// Snapshot returns the cached snapshot for a session. The second return is
// false when the session is unknown or already evicted.
func (a *Aggregator) Snapshot(sessionID string) (models.ProgressSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sp, ok := a.sessions[sessionID]
	if !ok {
		return models.ProgressSnapshot{}, false
	}
	return sp.snapshot.Clone(), true
}

// Subscription delivers a sequence of snapshots for one session.
// The channel conflates: it always carries the latest snapshot, and a value
// equal to the previously delivered one is never queued.
type Subscription struct {
	ch     chan models.ProgressSnapshot
	cancel func()

	// last is the most recently queued snapshot, used to suppress
	// duplicate emissions.
	last    models.ProgressSnapshot
	primed  bool
	stopped bool
}

// Updates returns the snapshot channel. It is closed on Cancel or eviction.
func (s *Subscription) Updates() <-chan models.ProgressSnapshot {
	return s.ch
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Subscribe returns a handle streaming snapshot changes for a session.
// The current snapshot is queued immediately. Returns nil for unknown sessions.
func (a *Aggregator) Subscribe(sessionID string) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp, ok := a.sessions[sessionID]
	if !ok {
		return nil
	}

	id := sp.nextSub
	sp.nextSub++

	sub := &Subscription{ch: make(chan models.ProgressSnapshot, 1)}
	sub.cancel = func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.dropLocked(sp, id)
	}
	sp.subs[id] = sub

	sub.last = sp.snapshot.Clone()
	sub.primed = true
	sub.ch <- sub.last
	return sub
}

// emitLocked queues the current snapshot to every subscriber whose last
// delivered value differs. Caller must hold the lock.
func (a *Aggregator) emitLocked(sp *sessionProgress) {
	for _, sub := range sp.subs {
		if sub.stopped {
			continue
		}
		if sub.primed && sub.last.Equal(sp.snapshot) {
			continue
		}
		next := sp.snapshot.Clone()

		// Conflate: replace a stale queued value with the latest.
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- next
		sub.last = next
		sub.primed = true
	}
}

// dropLocked removes one subscription. Caller must hold the lock.
func (a *Aggregator) dropLocked(sp *sessionProgress, id int) {
	sub, ok := sp.subs[id]
	if !ok || sub.stopped {
		return
	}
	sub.stopped = true
	delete(sp.subs, id)
	close(sub.ch)
}

// Evict removes a session's cached snapshot and closes its subscriptions.
// Called by the session registry's cleanup after terminal status.
func (a *Aggregator) Evict(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp, ok := a.sessions[sessionID]
	if !ok {
		return
	}
	for id := range sp.subs {
		a.dropLocked(sp, id)
	}
	delete(a.sessions, sessionID)
}
