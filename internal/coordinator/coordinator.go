package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/taskweave/internal/bus"
	"github.com/ShayCichocki/taskweave/internal/distribute"
	"github.com/ShayCichocki/taskweave/internal/graph"
	"github.com/ShayCichocki/taskweave/internal/progress"
	"github.com/ShayCichocki/taskweave/internal/state"
	"github.com/ShayCichocki/taskweave/internal/worker"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Coordinator owns the session registry and drives task-graph execution.
// It is the single writer of task and session status: status advances only
// inside its per-session event loop and its control calls (Cancel).
type Coordinator struct {
	pool        worker.Pool
	distributor *distribute.Distributor
	bus         *bus.MessageBus
	aggregator  *progress.Aggregator
	emitter     *EventEmitter
	store       state.Store
	logger      *DebugLogger

	defaultMaxRetries int
	concurrencyLimit  int
	continueOnError   bool
	blockedFatal      bool

	// sessions is the explicit session registry; no ambient globals.
	mu       sync.RWMutex
	sessions map[string]*session
}

// session is one registered execution run.
type session struct {
	model *models.Session
	graph *graph.TaskGraph

	// queued tracks tasks already announced as ready. Only the run
	// loop touches it.
	queued map[string]bool

	// mu protects the session model fields.
	mu sync.Mutex
	// cancelCh is closed exactly once when the session is cancelled.
	cancelCh chan struct{}
	// done is closed when the run loop exits.
	done chan struct{}
}

// cancelled reports whether cancellation has been requested.
func (s *session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// New creates a Coordinator driving the given worker pool.
func New(pool worker.Pool, opts ...Option) *Coordinator {
	c := &Coordinator{
		pool:        pool,
		distributor: distribute.New(),
		bus:         bus.New(0),
		aggregator:  progress.New(),
		logger:      NopLogger(),
		sessions:    make(map[string]*session),
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.distributor != nil {
		c.distributor = options.distributor
	}
	if options.bus != nil {
		c.bus = options.bus
	}
	if options.logger != nil {
		c.logger = options.logger
	}
	c.store = options.store
	c.defaultMaxRetries = options.maxRetries
	c.concurrencyLimit = options.concurrencyLimit
	c.continueOnError = options.continueOnError
	c.blockedFatal = options.blockedFatal
	c.emitter = NewEventEmitter(options.eventBuffer)

	setPackageLogger(c.logger)
	return c
}

// Orchestrate normalizes a raw candidate list, validates the resulting
// graph, registers a session, and starts execution under the given mode.
// Graph and decomposition errors abort before any session is created.
func (c *Coordinator) Orchestrate(ctx context.Context, candidates []distribute.Candidate, mode models.SessionMode) (string, error) {
	g, result, err := c.distributor.Distribute(candidates)
	if err != nil {
		return "", err
	}

	for _, w := range result.Warnings {
		c.logger.Log("[orchestrate] %s", w)
	}

	msg := fmt.Sprintf("orchestrating %d tasks (parallelization factor %.2f)", g.Size(), result.ParallelizationFactor)
	return c.startSession(ctx, g, mode, msg)
}

// OrchestrateGraph starts execution of an already-built task graph.
// The graph is re-validated; it must not be shared with another session.
func (c *Coordinator) OrchestrateGraph(ctx context.Context, g *graph.TaskGraph, mode models.SessionMode) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	return c.startSession(ctx, g, mode, fmt.Sprintf("orchestrating %d tasks", g.Size()))
}

// startSession registers the session and launches its run loop.
func (c *Coordinator) startSession(ctx context.Context, g *graph.TaskGraph, mode models.SessionMode, startMsg string) (string, error) {
	if !mode.Valid() {
		return "", fmt.Errorf("unknown session mode %q", mode)
	}

	sessionID := newSessionID()
	g.SetDebugLog(debugLog)

	s := &session{
		model: &models.Session{
			ID:               sessionID,
			Mode:             mode,
			Status:           models.SessionInitializing,
			StartedAt:        time.Now(),
			ConcurrencyLimit: c.concurrencyLimit,
			MaxRetries:       c.defaultMaxRetries,
			ContinueOnError:  c.continueOnError,
		},
		graph:    g,
		queued:   make(map[string]bool),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[sessionID] = s
	c.mu.Unlock()

	c.aggregator.Init(sessionID, g.Tasks())

	if c.store != nil {
		rec := &state.SessionRecord{
			ID:        sessionID,
			Mode:      string(mode),
			Status:    string(models.SessionInitializing),
			TaskCount: g.Size(),
			StartedAt: s.model.StartedAt,
		}
		if err := c.store.CreateSession(rec); err != nil {
			c.logger.Log("[orchestrate] state store write failed: %v", err)
		}
	}

	c.emit(Event{
		Type:      EventOrchestrationStarted,
		SessionID: sessionID,
		Message:   startMsg,
	})

	go c.run(ctx, s)
	return sessionID, nil
}

// Status returns the cached progress snapshot for a session, or nil when
// the session is unknown or already cleaned up.
func (c *Coordinator) Status(sessionID string) *models.ProgressSnapshot {
	snap, ok := c.aggregator.Snapshot(sessionID)
	if !ok {
		return nil
	}
	return &snap
}

// StreamProgress returns a subscription delivering snapshot changes, or
// nil for an unknown session.
func (c *Coordinator) StreamProgress(sessionID string) *progress.Subscription {
	return c.aggregator.Subscribe(sessionID)
}

// Cancel cancels a session: every pending and in-progress task is failed
// with reason "cancelled", in-flight executions are asked to abort, and the
// session transitions to cancelled. Idempotent; unknown ids are a no-op.
// Synchronous from the caller's point of view.
func (c *Coordinator) Cancel(sessionID string) {
	c.mu.RLock()
	s := c.sessions[sessionID]
	c.mu.RUnlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.model.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.model.Status = models.SessionCancelled
	now := time.Now()
	s.model.CompletedAt = &now
	close(s.cancelCh)
	s.mu.Unlock()

	c.logger.Log("[cancel] session %s cancelled", sessionID)

	// Statuses are read under the graph lock; whichever of this scan and
	// the run loop loses a transition race is rejected by the graph.
	pending, inProgress := s.graph.Unsettled()
	for _, task := range append(inProgress, pending...) {
		c.failTask(s, task, "cancelled")
	}

	c.aggregator.SetStage(sessionID, "cancelled")
	c.finishRecord(s)
	c.emit(Event{
		Type:      EventOrchestrationCancelled,
		SessionID: sessionID,
		Message:   "orchestration cancelled",
	})
}

// failTask settles a task as failed and folds it into progress. The prior
// status comes from the settle itself, so a task that started executing
// after the caller's scan is still aborted and counted correctly.
func (c *Coordinator) failTask(s *session, task *models.Task, reason string) {
	from, err := s.graph.Settle(task.ID, models.TaskStatusFailed, reason)
	if err != nil {
		c.logger.Log("[cancel] task %s: %v", task.ID, err)
		return
	}
	if from == models.TaskStatusInProgress {
		c.pool.Abort(task.ID)
	}
	c.bus.Unregister(task.ID)
	c.aggregator.Transition(s.model.ID, task, from)
	c.recordTask(s, task)
}

// Cleanup removes a terminal session from the registry and evicts its
// cached snapshot. Returns an error for running or unknown sessions.
func (c *Coordinator) Cleanup(sessionID string) error {
	c.mu.Lock()
	s := c.sessions[sessionID]
	if s == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown session %s", sessionID)
	}

	s.mu.Lock()
	terminal := s.model.Status.Terminal()
	s.mu.Unlock()
	if !terminal {
		c.mu.Unlock()
		return fmt.Errorf("session %s has not finished", sessionID)
	}

	delete(c.sessions, sessionID)
	c.mu.Unlock()

	c.aggregator.Evict(sessionID)
	return nil
}

// Session returns a copy of the session model, or nil when unknown.
func (c *Coordinator) Session(sessionID string) *models.Session {
	c.mu.RLock()
	s := c.sessions[sessionID]
	c.mu.RUnlock()
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.model
	return &out
}

// Tasks returns the session's tasks in insertion order, or nil when unknown.
func (c *Coordinator) Tasks(sessionID string) []*models.Task {
	c.mu.RLock()
	s := c.sessions[sessionID]
	c.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.graph.Tasks()
}

// Wait returns a channel closed when the session's run loop has exited.
// Returns a closed channel for unknown sessions.
func (c *Coordinator) Wait(sessionID string) <-chan struct{} {
	c.mu.RLock()
	s := c.sessions[sessionID]
	c.mu.RUnlock()
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// WorkerTypes lists the worker roles the pool can execute.
func (c *Coordinator) WorkerTypes() []string {
	return c.pool.WorkerTypes()
}

// Bus returns the message bus shared by this coordinator's workers.
func (c *Coordinator) Bus() *bus.MessageBus {
	return c.bus
}

// Events returns the lifecycle event channel.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// DroppedEventCount returns how many events were dropped under backpressure.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.emitter.DroppedCount()
}

// Close ends the lifecycle event stream. Call only once every session has
// reached a terminal status; buffered events remain readable until drained.
func (c *Coordinator) Close() {
	c.emitter.Close()
}

// emit stamps and sends one lifecycle event.
func (c *Coordinator) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	c.emitter.Emit(event)
}

// emitProgress emits a progress_updated event with the current snapshot.
func (c *Coordinator) emitProgress(sessionID string) {
	snap, ok := c.aggregator.Snapshot(sessionID)
	if !ok {
		return
	}
	c.emit(Event{
		Type:      EventProgressUpdated,
		SessionID: sessionID,
		Snapshot:  &snap,
	})
}

// recordTask persists one terminal task outcome, best-effort.
func (c *Coordinator) recordTask(s *session, task *models.Task) {
	if c.store == nil {
		return
	}
	rec := &state.TaskRecord{
		SessionID:  s.model.ID,
		TaskID:     task.ID,
		WorkerType: task.WorkerType,
		Status:     string(task.Status),
		Error:      task.Error,
		Retries:    task.RetryCount,
	}
	if task.Status == models.TaskStatusBlocked {
		rec.Error = task.BlockedReason
	}
	if task.CompletedAt != nil {
		rec.FinishedAt = *task.CompletedAt
	}
	if err := c.store.RecordTask(rec); err != nil {
		c.logger.Log("[state] record task %s: %v", task.ID, err)
	}
}

// finishRecord persists the session's terminal status, best-effort.
func (c *Coordinator) finishRecord(s *session) {
	if c.store == nil {
		return
	}
	s.mu.Lock()
	status := string(s.model.Status)
	finished := time.Now()
	if s.model.CompletedAt != nil {
		finished = *s.model.CompletedAt
	}
	s.mu.Unlock()
	if err := c.store.FinishSession(s.model.ID, status, finished); err != nil {
		c.logger.Log("[state] finish session %s: %v", s.model.ID, err)
	}
}

// newSessionID is uuid-based; exposed for tests that need determinism.
var newSessionID = func() string {
	return uuid.New().String()[:8]
}
