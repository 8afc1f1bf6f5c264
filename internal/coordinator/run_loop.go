package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/taskweave/internal/worker"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// run is the per-session event loop. It is the only goroutine that
// advances task status during normal execution; Cancel is the sole
// other writer and both paths funnel through graph.Transition.
func (c *Coordinator) run(ctx context.Context, s *session) {
	defer close(s.done)

	s.mu.Lock()
	if !s.model.Status.Terminal() {
		s.model.Status = models.SessionRunning
	}
	s.mu.Unlock()
	c.aggregator.SetStage(s.model.ID, "running")

	if s.model.Mode == models.ModeSequential {
		c.runSequential(ctx, s)
	} else {
		c.runEventDriven(ctx, s)
	}

	c.finalize(s)
}

// runEventDriven drives parallel and adaptive sessions. Every state
// change happens in response to a completion arriving on completionCh;
// after each one the loop applies the status update first, then
// recomputes readiness and dispatches whatever became ready.
func (c *Coordinator) runEventDriven(ctx context.Context, s *session) {
	// Buffered for the whole graph so outcome pumps never block.
	completionCh := make(chan worker.Outcome, s.graph.Size()+1)

	inflight := c.dispatchPass(ctx, s, completionCh, 0)
	for inflight > 0 {
		select {
		case <-ctx.Done():
			c.Cancel(s.model.ID)
			return
		case <-s.cancelCh:
			return
		case outcome := <-completionCh:
			inflight--
			c.applyOutcome(s, outcome)
			if s.cancelled() {
				return
			}
			inflight += c.dispatchPass(ctx, s, completionCh, inflight)
		}
	}
}

// dispatchPass recomputes readiness, folds newly blocked tasks into
// progress, and starts every ready task the mode's policy allows.
// Returns the number of executions started.
func (c *Coordinator) dispatchPass(ctx context.Context, s *session, completionCh chan worker.Outcome, inflight int) int {
	if s.cancelled() {
		return 0
	}

	ready, blocked := s.graph.ReadyTasks()
	for _, task := range blocked {
		c.noteBlocked(s, task)
	}

	// Co-unlocked tasks dispatch by priority, then submission order.
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority < ready[j].Priority
	})

	for _, task := range ready {
		c.noteQueued(s, task)
	}

	started := 0
	for _, task := range ready {
		if s.model.Mode == models.ModeAdaptive {
			if c.pool.AvailableCapacity(task.WorkerType) <= 0 {
				// With nothing running no slot will ever free up, so a
				// zero-capacity worker type would stall the session.
				// Dispatch one task anyway and let the pool decide.
				if inflight+started > 0 {
					continue
				}
			}
		}
		if limit := s.model.ConcurrencyLimit; limit > 0 && inflight+started >= limit {
			break
		}
		if c.startTask(ctx, s, task, completionCh) {
			started++
		}
	}
	return started
}

// startTask moves one ready task to in_progress and hands it to the pool.
// Returns false when the task lost a race with cancellation or the pool
// rejected it outright; pool rejection is counted as a failed attempt.
func (c *Coordinator) startTask(ctx context.Context, s *session, task *models.Task, completionCh chan worker.Outcome) bool {
	if err := s.graph.Transition(task.ID, models.TaskStatusInProgress, ""); err != nil {
		c.logger.Log("[dispatch] task %s skipped: %v", task.ID, err)
		return false
	}
	c.aggregator.Transition(s.model.ID, task, models.TaskStatusPending)
	c.bus.Register(task.ID)

	c.emit(Event{
		Type:       EventTaskStarted,
		SessionID:  s.model.ID,
		TaskID:     task.ID,
		WorkerType: task.WorkerType,
		Message:    task.Description,
	})
	c.emitProgress(s.model.ID)

	outcomeCh, err := c.pool.Execute(ctx, task)
	if err != nil {
		// Counts as an attempt; the loop's retry path decides what next.
		completionCh <- worker.Outcome{TaskID: task.ID, Err: err}
		return true
	}

	go func() {
		completionCh <- <-outcomeCh
	}()
	return true
}

// applyOutcome folds one execution result into the graph: completion,
// retry, or terminal failure. Status updates always land before the
// caller recomputes readiness.
func (c *Coordinator) applyOutcome(s *session, outcome worker.Outcome) {
	task := s.graph.Task(outcome.TaskID)
	if task == nil || s.graph.Status(outcome.TaskID) != models.TaskStatusInProgress {
		// Cancellation already settled this task.
		return
	}

	if outcome.Success {
		if err := s.graph.Transition(task.ID, models.TaskStatusCompleted, ""); err != nil {
			c.logger.Log("[outcome] task %s: %v", task.ID, err)
			return
		}
		task.Result = outcome.Output
		c.bus.Unregister(task.ID)
		c.aggregator.Transition(s.model.ID, task, models.TaskStatusInProgress)
		c.recordTask(s, task)
		c.emit(Event{
			Type:       EventTaskCompleted,
			SessionID:  s.model.ID,
			TaskID:     task.ID,
			WorkerType: task.WorkerType,
		})
		c.emitProgress(s.model.ID)
		return
	}

	errMsg := "execution failed"
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}

	if task.RetryCount < s.model.MaxRetries && !s.cancelled() {
		if err := s.graph.ResetForRetry(task.ID); err != nil {
			c.logger.Log("[outcome] retry reset for task %s: %v", task.ID, err)
			return
		}
		c.bus.Unregister(task.ID)
		c.aggregator.Transition(s.model.ID, task, models.TaskStatusInProgress)
		c.emit(Event{
			Type:       EventTaskRetrying,
			SessionID:  s.model.ID,
			TaskID:     task.ID,
			WorkerType: task.WorkerType,
			Message:    fmt.Sprintf("attempt %d of %d", task.RetryCount+1, s.model.MaxRetries+1),
			Error:      errMsg,
		})
		return
	}

	if err := s.graph.Transition(task.ID, models.TaskStatusFailed, errMsg); err != nil {
		c.logger.Log("[outcome] task %s: %v", task.ID, err)
		return
	}
	c.bus.Unregister(task.ID)
	c.aggregator.Transition(s.model.ID, task, models.TaskStatusInProgress)
	c.recordTask(s, task)
	c.emit(Event{
		Type:       EventTaskFailed,
		SessionID:  s.model.ID,
		TaskID:     task.ID,
		WorkerType: task.WorkerType,
		Error:      errMsg,
	})
	c.emitProgress(s.model.ID)
}

// noteQueued announces a task's entry into the ready set, once.
func (c *Coordinator) noteQueued(s *session, task *models.Task) {
	if s.queued[task.ID] {
		return
	}
	s.queued[task.ID] = true
	c.emit(Event{
		Type:       EventTaskQueued,
		SessionID:  s.model.ID,
		TaskID:     task.ID,
		WorkerType: task.WorkerType,
	})
}

// noteBlocked folds a task the graph just marked blocked into progress
// and the event stream.
func (c *Coordinator) noteBlocked(s *session, task *models.Task) {
	c.aggregator.Transition(s.model.ID, task, models.TaskStatusPending)
	c.recordTask(s, task)
	c.emit(Event{
		Type:       EventTaskBlocked,
		SessionID:  s.model.ID,
		TaskID:     task.ID,
		WorkerType: task.WorkerType,
		Message:    task.BlockedReason,
	})
	c.emitProgress(s.model.ID)
}

// runSequential executes tasks one at a time in topological order,
// retrying each before moving on. A terminal failure blocks dependents;
// unrelated tasks still run when ContinueOnError is set.
func (c *Coordinator) runSequential(ctx context.Context, s *session) {
	order, err := s.graph.TopologicalOrder()
	if err != nil {
		// Graph was validated at registration; this is unreachable short
		// of external mutation.
		c.logger.Log("[sequential] order: %v", err)
		return
	}

	completionCh := make(chan worker.Outcome, 1)
	for _, task := range order {
		if s.cancelled() {
			return
		}
		select {
		case <-ctx.Done():
			c.Cancel(s.model.ID)
			return
		default:
		}

		// A failure earlier in the order may have already blocked this
		// task through the readiness cascade.
		if s.graph.Status(task.ID) != models.TaskStatusPending {
			continue
		}

		c.noteQueued(s, task)
		if !c.startTask(ctx, s, task, completionCh) {
			continue
		}

	wait:
		for {
			select {
			case <-s.cancelCh:
				return
			case outcome := <-completionCh:
				c.applyOutcome(s, outcome)
				if s.graph.Status(task.ID) == models.TaskStatusPending {
					// Retry path reset the task; run it again.
					if !c.startTask(ctx, s, task, completionCh) {
						break wait
					}
					continue
				}
				break wait
			}
		}

		if s.graph.Status(task.ID) == models.TaskStatusFailed {
			_, blocked := s.graph.ReadyTasks()
			for _, b := range blocked {
				c.noteBlocked(s, b)
			}
			if !s.model.ContinueOnError {
				return
			}
		}
	}
}

// finalize settles the session's terminal status once its loop drains.
// Cancellation settles status synchronously in Cancel, so a session that
// is already terminal is left untouched.
func (c *Coordinator) finalize(s *session) {
	s.mu.Lock()
	if s.model.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	counts := s.graph.StatusCounts()
	status := models.SessionCompleted
	if counts[models.TaskStatusFailed] > 0 {
		status = models.SessionFailed
	} else if c.blockedFatal && counts[models.TaskStatusBlocked] > 0 {
		status = models.SessionFailed
	}
	s.model.Status = status
	now := time.Now()
	s.model.CompletedAt = &now
	s.mu.Unlock()

	stage := "completed"
	if status == models.SessionFailed {
		stage = "failed"
	}
	c.aggregator.SetStage(s.model.ID, stage)
	c.finishRecord(s)

	c.emit(Event{
		Type:      EventOrchestrationCompleted,
		SessionID: s.model.ID,
		Message: fmt.Sprintf("%d completed, %d failed, %d blocked",
			counts[models.TaskStatusCompleted],
			counts[models.TaskStatusFailed],
			counts[models.TaskStatusBlocked]),
	})
	c.emitProgress(s.model.ID)
}
