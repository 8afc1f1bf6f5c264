// Package graph provides the dependency graph over tasks: validation,
// readiness computation, and topological ordering.
package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// TaskGraph is a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
// The edge set is fixed after Build; only task status mutates afterward,
// and only through Transition.
type TaskGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order records insertion order for deterministic tie-breaking.
	order []string
	// edges maps task ID to IDs of required dependencies.
	edges map[string][]string
	// optional maps task ID to IDs of optional dependencies.
	optional map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty task graph.
func New() *TaskGraph {
	return &TaskGraph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		optional: make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *TaskGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a slice of tasks.
// Returns an *UnknownDependencyError if a dependency references a task not
// in the slice, or a *CycleError if the dependency relation is cyclic.
func (g *TaskGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if task.Status == "" {
			task.Status = models.TaskStatusPending
		}
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from dependency fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return &UnknownDependencyError{TaskID: task.ID, MissingDepID: depID}
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
		for _, depID := range task.OptionalDeps {
			if _, exists := g.nodes[depID]; !exists {
				return &UnknownDependencyError{TaskID: task.ID, MissingDepID: depID}
			}
			g.optional[task.ID] = append(g.optional[task.ID], depID)
		}
	}

	if err := g.validateAcyclicLocked(); err != nil {
		return err
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// Validate re-checks the structural invariants of the graph.
func (g *TaskGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, deps := range g.edges {
		for _, depID := range deps {
			if _, exists := g.nodes[depID]; !exists {
				return &UnknownDependencyError{TaskID: id, MissingDepID: depID}
			}
		}
	}
	return g.validateAcyclicLocked()
}

// validateAcyclicLocked proves the graph acyclic with Kahn's algorithm.
// On failure the undrained ids are the cycle participants (and anything
// downstream of them). Caller must hold the lock.
func (g *TaskGraph) validateAcyclicLocked() error {
	drained := 0
	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.edges[id]) + len(g.optional[id])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, id := range g.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		drained++
		for _, dependent := range g.dependentsLocked(id) {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if drained == len(g.nodes) {
		return nil
	}

	var involved []string
	for _, id := range g.order {
		if indeg[id] > 0 {
			involved = append(involved, id)
		}
	}
	return &CycleError{InvolvedIDs: involved}
}

// ReadyTasks returns pending tasks whose every required dependency has
// completed and whose every optional dependency has reached a terminal state.
// A pending task with a failed or blocked required dependency is marked
// blocked instead of being returned; blocking cascades transitively within
// a single call, and every task blocked by this call is returned in the
// second slice. Called only from the coordinator's event loop, which is
// the single writer of task status.
func (g *TaskGraph) ReadyTasks() (ready, blocked []*models.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		ready = ready[:0]
		blockedAny := false

		for _, id := range g.order {
			task := g.nodes[id]
			if task.Status != models.TaskStatusPending {
				continue
			}

			blockedBy := ""
			satisfied := true
			for _, depID := range g.edges[id] {
				dep := g.nodes[depID]
				switch dep.Status {
				case models.TaskStatusCompleted:
					// satisfied
				case models.TaskStatusFailed, models.TaskStatusBlocked:
					blockedBy = depID
					satisfied = false
				default:
					satisfied = false
				}
				if !satisfied {
					break
				}
			}

			if blockedBy != "" {
				g.blockLocked(task, blockedBy)
				blocked = append(blocked, task)
				blockedAny = true
				continue
			}
			if !satisfied {
				continue
			}

			for _, depID := range g.optional[id] {
				if !g.nodes[depID].Status.Terminal() {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, task)
			}
		}

		// A newly blocked task can block its own dependents; rescan
		// until the cascade settles.
		if !blockedAny {
			break
		}
	}

	g.debugLog("[graph.ReadyTasks] %d tasks ready, %d newly blocked", len(ready), len(blocked))
	return ready, blocked
}

// blockLocked marks a pending task blocked. Caller must hold the lock.
func (g *TaskGraph) blockLocked(task *models.Task, failedDepID string) {
	task.Status = models.TaskStatusBlocked
	task.BlockedReason = "dependency_failed:" + failedDepID
	now := time.Now()
	task.CompletedAt = &now
	g.debugLog("[graph] task %s blocked (depends on failed task %s)", task.ID, failedDepID)
}

// Transition applies a status change to a task, enforcing monotonicity.
// It is the only mutation path for task status after Build.
func (g *TaskGraph) Transition(taskID string, next models.TaskStatus, errMsg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("invalid transition for task %s: %s -> %s", taskID, task.Status, next)
	}

	g.debugLog("[graph.Transition] task %s: %s -> %s", taskID, task.Status, next)
	task.Status = next
	if errMsg != "" {
		task.Error = errMsg
	}
	if next.Terminal() {
		now := time.Now()
		task.CompletedAt = &now
	}
	return nil
}

// Settle applies a transition like Transition but also reports the status
// the task actually held, read and replaced under a single lock
// acquisition. Cancellation uses this to fold the true prior status into
// progress when the run loop moves a task between the caller's scan and
// the transition.
func (g *TaskGraph) Settle(taskID string, next models.TaskStatus, errMsg string) (models.TaskStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return "", fmt.Errorf("unknown task %s", taskID)
	}
	from := task.Status
	if !from.CanTransition(next) {
		return from, fmt.Errorf("invalid transition for task %s: %s -> %s", taskID, from, next)
	}

	g.debugLog("[graph.Settle] task %s: %s -> %s", taskID, from, next)
	task.Status = next
	if errMsg != "" {
		task.Error = errMsg
	}
	if next.Terminal() {
		now := time.Now()
		task.CompletedAt = &now
	}
	return from, nil
}

// ResetForRetry returns a failed-attempt task to pending without touching
// its terminal bookkeeping. Used by the coordinator's retry path before the
// task is terminally failed.
func (g *TaskGraph) ResetForRetry(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("task %s not in progress, cannot retry", taskID)
	}
	task.Status = models.TaskStatusPending
	task.RetryCount++
	return nil
}

// TopologicalOrder returns every task in an order where all dependencies
// come before the tasks that depend on them. Ties among
// simultaneously-ready tasks break by (priority ascending, insertion order)
// for determinism.
func (g *TaskGraph) TopologicalOrder() ([]*models.Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.edges[id]) + len(g.optional[id])
	}
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var frontier []string
	for _, id := range g.order {
		if indeg[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	result := make([]*models.Task, 0, len(g.nodes))
	for len(frontier) > 0 {
		sort.SliceStable(frontier, func(i, j int) bool {
			a, b := g.nodes[frontier[i]], g.nodes[frontier[j]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return position[a.ID] < position[b.ID]
		})

		id := frontier[0]
		frontier = frontier[1:]
		result = append(result, g.nodes[id])

		for _, dependent := range g.dependentsLocked(id) {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				frontier = append(frontier, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var involved []string
		for _, id := range g.order {
			if indeg[id] > 0 {
				involved = append(involved, id)
			}
		}
		return nil, &CycleError{InvolvedIDs: involved}
	}
	return result, nil
}

// Task returns the task for a given ID, or nil if not found.
func (g *TaskGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Status returns the task's current status read under the graph lock, or
// the empty status for unknown ids. Callers outside the owning run loop
// must use this instead of reading Task().Status directly.
func (g *TaskGraph) Status(taskID string) models.TaskStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task := g.nodes[taskID]
	if task == nil {
		return ""
	}
	return task.Status
}

// Unsettled returns the tasks that are still pending or in progress, in
// insertion order, with statuses read under the graph lock.
func (g *TaskGraph) Unsettled() (pending, inProgress []*models.Task) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		task := g.nodes[id]
		switch task.Status {
		case models.TaskStatusPending:
			pending = append(pending, task)
		case models.TaskStatusInProgress:
			inProgress = append(inProgress, task)
		}
	}
	return pending, inProgress
}

// Tasks returns every task in insertion order.
func (g *TaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the required dependency ids of the given task.
func (g *TaskGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the ids of tasks that directly depend on the given
// task, required or optional.
func (g *TaskGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

// dependentsLocked walks the edge maps in insertion order. Caller must hold
// at least a read lock.
func (g *TaskGraph) dependentsLocked(taskID string) []string {
	var dependents []string
	for _, id := range g.order {
		found := false
		for _, depID := range g.edges[id] {
			if depID == taskID {
				found = true
				break
			}
		}
		if !found {
			for _, depID := range g.optional[id] {
				if depID == taskID {
					found = true
					break
				}
			}
		}
		if found {
			dependents = append(dependents, id)
		}
	}
	return dependents
}

// TransitiveDependents returns every task downstream of the given task,
// required edges only, in deterministic order.
func (g *TaskGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]bool{taskID: true}
	var out []string
	queue := []string{taskID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, depID := range g.order {
			if seen[depID] {
				continue
			}
			for _, edge := range g.edges[depID] {
				if edge == id {
					seen[depID] = true
					out = append(out, depID)
					queue = append(queue, depID)
					break
				}
			}
		}
	}
	return out
}

// StatusCounts tallies tasks by status.
func (g *TaskGraph) StatusCounts() map[models.TaskStatus]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, task := range g.nodes {
		counts[task.Status]++
	}
	return counts
}
