package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// RunFunc performs one task execution attempt. It should honor ctx
// cancellation and return the worker's output artifact.
type RunFunc func(ctx context.Context, task *models.Task) (string, error)

// DefaultCapacity bounds worker types with no explicit capacity entry.
const DefaultCapacity = 2

// LocalPool is an in-process Pool. It does not interpret task content; it
// hands each task to a pluggable run function, by default a simulation
// scaled down from the task's duration estimate.
type LocalPool struct {
	run      RunFunc
	capacity map[string]int

	mu      sync.Mutex
	running map[string]struct{ workerType string }
	cancels map[string]context.CancelFunc
}

// LocalOption configures a LocalPool.
type LocalOption func(*LocalPool)

// WithRunFunc replaces the simulated execution with a real one.
func WithRunFunc(fn RunFunc) LocalOption {
	return func(p *LocalPool) {
		if fn != nil {
			p.run = fn
		}
	}
}

// NewLocalPool creates a pool with the given per-worker-type capacities.
// Types missing from the map get DefaultCapacity.
func NewLocalPool(capacity map[string]int, opts ...LocalOption) *LocalPool {
	p := &LocalPool{
		run:      simulate,
		capacity: make(map[string]int, len(capacity)),
		running:  make(map[string]struct{ workerType string }),
		cancels:  make(map[string]context.CancelFunc),
	}
	for wt, n := range capacity {
		p.capacity[wt] = n
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// simulate sleeps for a scaled-down slice of the task's estimate.
func simulate(ctx context.Context, task *models.Task) (string, error) {
	d := task.EstimatedDuration / 100
	if d < 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	if d > 2*time.Second {
		d = 2 * time.Second
	}

	select {
	case <-time.After(d):
		return fmt.Sprintf("simulated %s in %v", task.ID, d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Execute starts one attempt in a goroutine and reports the outcome on the
// returned channel.
func (p *LocalPool) Execute(ctx context.Context, task *models.Task) (<-chan Outcome, error) {
	if task == nil {
		return nil, fmt.Errorf("nil task")
	}

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if _, exists := p.running[task.ID]; exists {
		p.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("task %s already executing", task.ID)
	}
	p.running[task.ID] = struct{ workerType string }{task.WorkerType}
	p.cancels[task.ID] = cancel
	p.mu.Unlock()

	done := make(chan Outcome, 1)
	go func() {
		defer cancel()
		output, err := p.run(runCtx, task)

		p.mu.Lock()
		delete(p.running, task.ID)
		delete(p.cancels, task.ID)
		p.mu.Unlock()

		done <- Outcome{TaskID: task.ID, Success: err == nil, Output: output, Err: err}
	}()
	return done, nil
}

// Abort cancels an in-flight execution. Unknown task ids are a no-op.
func (p *LocalPool) Abort(taskID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[taskID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// AvailableCapacity reports free slots for a worker type.
func (p *LocalPool) AvailableCapacity(workerType string) int {
	limit, ok := p.capacity[workerType]
	if !ok {
		limit = DefaultCapacity
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	inUse := 0
	for _, r := range p.running {
		if r.workerType == workerType {
			inUse++
		}
	}
	if free := limit - inUse; free > 0 {
		return free
	}
	return 0
}

// WorkerTypes lists configured worker types, sorted for determinism.
func (p *LocalPool) WorkerTypes() []string {
	out := make([]string, 0, len(p.capacity))
	for wt := range p.capacity {
		out = append(out, wt)
	}
	sort.Strings(out)
	return out
}
