// Package distribute normalizes raw candidate task lists into a validated
// task graph: id deduplication, defaults, dangling-dependency pruning, and
// parallelization metrics.
package distribute

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/taskweave/internal/graph"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ErrEmptyInput indicates the candidate list was empty or nothing in it
// was usable.
var ErrEmptyInput = errors.New("decomposition produced no usable tasks")

// DefaultWorkerType is assigned to candidates that arrive without one.
const DefaultWorkerType = "generalist"

// Candidate is one raw task proposed by the external reasoning service,
// before normalization.
type Candidate struct {
	// ID is the proposed task id. Collisions are renamed deterministically.
	ID string `json:"id" yaml:"id"`
	// Description is the task content handed to the worker.
	Description string `json:"description" yaml:"description"`
	// WorkerType names the worker role; defaults to DefaultWorkerType.
	WorkerType string `json:"worker_type,omitempty" yaml:"worker_type,omitempty"`
	// DependsOn lists required dependency ids.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// OptionalDeps lists failure-tolerant dependency ids.
	OptionalDeps []string `json:"optional_deps,omitempty" yaml:"optional_deps,omitempty"`
	// Priority is the urgency hint, 1-5; 0 means unset.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
	// DurationHint is the proposed duration estimate; 0 means unset.
	DurationHint time.Duration `json:"duration_hint,omitempty" yaml:"duration_hint,omitempty"`
}

// Result reports what normalization did to the candidate list.
type Result struct {
	// Warnings lists non-fatal fixes applied (renames, dropped refs).
	Warnings []string
	// ParallelizationFactor is rootTasks / totalTasks: the fraction of
	// tasks with no dependencies at all.
	ParallelizationFactor float64
}

// EstimateFunc produces a duration estimate for a task missing a hint.
// It must be monotonic in content length; the exact formula is a
// placeholder heuristic, not a tuned constant.
type EstimateFunc func(description, workerType string) time.Duration

// DefaultEstimate scales with description length on top of a fixed floor.
func DefaultEstimate(description, workerType string) time.Duration {
	est := 30*time.Second + time.Duration(len(description))*250*time.Millisecond
	if est > 10*time.Minute {
		est = 10 * time.Minute
	}
	return est
}

// Distributor turns raw candidate lists into validated task graphs.
type Distributor struct {
	estimate EstimateFunc
	now      func() time.Time
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithEstimate replaces the duration heuristic.
func WithEstimate(fn EstimateFunc) Option {
	return func(d *Distributor) {
		if fn != nil {
			d.estimate = fn
		}
	}
}

// withClock overrides task creation timestamps in tests.
func withClock(now func() time.Time) Option {
	return func(d *Distributor) { d.now = now }
}

// New creates a Distributor with the default heuristics.
func New(opts ...Option) *Distributor {
	d := &Distributor{
		estimate: DefaultEstimate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Distribute normalizes candidates and builds a validated task graph.
// Returns ErrEmptyInput when nothing usable remains, or a graph error when
// the dependency relation is structurally invalid.
func (d *Distributor) Distribute(candidates []Candidate) (*graph.TaskGraph, *Result, error) {
	if len(candidates) == 0 {
		return nil, nil, ErrEmptyInput
	}

	result := &Result{}
	tasks := make([]*models.Task, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if c.ID == "" {
			result.Warnings = append(result.Warnings, "dropped candidate with empty id")
			continue
		}

		id := c.ID
		if seen[id] {
			id = renameCollision(c.ID, seen)
			result.Warnings = append(result.Warnings, fmt.Sprintf("duplicate id %q renamed to %q", c.ID, id))
		}
		seen[id] = true

		priority := c.Priority
		if priority < 1 || priority > 5 {
			priority = models.DefaultPriority
		}
		workerType := c.WorkerType
		if workerType == "" {
			workerType = DefaultWorkerType
		}
		duration := c.DurationHint
		if duration <= 0 {
			duration = d.estimate(c.Description, workerType)
		}

		tasks = append(tasks, &models.Task{
			ID:                id,
			Description:       c.Description,
			WorkerType:        workerType,
			DependsOn:         append([]string(nil), c.DependsOn...),
			OptionalDeps:      append([]string(nil), c.OptionalDeps...),
			Priority:          priority,
			Status:            models.TaskStatusPending,
			EstimatedDuration: duration,
			CreatedAt:         d.now(),
		})
	}

	if len(tasks) == 0 {
		return nil, nil, ErrEmptyInput
	}

	// Drop dependency references that don't survive dedup rather than
	// failing the whole decomposition.
	rootCount := 0
	for _, task := range tasks {
		task.DependsOn = pruneDangling(task.ID, task.DependsOn, seen, result)
		task.OptionalDeps = pruneDangling(task.ID, task.OptionalDeps, seen, result)
		if len(task.DependsOn) == 0 && len(task.OptionalDeps) == 0 {
			rootCount++
		}
	}
	result.ParallelizationFactor = float64(rootCount) / float64(len(tasks))

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return nil, nil, err
	}
	return g, result, nil
}

// renameCollision appends -2, -3, ... in first-seen order until the id is free.
func renameCollision(id string, seen map[string]bool) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !seen[candidate] {
			return candidate
		}
	}
}

// pruneDangling removes references to ids that don't exist, recording a warning.
func pruneDangling(taskID string, deps []string, seen map[string]bool, result *Result) []string {
	kept := deps[:0]
	for _, depID := range deps {
		if seen[depID] {
			kept = append(kept, depID)
			continue
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("task %q: dropped reference to unknown dependency %q", taskID, depID))
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
