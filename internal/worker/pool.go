// Package worker defines the execution collaborator contract consumed by
// the coordinator, plus a local in-process pool for the CLI and tests.
package worker

import (
	"context"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Outcome is the result of one task execution attempt, reported
// asynchronously on the channel returned by Execute.
type Outcome struct {
	// TaskID identifies the task the outcome belongs to.
	TaskID string
	// Success is true when the execution completed without error.
	Success bool
	// Output is the worker's artifact, if any.
	Output string
	// Err carries the failure cause when Success is false.
	Err error
}

// Pool is the abstract execution capability the coordinator drives. The
// engine never runs tasks itself; it initiates executions here and reacts
// to the outcomes.
type Pool interface {
	// Execute starts one execution attempt and returns immediately. The
	// outcome arrives later on the returned channel, exactly once. An
	// error return means the attempt could not be initiated at all.
	Execute(ctx context.Context, task *models.Task) (<-chan Outcome, error)

	// Abort asks the pool to stop an in-flight execution. Actual
	// termination is the pool's responsibility; the coordinator does not
	// wait for it.
	Abort(taskID string)

	// AvailableCapacity reports how many additional concurrent executions
	// of the worker type are currently supportable. Adaptive mode queries
	// this before dispatch.
	AvailableCapacity(workerType string) int

	// WorkerTypes lists the worker roles this pool can execute.
	WorkerTypes() []string
}
