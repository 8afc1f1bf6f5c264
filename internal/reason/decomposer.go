package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/taskweave/internal/distribute"
)

// Completer is the single capability the decomposer needs from the
// reasoning service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// proposedTask is the JSON structure the model returns for a single task.
type proposedTask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	WorkerType   string   `json:"worker_type"`
	DependsOn    []string `json:"depends_on"`
	OptionalDeps []string `json:"optional_deps"`
	Priority     int      `json:"priority"`
	DurationSecs int      `json:"duration_secs"`
}

const systemPrompt = `You are a task planner. You break a goal into small,
independently executable tasks and express their dependencies.`

const decompositionPrompt = `Break the following goal into tasks.

Goal: %s

Available worker types: %s

Respond with ONLY a JSON array. Each element:
{
  "id": "short-kebab-case-id",
  "description": "what the worker must do",
  "worker_type": "one of the available worker types",
  "depends_on": ["ids of tasks that must complete first"],
  "optional_deps": ["ids this task prefers finished but can run without"],
  "priority": 1-5 (1 = most urgent),
  "duration_secs": rough estimate in seconds
}

Prefer independent tasks over chains. Keep each task completable by one
worker in one sitting.`

// Decomposer turns a user goal into distributor candidates.
type Decomposer struct {
	completer Completer
}

// NewDecomposer creates a Decomposer backed by the given completer.
func NewDecomposer(c Completer) *Decomposer {
	return &Decomposer{completer: c}
}

// Decompose asks the reasoning service to break a goal into tasks.
// The returned candidates are raw: callers hand them to the distributor,
// which owns dedup, defaults and graph validation.
func (d *Decomposer) Decompose(ctx context.Context, goal string, workerTypes []string) ([]distribute.Candidate, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("empty goal")
	}
	if len(workerTypes) == 0 {
		workerTypes = []string{distribute.DefaultWorkerType}
	}

	prompt := fmt.Sprintf(decompositionPrompt, goal, strings.Join(workerTypes, ", "))
	response, err := d.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("decompose goal: %w", err)
	}

	candidates, err := ParseResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse decomposition response: %w", err)
	}
	return candidates, nil
}

// ParseResponse extracts the JSON task array from a model response. The
// model sometimes wraps the array in prose or markdown fences, so parsing
// starts at the first bracket and ends at the last.
func ParseResponse(response string) ([]distribute.Candidate, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no valid JSON array found in response (got %d chars): %q", len(response), preview)
	}
	jsonStr := response[jsonStart : jsonEnd+1]

	var proposed []proposedTask
	if err := json.Unmarshal([]byte(jsonStr), &proposed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}

	candidates := make([]distribute.Candidate, len(proposed))
	for i, pt := range proposed {
		candidates[i] = distribute.Candidate{
			ID:           pt.ID,
			Description:  pt.Description,
			WorkerType:   pt.WorkerType,
			DependsOn:    pt.DependsOn,
			OptionalDeps: pt.OptionalDeps,
			Priority:     pt.Priority,
			DurationHint: time.Duration(pt.DurationSecs) * time.Second,
		}
	}
	return candidates, nil
}
