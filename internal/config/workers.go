package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/taskweave/internal/distribute"
)

// WorkerDef describes one worker type loaded from the definitions file.
type WorkerDef struct {
	// Type is the worker role name tasks reference.
	Type string `yaml:"type"`
	// Capacity is the maximum concurrent tasks of this type.
	Capacity int `yaml:"capacity"`
	// Description tells the reasoning service what this worker is for.
	Description string `yaml:"description,omitempty"`
}

// workerDefsFile is the worker definitions YAML file structure.
type workerDefsFile struct {
	Workers []WorkerDef `yaml:"workers"`
}

// DefaultWorkerDefs returns the built-in worker catalog used when no
// definitions file is configured.
func DefaultWorkerDefs() []WorkerDef {
	return []WorkerDef{
		{Type: "generalist", Capacity: 2, Description: "handles any task without a specialist"},
		{Type: "builder", Capacity: 2, Description: "implements code changes"},
		{Type: "reviewer", Capacity: 1, Description: "reviews and validates finished work"},
	}
}

// LoadWorkerDefs reads a worker definitions YAML file.
func LoadWorkerDefs(path string) ([]WorkerDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker definitions: %w", err)
	}

	var file workerDefsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse worker definitions: %w", err)
	}

	for i, def := range file.Workers {
		if def.Type == "" {
			return nil, fmt.Errorf("worker definition %d missing type", i)
		}
		if def.Capacity < 0 {
			return nil, fmt.Errorf("worker %s: negative capacity", def.Type)
		}
	}
	return file.Workers, nil
}

// Capacities projects worker definitions into the per-type capacity map
// the pool consumes. Definitions with zero capacity fall back to def.
func Capacities(defs []WorkerDef, fallback int) map[string]int {
	out := make(map[string]int, len(defs))
	for _, d := range defs {
		n := d.Capacity
		if n == 0 {
			n = fallback
		}
		out[d.Type] = n
	}
	return out
}

// tasksFile is the on-disk task list structure.
type tasksFile struct {
	Tasks []distribute.Candidate `yaml:"tasks"`
}

// LoadTasksFile reads a YAML task list into distributor candidates,
// letting users orchestrate a hand-written graph without the reasoning
// service.
func LoadTasksFile(path string) ([]distribute.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var file tasksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("tasks file %s contains no tasks", path)
	}
	return file.Tasks, nil
}
