package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskweave",
	Short: "Task-graph orchestration engine",
	Long: `Taskweave executes dependency graphs of tasks across a pool of
typed workers.

A goal is broken into tasks by a reasoning service (or read from a
tasks file), normalized into a validated dependency graph, and executed
under one of three dispatch policies:

  sequential: one task at a time, in topological order
  parallel:   every ready task at once
  adaptive:   ready tasks bounded by per-worker-type capacity

Failed tasks are retried, their dependents blocked, and progress is
streamed as the graph drains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}
