package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/coordinator"
	"github.com/ShayCichocki/taskweave/internal/distribute"
	"github.com/ShayCichocki/taskweave/internal/reason"
	"github.com/ShayCichocki/taskweave/internal/signal"
	"github.com/ShayCichocki/taskweave/internal/state"
	"github.com/ShayCichocki/taskweave/internal/worker"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	runMode            string
	runTasksFile       string
	runMaxRetries      int
	runConcurrency     int
	runContinueOnError bool
	runNoHistory       bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Orchestrate a goal or a tasks file",
	Long: `Run a goal through the orchestration engine.

With a goal argument, the reasoning service decomposes it into tasks.
With --tasks, a hand-written YAML task list is executed instead and no
reasoning service is needed.

Dispatch modes (--mode):
  sequential: one task at a time, in topological order
  parallel:   every ready task at once
  adaptive:   ready tasks bounded by per-worker-type capacity (default)

While a session runs, dropping a file named "cancel" into
.taskweave/signals cancels it, same as Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOrchestration,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Dispatch mode: sequential, parallel, or adaptive")
	runCmd.Flags().StringVar(&runTasksFile, "tasks", "", "YAML task list to execute instead of decomposing a goal")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "Retries per failed task (-1: use config)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", -1, "Concurrent task cap in parallel mode, 0 for unbounded (-1: use config)")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "Sequential mode: keep running tasks unrelated to a failure")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Skip writing session history to the project database")
}

func runOrchestration(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mode := models.SessionMode(runMode)
	if runMode == "" {
		mode = models.SessionMode(cfg.Defaults.Mode)
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q (want sequential, parallel, or adaptive)", mode)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defs, err := loadWorkerDefs(cfg)
	if err != nil {
		return err
	}
	capacities := config.Capacities(defs, cfg.Workers.DefaultCapacity)

	candidates, err := gatherCandidates(ctx, cfg, defs, args)
	if err != nil {
		return err
	}

	pool := worker.NewLocalPool(capacities)

	logger, err := coordinator.NewDebugLogger(cfg.Debug.LogPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	opts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithContinueOnError(runContinueOnError || cfg.Defaults.ContinueOnError),
	}
	if runMaxRetries >= 0 {
		opts = append(opts, coordinator.WithMaxRetries(runMaxRetries))
	} else {
		opts = append(opts, coordinator.WithMaxRetries(cfg.Defaults.MaxRetries))
	}
	if runConcurrency >= 0 {
		opts = append(opts, coordinator.WithConcurrencyLimit(runConcurrency))
	} else {
		opts = append(opts, coordinator.WithConcurrencyLimit(cfg.Defaults.ConcurrencyLimit))
	}

	if !runNoHistory {
		db, err := state.OpenProject(cwd)
		if err == nil {
			if err := db.Migrate(); err == nil {
				opts = append(opts, coordinator.WithStateStore(db))
				defer db.Close()
			} else {
				fmt.Fprintf(os.Stderr, "warning: session history disabled: %v\n", err)
				db.Close()
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: session history disabled: %v\n", err)
		}
	}

	c := coordinator.New(pool, opts...)
	// The session is terminal by the time renderEvents returns.
	defer c.Close()

	watcher, err := signal.NewWatcher(cwd)
	if err == nil {
		watcher.Clear()
		defer watcher.Close()
	}

	sessionID, err := c.Orchestrate(ctx, candidates, mode)
	if err != nil {
		return fmt.Errorf("orchestrate: %w", err)
	}
	fmt.Printf("session %s started (%s mode, %d tasks)\n", color.CyanString(sessionID), mode, len(c.Tasks(sessionID)))

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)

	renderEvents(c, sessionID, watcher, sigCh)

	return printSummary(c, sessionID)
}

// loadWorkerDefs reads the configured worker catalog, falling back to the
// built-in one.
func loadWorkerDefs(cfg *config.Config) ([]config.WorkerDef, error) {
	if cfg.Workers.Definitions == "" {
		return config.DefaultWorkerDefs(), nil
	}
	defs, err := config.LoadWorkerDefs(cfg.Workers.Definitions)
	if err != nil {
		return nil, fmt.Errorf("load worker definitions: %w", err)
	}
	return defs, nil
}

// gatherCandidates produces the raw task list, either from a tasks file
// or by decomposing the goal through the reasoning service.
func gatherCandidates(ctx context.Context, cfg *config.Config, defs []config.WorkerDef, args []string) ([]distribute.Candidate, error) {
	if runTasksFile != "" {
		return config.LoadTasksFile(runTasksFile)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("provide a goal argument or --tasks <file>")
	}

	client, err := reason.NewClient(reason.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning client: %w", err)
	}

	workerTypes := make([]string, 0, len(defs))
	for _, def := range defs {
		workerTypes = append(workerTypes, def.Type)
	}

	decomposeCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Decompose)
	defer cancel()

	fmt.Println("decomposing goal...")
	candidates, err := reason.NewDecomposer(client).Decompose(decomposeCtx, args[0], workerTypes)
	if err != nil {
		return nil, err
	}
	fmt.Printf("proposed %d tasks\n", len(candidates))
	return candidates, nil
}

// renderEvents prints lifecycle events until the session's loop exits,
// translating OS signals and signal files into cancellation.
func renderEvents(c *coordinator.Coordinator, sessionID string, watcher *signal.Watcher, sigCh <-chan os.Signal) {
	done := c.Wait(sessionID)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.Events():
			printEvent(ev)
		case <-sigCh:
			fmt.Println(color.YellowString("\ninterrupt received, cancelling session..."))
			c.Cancel(sessionID)
		case <-ticker.C:
			if watcher != nil && watcher.Cancelled() {
				fmt.Println(color.YellowString("cancel signal received, cancelling session..."))
				c.Cancel(sessionID)
			}
		case <-done:
			// Drain whatever the emitter already queued.
			for {
				select {
				case ev := <-c.Events():
					printEvent(ev)
				default:
					return
				}
			}
		}
	}
}

// printEvent renders one lifecycle event.
func printEvent(ev coordinator.Event) {
	switch ev.Type {
	case coordinator.EventTaskStarted:
		fmt.Printf("%s %s [%s]\n", color.CyanString("▶"), ev.TaskID, ev.WorkerType)
	case coordinator.EventTaskCompleted:
		fmt.Printf("%s %s\n", color.GreenString("✓"), ev.TaskID)
	case coordinator.EventTaskRetrying:
		fmt.Printf("%s %s (%s): %s\n", color.YellowString("↻"), ev.TaskID, ev.Message, ev.Error)
	case coordinator.EventTaskFailed:
		fmt.Printf("%s %s: %s\n", color.RedString("✗"), ev.TaskID, ev.Error)
	case coordinator.EventTaskBlocked:
		fmt.Printf("%s %s (%s)\n", color.YellowString("⊘"), ev.TaskID, ev.Message)
	case coordinator.EventProgressUpdated:
		if ev.Snapshot != nil {
			fmt.Printf("  %d/%d done\n", ev.Snapshot.Completed+ev.Snapshot.Failed+ev.Snapshot.Blocked, ev.Snapshot.Total)
		}
	case coordinator.EventOrchestrationCancelled:
		fmt.Println(color.YellowString("orchestration cancelled"))
	case coordinator.EventOrchestrationCompleted:
		fmt.Printf("orchestration finished: %s\n", ev.Message)
	}
}

// printSummary renders the terminal snapshot and maps the session outcome
// to the process exit status.
func printSummary(c *coordinator.Coordinator, sessionID string) error {
	snap := c.Status(sessionID)
	session := c.Session(sessionID)
	if snap == nil || session == nil {
		return fmt.Errorf("session %s vanished", sessionID)
	}

	fmt.Println()
	fmt.Printf("session %s: %s\n", sessionID, session.Status)
	fmt.Printf("  completed: %s\n", color.GreenString("%d", snap.Completed))
	if snap.Failed > 0 {
		fmt.Printf("  failed:    %s\n", color.RedString("%d", snap.Failed))
	}
	if snap.Blocked > 0 {
		fmt.Printf("  blocked:   %s\n", color.YellowString("%d", snap.Blocked))
	}
	for _, ft := range snap.FailedTasks {
		fmt.Printf("    %s %s: %s\n", color.RedString("-"), ft.ID, ft.Error)
	}

	switch session.Status {
	case models.SessionCompleted:
		return nil
	case models.SessionCancelled:
		return fmt.Errorf("session cancelled")
	default:
		return fmt.Errorf("session failed: %d failed, %d blocked", snap.Failed, snap.Blocked)
	}
}
