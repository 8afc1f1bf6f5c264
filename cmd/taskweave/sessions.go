package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/state"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "Show orchestration history",
	Long: `List past orchestration sessions from the project database.

With a session id argument, shows the recorded task outcomes of that
session instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum sessions to list (0: all)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No session history. Run 'taskweave run <goal>' first.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return showSessionTasks(db, args[0])
	}
	return listSessions(db)
}

func listSessions(db *state.DB) error {
	sessions, err := db.ListSessions(sessionsLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	for _, s := range sessions {
		duration := ""
		if s.FinishedAt != nil {
			duration = s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %-10s %-10s %3d tasks  %s  %s\n",
			color.CyanString(s.ID),
			s.Mode,
			statusColor(s.Status),
			s.TaskCount,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			duration)
	}
	return nil
}

func showSessionTasks(db *state.DB, sessionID string) error {
	session, err := db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	fmt.Printf("session %s (%s, %s)\n", color.CyanString(session.ID), session.Mode, statusColor(session.Status))

	tasks, err := db.SessionTasks(sessionID)
	if err != nil {
		return fmt.Errorf("session tasks: %w", err)
	}
	for _, t := range tasks {
		line := fmt.Sprintf("  %-24s %-10s %s", t.TaskID, t.WorkerType, statusColor(t.Status))
		if t.Retries > 0 {
			line += fmt.Sprintf("  (%d retries)", t.Retries)
		}
		if t.Error != "" {
			line += "  " + color.RedString(t.Error)
		}
		fmt.Println(line)
	}
	return nil
}

// statusColor renders a status string in its conventional color.
func statusColor(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "cancelled", "blocked":
		return color.YellowString(status)
	default:
		return status
	}
}
