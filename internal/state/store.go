package state

import (
	"database/sql"
	"fmt"
	"io"
	"time"
)

// SessionRecord is one orchestration run in the history store.
type SessionRecord struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	TaskCount  int        `json:"task_count"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// TaskRecord is one terminal task outcome within a session.
type TaskRecord struct {
	SessionID  string    `json:"session_id"`
	TaskID     string    `json:"task_id"`
	WorkerType string    `json:"worker_type"`
	Status     string    `json:"status"`
	Error      string    `json:"error"`
	Retries    int       `json:"retries"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store is the persistence contract the coordinator writes through.
// Implementations must tolerate concurrent calls.
type Store interface {
	// CreateSession records a newly registered session.
	CreateSession(rec *SessionRecord) error
	// FinishSession stamps a session's terminal status.
	FinishSession(id, status string, finishedAt time.Time) error
	// GetSession retrieves a session by id; nil, nil when absent.
	GetSession(id string) (*SessionRecord, error)
	// ListSessions returns sessions newest-first, up to limit (<=0: all).
	ListSessions(limit int) ([]*SessionRecord, error)
	// RecordTask upserts one terminal task outcome.
	RecordTask(rec *TaskRecord) error
	// SessionTasks returns a session's recorded outcomes.
	SessionTasks(sessionID string) ([]*TaskRecord, error)

	io.Closer
}

// Compile-time check that DB satisfies the Store contract.
var _ Store = (*DB)(nil)

// CreateSession inserts a new session row.
func (db *DB) CreateSession(rec *SessionRecord) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, mode, status, task_count, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Mode, rec.Status, rec.TaskCount, formatTime(rec.StartedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FinishSession records the terminal status of a session.
func (db *DB) FinishSession(id, status string, finishedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE sessions SET status = ?, finished_at = ? WHERE id = ?
	`, status, formatTime(finishedAt), id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(`
		SELECT id, mode, status, task_count, started_at, finished_at
		FROM sessions WHERE id = ?
	`, id)

	rec, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns sessions ordered newest-first.
func (db *DB) ListSessions(limit int) ([]*SessionRecord, error) {
	query := `
		SELECT id, mode, status, task_count, started_at, finished_at
		FROM sessions ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanSession maps one sessions row into a SessionRecord.
func scanSession(scan func(dest ...any) error) (*SessionRecord, error) {
	var rec SessionRecord
	var startedAt string
	var finishedAt sql.NullString
	if err := scan(&rec.ID, &rec.Mode, &rec.Status, &rec.TaskCount, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.StartedAt, _ = parseTime(startedAt)
	rec.FinishedAt = parseNullableTime(finishedAt)
	return &rec, nil
}

// RecordTask upserts one task outcome. Cancellation can settle a task
// that was already recorded, hence the replace.
func (db *DB) RecordTask(rec *TaskRecord) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO task_history
			(session_id, task_id, worker_type, status, error, retries, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.TaskID, rec.WorkerType, rec.Status, rec.Error, rec.Retries, formatTime(rec.FinishedAt))
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// SessionTasks returns the recorded outcomes for a session, by task id.
func (db *DB) SessionTasks(sessionID string) ([]*TaskRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, task_id, worker_type, status, error, retries, finished_at
		FROM task_history WHERE session_id = ? ORDER BY task_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session tasks: %w", err)
	}
	defer rows.Close()

	var out []*TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var finishedAt sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.TaskID, &rec.WorkerType, &rec.Status, &rec.Error, &rec.Retries, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t := parseNullableTime(finishedAt); t != nil {
			rec.FinishedAt = *t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
