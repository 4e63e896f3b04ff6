package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mediasync/internal/config"
)

// Registry is the persistent task queue. Tasks are keyed by
// (kind, target, args); enqueueing an existing key replaces the pending row,
// so repeated reconciliation converges to at most one pending task per key.
type Registry struct {
	db   *sql.DB
	path string

	maxAttempts  int
	retryBackoff time.Duration
}

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Registry, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	registry := &Registry{
		db:           db,
		path:         dbPath,
		maxAttempts:  cfg.Workflow.TaskMaxAttempts,
		retryBackoff: time.Duration(cfg.Workflow.TaskRetryBackoff) * time.Second,
	}
	if registry.maxAttempts < 1 {
		registry.maxAttempts = 1
	}
	if err := registry.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return registry, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the task database location.
func (r *Registry) Path() string {
	return r.path
}

// Enqueue schedules a task, replacing any pending task with the same
// (kind, target, args) key. Priority always comes from the kind; a running
// task with the same key is left alone.
func (r *Registry) Enqueue(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	now := time.Now().UTC()
	task.Priority = task.Kind.Priority()
	task.Status = StatusPending
	task.Attempts = 0
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = r.maxAttempts
	}
	if task.RunAt.IsZero() {
		task.RunAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE kind = ? AND target_id = ? AND args = ? AND status = ?`,
		string(task.Kind), task.TargetID.String(), task.Args, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("replace pending task: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO tasks (
            kind, target_id, args, queue, priority, status, attempts,
            max_attempts, run_at, repeat_seconds, last_error, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		string(task.Kind),
		task.TargetID.String(),
		task.Args,
		task.Queue,
		task.Priority,
		string(task.Status),
		task.Attempts,
		task.MaxAttempts,
		task.RunAt.Format(time.RFC3339Nano),
		int64(task.Repeat/time.Second),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	task.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// Cancel removes pending tasks of one kind for a target. Running tasks are
// never touched. Returns how many rows were removed.
func (r *Registry) Cancel(ctx context.Context, kind Kind, targetID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE kind = ? AND target_id = ? AND status = ?`,
		string(kind), targetID.String(), string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel tasks: %w", err)
	}
	return res.RowsAffected()
}

// CancelByTarget removes all pending tasks for a target regardless of kind.
func (r *Registry) CancelByTarget(ctx context.Context, targetID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE target_id = ? AND status = ?`,
		targetID.String(), string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel tasks by target: %w", err)
	}
	return res.RowsAffected()
}

// CancelByQueue removes all pending tasks in a queue partition.
func (r *Registry) CancelByQueue(ctx context.Context, queue string) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE queue = ? AND status = ?`,
		queue, string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel tasks by queue: %w", err)
	}
	return res.RowsAffected()
}

// ExistsPending reports whether a pending task of the given kind exists for
// a target.
func (r *Registry) ExistsPending(ctx context.Context, kind Kind, targetID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tasks WHERE kind = ? AND target_id = ? AND status = ?`,
		string(kind), targetID.String(), string(StatusPending),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check pending task: %w", err)
	}
	return count > 0, nil
}

// NextPending claims the next due task whose queue is not in busyQueues,
// marking it running. Dispatch order is priority ascending, then insertion
// order. Returns nil when nothing is due.
func (r *Registry) NextPending(ctx context.Context, busyQueues []string) (*Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? AND run_at <= ?`
	args := []any{string(StatusPending), now.Format(time.RFC3339Nano)}
	if len(busyQueues) > 0 {
		query += ` AND queue NOT IN (?` + strings.Repeat(", ?", len(busyQueues)-1) + `)`
		for _, queue := range busyQueues {
			args = append(args, queue)
		}
	}
	query += ` ORDER BY priority ASC, id ASC LIMIT 1`

	task, err := scanTask(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	task.Status = StatusRunning
	task.Attempts++
	task.UpdatedAt = now
	_, err = tx.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		string(StatusRunning), task.Attempts, now.Format(time.RFC3339Nano), task.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return task, nil
}

// Complete marks a running task succeeded. Repeating tasks are rescheduled
// as a fresh pending row instead.
func (r *Registry) Complete(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	now := time.Now().UTC()
	if task.Repeat > 0 {
		task.Status = StatusPending
		task.Attempts = 0
		task.RunAt = now.Add(task.Repeat)
		task.UpdatedAt = now
		_, err := r.db.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, attempts = 0, run_at = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
			string(StatusPending), task.RunAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), task.ID,
		)
		if err != nil {
			return fmt.Errorf("reschedule task: %w", err)
		}
		return nil
	}

	task.Status = StatusSucceeded
	task.UpdatedAt = now
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		string(StatusSucceeded), now.Format(time.RFC3339Nano), task.ID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail records a task failure. Tasks with attempts remaining go back to
// pending with a linear backoff; exhausted tasks become failed. Returns
// whether the failure is permanent.
func (r *Registry) Fail(ctx context.Context, task *Task, taskErr error) (bool, error) {
	if task == nil {
		return false, errors.New("task is nil")
	}
	now := time.Now().UTC()
	message := ""
	if taskErr != nil {
		message = taskErr.Error()
	}
	task.LastError = message
	task.UpdatedAt = now

	if task.Attempts >= task.MaxAttempts {
		task.Status = StatusFailed
		_, err := r.db.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(StatusFailed), nullableString(message), now.Format(time.RFC3339Nano), task.ID,
		)
		if err != nil {
			return false, fmt.Errorf("mark task failed: %w", err)
		}
		return true, nil
	}

	task.Status = StatusPending
	task.RunAt = now.Add(r.retryBackoff * time.Duration(task.Attempts))
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(StatusPending), task.RunAt.Format(time.RFC3339Nano), nullableString(message),
		now.Format(time.RFC3339Nano), task.ID,
	)
	if err != nil {
		return false, fmt.Errorf("reschedule failed task: %w", err)
	}
	return false, nil
}

// Get fetches a task by identifier. Returns nil when missing.
func (r *Registry) Get(ctx context.Context, id int64) (*Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks, optionally filtered by status, ordered by dispatch
// order within status.
func (r *Registry) List(ctx context.Context, status Status) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var list []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, task)
	}
	return list, rows.Err()
}

// Stats returns the number of tasks per status.
func (r *Registry) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// ResetRunning returns any running tasks to pending. Called once at daemon
// startup to recover tasks orphaned by an unclean shutdown.
func (r *Registry) ResetRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPending), now.Format(time.RFC3339Nano), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = `id, kind, target_id, args, queue, priority, status,
    attempts, max_attempts, run_at, repeat_seconds, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task      Task
		kind      string
		targetID  string
		status    string
		runAt     string
		repeat    int64
		lastError sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&task.ID, &kind, &targetID, &task.Args, &task.Queue, &task.Priority,
		&status, &task.Attempts, &task.MaxAttempts, &runAt, &repeat,
		&lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = Kind(kind)
	task.TargetID, err = uuid.Parse(targetID)
	if err != nil {
		return nil, fmt.Errorf("parse task target id: %w", err)
	}
	task.Status = Status(status)
	task.RunAt = parseTimeString(runAt)
	task.Repeat = time.Duration(repeat) * time.Second
	task.LastError = lastError.String
	task.CreatedAt = parseTimeString(createdAt)
	task.UpdatedAt = parseTimeString(updatedAt)
	return &task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
