package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordTask saves the outcome of a task. Recording the same (RunID, Seq)
// again replaces the earlier outcome.
func (s *SQLiteStore) RecordTask(ctx context.Context, task TaskRun) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, task.RunID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("run %q not found", task.RunID)
	}
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_runs (run_id, seq, title, command, status, exit_code, attempts, error, started_at, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			title = excluded.title,
			command = excluded.command,
			status = excluded.status,
			exit_code = excluded.exit_code,
			attempts = excluded.attempts,
			error = excluded.error,
			started_at = excluded.started_at,
			duration = excluded.duration
	`, task.RunID, task.Seq, task.Title, task.Command, task.Status, task.ExitCode, task.Attempts, task.Error,
		unixNano(task.StartedAt), int64(task.Duration))
	if err != nil {
		return fmt.Errorf("failed to upsert task run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTaskRuns returns the task outcomes of a run in registration order.
// Returns empty slice (not nil) if none were recorded.
func (s *SQLiteStore) ListTaskRuns(ctx context.Context, runID string) ([]TaskRun, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, title, command, status, exit_code, attempts, error, started_at, duration
		FROM task_runs
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	tasks := []TaskRun{}
	for rows.Next() {
		var (
			tr       TaskRun
			started  sql.NullInt64
			duration int64
		)
		if err := rows.Scan(&tr.RunID, &tr.Seq, &tr.Title, &tr.Command, &tr.Status, &tr.ExitCode, &tr.Attempts, &tr.Error, &started, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.StartedAt = fromUnixNano(started)
		tr.Duration = time.Duration(duration)
		tasks = append(tasks, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}
	return tasks, nil
}
