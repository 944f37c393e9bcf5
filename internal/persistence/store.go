// Package persistence records run history in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Task status values.
const (
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskSuppressed = "suppressed"
	TaskSkipped    = "skipped"
)

// Run is one execution of a task runner.
type Run struct {
	ID         string
	Name       string
	Status     string
	Error      string
	TaskCount  int
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// TaskRun is the outcome of one task within a run. Seq is the task's
// 1-based registration position.
type TaskRun struct {
	RunID     string
	Seq       int
	Title     string
	Command   string
	Status    string
	ExitCode  int
	Attempts  int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store defines the persistence interface for run history.
type Store interface {
	StartRun(ctx context.Context, run Run) error
	RecordTask(ctx context.Context, task TaskRun) error
	FinishRun(ctx context.Context, runID, status, errMsg string, finishedAt time.Time) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListTaskRuns(ctx context.Context, runID string) ([]TaskRun, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultPath returns the history database location under the XDG data
// home.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join("toolbelt", "history.db"))
}

// NewSQLiteStore opens the history database at dbPath, creating it and its
// parent directories if needed. Concurrent toolbelt processes share the file
// through WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	connStr := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store. History is lost on Close.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, ":memory:")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Pragmas are per connection; one connection keeps them, and an
	// in-memory database, in effect for every query.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
