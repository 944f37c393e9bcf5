package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeTaskSuppressed = "task.suppressed"
	EventTypeTaskSkipped    = "task.skipped"
	EventTypeRunStarted     = "run.started"
	EventTypeStageStarted   = "run.stage"
	EventTypeRunProgress    = "run.progress"
	EventTypeRunFinished    = "run.finished"
)

// TaskStartedEvent is published when a task begins execution.
type TaskStartedEvent struct {
	RunID     string
	ID        string
	Title     string
	Command   string // empty for in-process tasks
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task succeeds.
type TaskCompletedEvent struct {
	RunID     string
	ID        string
	Title     string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails and the failure is raised.
type TaskFailedEvent struct {
	RunID     string
	ID        string
	Title     string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSuppressedEvent is published when a task fails but its failure is
// absorbed.
type TaskSuppressedEvent struct {
	RunID     string
	ID        string
	Title     string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskSuppressedEvent) EventType() string { return EventTypeTaskSuppressed }
func (e TaskSuppressedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published for tasks that never ran because the run
// stopped early.
type TaskSkippedEvent struct {
	RunID     string
	ID        string
	Title     string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// RunStartedEvent is published once per run before the first stage.
type RunStartedEvent struct {
	RunID     string
	Name      string
	Tasks     int
	Stages    int
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) TaskID() string    { return "" }

// StageStartedEvent is published when a stage begins.
type StageStartedEvent struct {
	RunID      string
	Index      int
	Concurrent bool
	Titles     []string
	Timestamp  time.Time
}

func (e StageStartedEvent) EventType() string { return EventTypeStageStarted }
func (e StageStartedEvent) TaskID() string    { return "" }

// RunProgressEvent is published after every stage.
type RunProgressEvent struct {
	RunID      string
	Total      int
	Completed  int
	Failed     int
	Suppressed int
	Skipped    int
	Pending    int
	Timestamp  time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }

// RunFinishedEvent is published once per run after the last stage.
type RunFinishedEvent struct {
	RunID     string
	State     string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }
