// Package tui reports run progress on the terminal: an interactive view
// when attached to a TTY, plain lines otherwise.
package tui

import (
	"time"

	"github.com/aristath/toolbelt/internal/events"
)

// Status is the display state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusSuppressed
	StatusSkipped
)

// Row is one task as shown to the user.
type Row struct {
	ID       string
	Title    string
	Command  string
	Status   Status
	Attempts int
	Duration time.Duration
	Err      error
}

// Tracker folds run and task events into display state.
type Tracker struct {
	Name     string
	RunID    string
	Tasks    int
	Stage    events.StageStartedEvent
	Progress events.RunProgressEvent
	Finished *events.RunFinishedEvent

	rows  []*Row
	index map[string]*Row
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[string]*Row)}
}

func (t *Tracker) row(id, title string) *Row {
	if r, ok := t.index[id]; ok {
		return r
	}
	r := &Row{ID: id, Title: title}
	t.index[id] = r
	t.rows = append(t.rows, r)
	return r
}

// Apply updates the tracker with ev and returns the affected task row, or
// nil for run-level events.
func (t *Tracker) Apply(ev events.Event) *Row {
	switch e := ev.(type) {
	case events.RunStartedEvent:
		t.Name = e.Name
		t.RunID = e.RunID
		t.Tasks = e.Tasks
		t.Progress = events.RunProgressEvent{RunID: e.RunID, Total: e.Tasks, Pending: e.Tasks}
	case events.StageStartedEvent:
		t.Stage = e
	case events.RunProgressEvent:
		t.Progress = e
	case events.RunFinishedEvent:
		t.Finished = &e
	case events.TaskStartedEvent:
		r := t.row(e.ID, e.Title)
		r.Command = e.Command
		r.Status = StatusRunning
		return r
	case events.TaskCompletedEvent:
		r := t.row(e.ID, e.Title)
		r.Status = StatusCompleted
		r.Attempts = e.Attempts
		r.Duration = e.Duration
		return r
	case events.TaskFailedEvent:
		r := t.row(e.ID, e.Title)
		r.Status = StatusFailed
		r.Duration = e.Duration
		r.Err = e.Err
		return r
	case events.TaskSuppressedEvent:
		r := t.row(e.ID, e.Title)
		r.Status = StatusSuppressed
		r.Duration = e.Duration
		r.Err = e.Err
		return r
	case events.TaskSkippedEvent:
		r := t.row(e.ID, e.Title)
		r.Status = StatusSkipped
		return r
	}
	return nil
}

// Rows returns a snapshot of the task rows in the order they were first
// seen.
func (t *Tracker) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = *r
	}
	return out
}

// Done reports whether the run has finished.
func (t *Tracker) Done() bool {
	return t.Finished != nil
}
