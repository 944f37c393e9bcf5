package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/events"
)

func runEvents() []events.Event {
	return []events.Event{
		events.RunStartedEvent{RunID: "r1", Name: "scratch-setup", Tasks: 3, Stages: 3},
		events.StageStartedEvent{RunID: "r1", Index: 0, Titles: []string{"Create org"}},
		events.TaskStartedEvent{RunID: "r1", ID: "task-1", Title: "Create org", Command: "sf org create scratch --json"},
		events.TaskCompletedEvent{RunID: "r1", ID: "task-1", Title: "Create org", Attempts: 2, Duration: 1500 * time.Millisecond},
		events.RunProgressEvent{RunID: "r1", Total: 3, Completed: 1, Pending: 2},
		events.TaskStartedEvent{RunID: "r1", ID: "task-2", Title: "Push source"},
		events.TaskFailedEvent{RunID: "r1", ID: "task-2", Title: "Push source", Err: errors.New("boom"), Duration: 20 * time.Millisecond},
		events.RunProgressEvent{RunID: "r1", Total: 3, Completed: 1, Failed: 1, Pending: 1},
		events.TaskSkippedEvent{RunID: "r1", ID: "task-3", Title: "Open org"},
		events.RunFinishedEvent{RunID: "r1", State: "Failed", Err: errors.New("Runtime Error"), Duration: 2 * time.Second},
	}
}

func TestTracker_Apply(t *testing.T) {
	tr := NewTracker()
	for _, ev := range runEvents() {
		tr.Apply(ev)
	}

	assert.Equal(t, "scratch-setup", tr.Name)
	assert.Equal(t, 3, tr.Tasks)
	assert.True(t, tr.Done())

	rows := tr.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, StatusCompleted, rows[0].Status)
	assert.Equal(t, 2, rows[0].Attempts)
	assert.Equal(t, "sf org create scratch --json", rows[0].Command)
	assert.Equal(t, StatusFailed, rows[1].Status)
	assert.EqualError(t, rows[1].Err, "boom")
	assert.Equal(t, StatusSkipped, rows[2].Status)
	assert.Equal(t, 1, tr.Progress.Failed)
}

func TestTracker_SuppressedRow(t *testing.T) {
	tr := NewTracker()
	row := tr.Apply(events.TaskSuppressedEvent{ID: "task-1", Title: "Delete old org", Err: errors.New("no such org")})

	require.NotNil(t, row)
	assert.Equal(t, StatusSuppressed, row.Status)
	assert.Nil(t, tr.Apply(events.RunProgressEvent{Total: 1}))
	assert.False(t, tr.Done())
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	sub := make(chan events.Event, 16)
	for _, ev := range runEvents() {
		sub <- ev
	}
	sub <- events.TaskStartedEvent{ID: "late", Title: "never printed"}
	close(sub)

	p.Run(sub)

	want := strings.Join([]string{
		"Running scratch-setup (3 tasks, 3 stages)",
		"  ▸ Create org",
		"  ✔ Create org (1.5s) after 2 attempts",
		"  ▸ Push source",
		"  ✖ Push source (20ms)",
		"  ↷ Open org skipped",
		"Failed in 2s",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_Suppressed(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Handle(events.TaskSuppressedEvent{ID: "task-1", Title: "Delete old org"})
	p.Handle(events.RunFinishedEvent{State: "Completed", Duration: 300 * time.Millisecond})

	assert.Equal(t, "  ⚠ Delete old org failed, continuing\nCompleted in 300ms\n", buf.String())
}

func TestModel_UpdateFollowsEvents(t *testing.T) {
	sub := make(chan events.Event, 1)
	m := NewModel(sub, nil)
	require.NotNil(t, m.Init())

	var model tea.Model = m
	evs := runEvents()
	for i, ev := range evs {
		var cmd tea.Cmd
		model, cmd = model.Update(ev)
		require.NotNil(t, cmd, "event %d", i)
	}

	view := model.View()
	assert.Contains(t, view, "Running scratch-setup")
	assert.Contains(t, view, "Create org")
	assert.Contains(t, view, "Push source")
	assert.Contains(t, view, "Open org")
	assert.Contains(t, view, "Failed in 2s")
	assert.True(t, model.(Model).Tracker().Done())
}

func TestModel_ViewBeforeFirstEvent(t *testing.T) {
	m := NewModel(make(chan events.Event), nil)

	view := m.View()
	assert.Contains(t, view, "Waiting for run")
	assert.NotContains(t, view, "Failed in")
}

func TestModel_QuitKeyCancels(t *testing.T) {
	cancelled := 0
	m := NewModel(make(chan events.Event), func() { cancelled++ })

	var model tea.Model = m
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.Equal(t, 1, cancelled, "cancel is called once")
	assert.Contains(t, model.View(), "Cancelling...")
}

func TestModel_BusClosedQuits(t *testing.T) {
	sub := make(chan events.Event)
	close(sub)
	m := NewModel(sub, nil)

	msg := waitForEvent(sub)()
	assert.IsType(t, busClosedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestProgressBar(t *testing.T) {
	assert.Empty(t, progressBar(events.RunProgressEvent{}, 40))

	bar := progressBar(events.RunProgressEvent{Total: 4, Completed: 2, Failed: 1, Pending: 1}, 8)
	assert.True(t, strings.HasSuffix(bar, "3/4"), bar)
}

func TestWatch_PrintsUntilRunFinishes(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	var buf bytes.Buffer
	wait := Watch(bus, &buf, false, false, nil)

	bus.Publish(events.TopicRun, events.RunStartedEvent{RunID: "r", Name: "deploy", Tasks: 1, Stages: 1})
	bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: "task-1", Title: "Deploy", Attempts: 1, Duration: time.Second})
	bus.Publish(events.TopicRun, events.RunFinishedEvent{RunID: "r", State: "Completed", Duration: time.Second})

	require.NoError(t, wait())
	assert.Contains(t, buf.String(), "Running deploy")
	assert.Contains(t, buf.String(), "✔ Deploy (1s)")
	assert.Contains(t, buf.String(), "Completed in 1s")
}
