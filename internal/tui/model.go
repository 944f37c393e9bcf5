package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/toolbelt/internal/events"
)

// busClosedMsg is sent when the event subscription is closed.
type busClosedMsg struct{}

// Model is the Bubble Tea model of the interactive progress view.
type Model struct {
	tracker    *Tracker
	sub        <-chan events.Event
	spinner    spinner.Model
	cancel     context.CancelFunc
	cancelling bool
	width      int
}

// NewModel creates a progress view fed by sub. cancel, when set, is called
// when the user asks to stop the run.
func NewModel(sub <-chan events.Event, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StyleStatusRunning
	return Model{
		tracker: NewTracker(),
		sub:     sub,
		spinner: s,
		cancel:  cancel,
	}
}

// Tracker returns the view's state.
func (m Model) Tracker() *Tracker {
	return m.tracker
}

// Init starts the spinner and waits for the first event.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.sub))
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case busClosedMsg:
		return m, tea.Quit

	case events.Event:
		m.tracker.Apply(msg)
		if m.tracker.Done() {
			return m, tea.Quit
		}
		return m, waitForEvent(m.sub)
	}

	return m, nil
}

// View renders the task list, a progress bar and the help line.
func (m Model) View() string {
	var b strings.Builder
	t := m.tracker

	title := "Waiting for run"
	if t.Name != "" {
		title = "Running " + t.Name
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n\n")

	for _, r := range t.Rows() {
		b.WriteString(m.rowView(r))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(progressBar(t.Progress, m.barWidth()))
	b.WriteString("\n")

	switch {
	case t.Finished != nil && t.Finished.Err != nil:
		b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Failed in %s", round(t.Finished.Duration))))
	case t.Finished != nil:
		b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Completed in %s", round(t.Finished.Duration))))
	case m.cancelling:
		b.WriteString(StyleStatusFailed.Render("Cancelling..."))
	default:
		b.WriteString(HelpView())
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) rowView(r Row) string {
	switch r.Status {
	case StatusRunning:
		return fmt.Sprintf(" %s %s", m.spinner.View(), r.Title)
	case StatusCompleted:
		return fmt.Sprintf(" %s %s %s", StyleStatusComplete.Render("✔"), r.Title, StyleStatusPending.Render(round(r.Duration).String()))
	case StatusFailed:
		return fmt.Sprintf(" %s %s %s", StyleStatusFailed.Render("✖"), r.Title, StyleStatusPending.Render(round(r.Duration).String()))
	case StatusSuppressed:
		return fmt.Sprintf(" %s %s %s", StyleStatusSuppressed.Render("⚠"), r.Title, StyleStatusPending.Render("failed, continuing"))
	case StatusSkipped:
		return fmt.Sprintf(" %s %s", StyleStatusPending.Render("↷"), StyleStatusPending.Render(r.Title))
	default:
		return "   " + r.Title
	}
}

func (m Model) barWidth() int {
	if m.width == 0 {
		return 40
	}
	return min(m.width-12, 40)
}

// progressBar renders completed, failed and pending shares of the run.
func progressBar(p events.RunProgressEvent, width int) string {
	if p.Total == 0 || width <= 0 {
		return ""
	}
	done := p.Completed + p.Suppressed
	completedWidth := (done * width) / p.Total
	failedWidth := ((p.Failed + p.Skipped) * width) / p.Total
	pendingWidth := max(0, width-completedWidth-failedWidth)

	bar := StyleStatusComplete.Render(strings.Repeat("=", completedWidth))
	bar += StyleStatusFailed.Render(strings.Repeat("!", failedWidth))
	bar += StyleStatusPending.Render(strings.Repeat(".", pendingWidth))

	finished := p.Total - p.Pending
	return fmt.Sprintf("[%s]  %d/%d", bar, finished, p.Total)
}
