package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/toolbelt/internal/events"
)

// Printer writes one line per task transition. It is used when the output
// is not a terminal.
type Printer struct {
	w       io.Writer
	color   bool
	tracker *Tracker
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color, tracker: NewTracker()}
}

// Tracker returns the printer's state.
func (p *Printer) Tracker() *Tracker {
	return p.tracker
}

// Run prints events from sub until the run finishes or sub is closed.
func (p *Printer) Run(sub <-chan events.Event) {
	for ev := range sub {
		p.Handle(ev)
		if p.tracker.Done() {
			return
		}
	}
}

// Handle prints the line for a single event.
func (p *Printer) Handle(ev events.Event) {
	row := p.tracker.Apply(ev)

	switch e := ev.(type) {
	case events.RunStartedEvent:
		fmt.Fprintf(p.w, "%s (%d tasks, %d stages)\n", p.style(StyleTitle, "Running "+e.Name), e.Tasks, e.Stages)
	case events.RunFinishedEvent:
		if e.Err != nil {
			fmt.Fprintf(p.w, "%s in %s\n", p.style(StyleStatusFailed, "Failed"), round(e.Duration))
			return
		}
		fmt.Fprintf(p.w, "%s in %s\n", p.style(StyleStatusComplete, "Completed"), round(e.Duration))
	}

	if row != nil {
		fmt.Fprintln(p.w, p.rowLine(*row))
	}
}

func (p *Printer) rowLine(r Row) string {
	switch r.Status {
	case StatusRunning:
		return fmt.Sprintf("  %s %s", p.style(StyleStatusRunning, "▸"), r.Title)
	case StatusCompleted:
		line := fmt.Sprintf("  %s %s (%s)", p.style(StyleStatusComplete, "✔"), r.Title, round(r.Duration))
		if r.Attempts > 1 {
			line += fmt.Sprintf(" after %d attempts", r.Attempts)
		}
		return line
	case StatusFailed:
		return fmt.Sprintf("  %s %s (%s)", p.style(StyleStatusFailed, "✖"), r.Title, round(r.Duration))
	case StatusSuppressed:
		return fmt.Sprintf("  %s %s failed, continuing", p.style(StyleStatusSuppressed, "⚠"), r.Title)
	case StatusSkipped:
		return fmt.Sprintf("  %s %s skipped", p.style(StyleStatusPending, "↷"), r.Title)
	default:
		return "    " + r.Title
	}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func round(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}
