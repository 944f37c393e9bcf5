package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/toolbelt/internal/events"
)

// Watch reports progress of the next run published on bus to w. With tty
// set, the interactive view is shown and q or ctrl+c calls cancel;
// otherwise one line is printed per task transition.
//
// The returned function blocks until reporting stops, which happens when
// the run finishes or the bus is closed.
func Watch(bus *events.EventBus, w io.Writer, tty, color bool, cancel context.CancelFunc) (wait func() error) {
	sub := bus.SubscribeAll(256)
	done := make(chan error, 1)

	if tty {
		p := tea.NewProgram(NewModel(sub, cancel), tea.WithOutput(w))
		go func() {
			_, err := p.Run()
			done <- err
		}()
	} else {
		printer := NewPrinter(w, color)
		go func() {
			printer.Run(sub)
			done <- nil
		}()
	}

	return func() error {
		err := <-done
		bus.Unsubscribe(sub)
		return err
	}
}
