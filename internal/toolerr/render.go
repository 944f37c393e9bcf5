package toolerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"
)

// DefaultDepth is the inspection depth used by Render. Depths above it add
// the full CLI result and the CLI's own stack to CLI reports.
const DefaultDepth = 2

var (
	styleName = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Renderer formats errors as human-readable multi-section reports.
type Renderer struct {
	Depth int
	Color bool
}

// Render formats v with the default renderer.
func Render(v any) string {
	return Renderer{Depth: DefaultDepth, Color: true}.Render(v)
}

// Render formats v. Values that are not errors get a "not an Error" report
// around a dump of the value.
func (r Renderer) Render(v any) string {
	if r.Depth <= 0 {
		r.Depth = DefaultDepth
	}
	var b strings.Builder

	err, ok := v.(error)
	if !ok || err == nil {
		r.header(&b, NameNotAnError, "Render was given a value that is not an error")
		r.field(&b, "Type", fmt.Sprintf("%T", v))
		r.block(&b, "Value", r.dump(v))
		return b.String()
	}

	te, ok := err.(*Error)
	if !ok {
		te = Wrap(err, "")
	}
	r.renderError(&b, te)

	for cause := te.Cause; cause != nil; cause = errors.Unwrap(cause) {
		b.WriteString("\n")
		b.WriteString(r.style(styleDim, "Caused by:"))
		b.WriteString("\n")
		if ce, ok := cause.(*Error); ok {
			var nested strings.Builder
			r.summary(&nested, ce)
			b.WriteString(indent(nested.String(), "  "))
			continue
		}
		b.WriteString(indent(fmt.Sprintf("%T: %s\n", cause, cause.Error()), "  "))
	}
	return b.String()
}

func (r Renderer) renderError(b *strings.Builder, e *Error) {
	r.summary(b, e)
	r.block(b, "Stack", e.stack)
	r.block(b, "Result Stack", e.resultStack)
	if e.Detail != nil {
		r.block(b, "Detail", r.dump(e.Detail))
	}

	switch {
	case e.CLI != nil:
		r.renderCLI(b, e.CLI)
	case e.Shell != nil:
		r.renderShell(b, e.Shell)
	case e.Validation != nil:
		r.field(b, "Argument", e.Validation.Argument)
		r.field(b, "Expected", e.Validation.Expected)
		r.field(b, "Received", e.Validation.Received)
	}
}

// summary writes the sections shared by every error: name, message, source
// and actions.
func (r Renderer) summary(b *strings.Builder, e *Error) {
	r.header(b, e.Name, e.Message)
	r.field(b, "Source", e.Source)
	if len(e.Actions) > 0 {
		b.WriteString(r.style(styleLabel, "Actions:"))
		b.WriteString("\n")
		for _, a := range e.Actions {
			b.WriteString("  - " + a + "\n")
		}
	}
}

func (r Renderer) renderCLI(b *strings.Builder, d *CLIDetail) {
	r.field(b, "Command", d.Command)
	r.field(b, "Status", fmt.Sprintf("%d", d.Status))
	r.field(b, "CLI Error", d.Name)
	if len(d.Warnings) > 0 {
		r.block(b, "Warnings", "- "+strings.Join(d.Warnings, "\n- "))
	}
	r.block(b, "Raw Stdout", preferJSON(d.ParsedStdout, d.RawStdout, r.Depth))
	r.block(b, "Raw Stderr", preferJSON(d.ParsedStderr, d.RawStderr, r.Depth))
	if r.Depth > DefaultDepth {
		r.block(b, "CLI Result", r.dump(d.Result))
		r.block(b, "CLI Stack", d.Stack)
	}
}

func (r Renderer) renderShell(b *strings.Builder, d *ShellDetail) {
	r.field(b, "Command", d.Command)
	r.field(b, "Exit Code", fmt.Sprintf("%d", d.Code))
	r.field(b, "Signal", d.Signal)
	r.block(b, "Stdout", preferJSON(d.ParsedStdout, d.Stdout, r.Depth))
	r.block(b, "Stderr", preferJSON(d.ParsedStderr, d.Stderr, r.Depth))
}

func (r Renderer) header(b *strings.Builder, name, message string) {
	b.WriteString(r.style(styleName, name+":"))
	b.WriteString(" " + message + "\n")
}

func (r Renderer) field(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(r.style(styleLabel, label+":"))
	b.WriteString(" " + value + "\n")
}

func (r Renderer) block(b *strings.Builder, label, value string) {
	value = strings.TrimRight(value, "\n")
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(r.style(styleLabel, label+":"))
	b.WriteString("\n")
	b.WriteString(indent(value, "  "))
	b.WriteString("\n")
}

func (r Renderer) style(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

func (r Renderer) dump(v any) string {
	return Dump(v, r.Depth)
}

// Dump returns a structural dump of v bounded by depth.
func Dump(v any, depth int) string {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		MaxDepth:                depth,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	return cfg.Sdump(v)
}

func preferJSON(parsed map[string]any, raw string, depth int) string {
	if parsed != nil {
		return Dump(parsed, depth)
	}
	return raw
}
