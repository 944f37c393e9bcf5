package toolerr

import (
	"fmt"

	"github.com/aristath/toolbelt/internal/jsonx"
)

// ShellDetail is the payload of a ShellError. A process either exits with a
// code or dies by a signal; Signal is empty in the first case.
type ShellDetail struct {
	Command      string
	Code         int
	Signal       string
	Stdout       string
	Stderr       string
	ParsedStdout map[string]any
	ParsedStderr map[string]any
}

// ShellParams describes a failed process.
type ShellParams struct {
	Command string
	Code    int
	Signal  string
	Stdout  string
	Stderr  string
	Message string
	Source  string
	Cause   error
}

// NewShellError builds a ShellError. Without a caller message the first line
// of stderr is used, then the first line of stdout, then a synthesized
// "Unknown Shell Error".
func NewShellError(p ShellParams) *Error {
	message := p.Message
	if message == "" {
		message = firstLine(p.Stderr)
	}
	if message == "" {
		message = firstLine(p.Stdout)
	}
	if message == "" {
		message = fmt.Sprintf("Unknown Shell Error (code=%d, signal=%s)", p.Code, p.Signal)
	}

	e := newError(message, NameShell, p.Source)
	e.Cause = p.Cause
	e.Shell = &ShellDetail{
		Command:      p.Command,
		Code:         p.Code,
		Signal:       p.Signal,
		Stdout:       p.Stdout,
		Stderr:       p.Stderr,
		ParsedStdout: jsonx.StdioToJSON(p.Stdout),
		ParsedStderr: jsonx.StdioToJSON(p.Stderr),
	}
	return e
}
