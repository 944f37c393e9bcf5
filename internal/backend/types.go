package backend

import (
	"fmt"
	"time"
)

// Result is the outcome of one command invocation.
type Result struct {
	Command string
	Stdout  string
	Stderr  string

	// StdoutJSON and StderrJSON hold the first JSON object found in each
	// stream, or nil when there is none.
	StdoutJSON map[string]any
	StderrJSON map[string]any

	ExitCode int
	Duration time.Duration
}

// ProcessError reports a command that could not be started or exited
// unsuccessfully. The captured output is kept so callers can build
// diagnostics from it.
type ProcessError struct {
	Command  string
	ExitCode int    // -1 when the process never exited normally
	Signal   string // set when the process was killed by a signal
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("command %q terminated by signal %s", e.Command, e.Signal)
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Config defines how commands are executed.
type Config struct {
	Type    string   // "shell" (default) or "dry-run"
	Shell   string   // interpreter for "shell", default "sh"
	WorkDir string   // empty means the current directory
	Env     []string // KEY=VALUE pairs appended to the inherited environment
}
