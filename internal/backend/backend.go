// Package backend is the boundary between toolbelt and the external programs
// it drives. Commands are plain strings handed to a shell.
package backend

import (
	"context"
	"fmt"

	"github.com/aristath/toolbelt/internal/debug"
)

// Executor runs a command string.
//
// A non-zero exit, a signal or a start failure is returned as a
// *ProcessError together with a Result holding whatever output was captured.
type Executor interface {
	Execute(ctx context.Context, command string) (*Result, error)
}

// New creates an executor for cfg.Type.
// The ProcessManager and Tracer are optional.
func New(cfg Config, pm *ProcessManager, tracer *debug.Tracer) (Executor, error) {
	switch cfg.Type {
	case "", "shell":
		return NewShellExecutor(cfg, pm, tracer), nil
	case "dry-run":
		return NewDryRunExecutor(tracer), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", cfg.Type)
	}
}
