package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/aristath/toolbelt/internal/debug"
	"github.com/aristath/toolbelt/internal/jsonx"
)

const traceExec = "toolbelt:backend:exec"

// ShellExecutor runs each command through "<shell> -c <command>".
type ShellExecutor struct {
	shell   string
	workDir string
	env     []string
	procMgr *ProcessManager
	tracer  *debug.Tracer
}

// NewShellExecutor creates a ShellExecutor. pm and tracer may be nil.
func NewShellExecutor(cfg Config, pm *ProcessManager, tracer *debug.Tracer) *ShellExecutor {
	shell := cfg.Shell
	if shell == "" {
		shell = "sh"
	}
	return &ShellExecutor{
		shell:   shell,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
		procMgr: pm,
		tracer:  tracer,
	}
}

// Execute runs command and waits for it to finish.
func (e *ShellExecutor) Execute(ctx context.Context, command string) (*Result, error) {
	cmd := newCommand(ctx, e.shell, "-c", command)
	cmd.Dir = e.workDir
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	e.tracer.Str(traceExec, "command", command)

	start := time.Now()
	stdout, stderr, err := executeCommand(ctx, cmd, e.procMgr)

	res := &Result{
		Command:  command,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		Duration: time.Since(start),
	}
	res.StdoutJSON = jsonx.StdioToJSON(res.Stdout)
	res.StderrJSON = jsonx.StdioToJSON(res.Stderr)

	e.tracer.Str(traceExec, "stdout", res.Stdout)
	e.tracer.Str(traceExec, "stderr", res.Stderr)

	if err != nil {
		perr := &ProcessError{
			Command:  command,
			ExitCode: -1,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				perr.Signal = ws.Signal().String()
			}
		}
		res.ExitCode = perr.ExitCode
		e.tracer.Obj(traceExec, "process error", perr)
		return res, perr
	}

	return res, nil
}

// DryRunExecutor records commands without running them. Every command
// succeeds with empty output.
type DryRunExecutor struct {
	mu       sync.Mutex
	commands []string
	tracer   *debug.Tracer
}

// NewDryRunExecutor creates a DryRunExecutor. tracer may be nil.
func NewDryRunExecutor(tracer *debug.Tracer) *DryRunExecutor {
	return &DryRunExecutor{tracer: tracer}
}

// Execute records command and returns an empty successful Result.
func (e *DryRunExecutor) Execute(ctx context.Context, command string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Err: err}
	}
	e.mu.Lock()
	e.commands = append(e.commands, command)
	e.mu.Unlock()

	e.tracer.Str(traceExec, "dry-run", command)
	return &Result{Command: command}, nil
}

// Commands returns the commands seen so far, in call order.
func (e *DryRunExecutor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}
