package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aristath/toolbelt/internal/backend"
	"github.com/aristath/toolbelt/internal/debug"
	"github.com/aristath/toolbelt/internal/jsonx"
	"github.com/aristath/toolbelt/internal/toolerr"
	"github.com/aristath/toolbelt/internal/validate"
)

const traceTask = "toolbelt:scheduler:task"

// SfPrograms are the executable names accepted by NewSfTask.
var SfPrograms = []string{"sf", "sfdx"}

// ErrTaskAlreadyRegistered is returned when a task is added to a second
// runner.
var ErrTaskAlreadyRegistered = errors.New("task is already registered with a runner")

// SuccessHook is called after a command exits successfully.
type SuccessHook func(ctx context.Context, res *backend.Result, sc *SharedContext, task *CommandTask) error

// ErrorHook is called after a command fails, before the failure is
// suppressed or raised.
type ErrorHook func(ctx context.Context, perr *backend.ProcessError, sc *SharedContext, task *CommandTask) error

// Options controls how a CommandTask runs. The zero value runs the command
// once, sequentially, and raises any failure.
type Options struct {
	SuppressErrors     bool
	RenderStdioOnError bool
	Concurrent         bool
	OnSuccess          SuccessHook
	OnError            ErrorHook
	Retry              RetryConfig
	Locks              []string // resource keys held while the command runs
}

// Env carries the collaborators a unit needs while it runs.
type Env struct {
	Executor backend.Executor
	Context  *SharedContext
	Locks    *ResourceLockManager
	Breakers *BreakerRegistry // nil disables circuit breaking
	Tracer   *debug.Tracer
	Out      io.Writer // destination for RenderStdioOnError diagnostics
	Depth    int       // dump depth for rendered diagnostics
	Color    bool      // colorize rendered diagnostics
	Logger   zerolog.Logger
}

// Outcome describes how a unit finished.
type Outcome struct {
	Result     *backend.Result
	Attempts   int
	Suppressed bool
	// Err is the absorbed failure when Suppressed is true.
	Err error
}

// Unit is anything the runner can schedule.
type Unit interface {
	Title() string
	Concurrent() bool
	Run(ctx context.Context, env *Env) (Outcome, error)
}

// CommandTask runs one command line and reports its outcome through hooks.
// It is immutable after construction.
type CommandTask struct {
	title      string
	command    string
	program    string
	opts       Options
	registered atomic.Bool
}

// NewCommandTask creates a task that runs command through the shell.
func NewCommandTask(title, command string, opts Options) (*CommandTask, error) {
	const source = "scheduler:NewCommandTask"
	if err := validate.Args(source, validate.CheckNonEmptyString, []any{title, command}, []string{"title", "command"}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(command) == "" {
		return nil, toolerr.NewValidationError("Expected command to be a non-blank string.", source,
			toolerr.ValidationDetail{Argument: "command", Expected: "a non-blank string", Received: fmt.Sprintf("%q", command)})
	}
	opts.Locks = append([]string(nil), opts.Locks...)
	return &CommandTask{
		title:   title,
		command: command,
		program: strings.ToLower(strings.Fields(command)[0]),
		opts:    opts,
	}, nil
}

// NewSfTask creates a task for the Salesforce CLI. The command must start
// with sf or sfdx; --json is appended unless already present.
func NewSfTask(title, command string, opts Options) (*CommandTask, error) {
	const source = "scheduler:NewSfTask"
	if err := validate.CheckNonEmptyString(title, source, "title"); err != nil {
		return nil, err
	}
	if err := validate.CheckCommandPrefix(command, SfPrograms, source); err != nil {
		return nil, err
	}
	if !hasFlag(command, "--json") {
		command = strings.TrimRight(command, " \t") + " --json"
	}
	return NewCommandTask(title, command, opts)
}

func hasFlag(command, flag string) bool {
	for _, f := range strings.Fields(command) {
		if f == flag {
			return true
		}
	}
	return false
}

// Title returns the task title.
func (t *CommandTask) Title() string { return t.title }

// Command returns the command line as registered, before placeholder
// expansion.
func (t *CommandTask) Command() string { return t.command }

// Program returns the lower-cased first token of the command.
func (t *CommandTask) Program() string { return t.program }

// Concurrent reports whether the task may overlap with neighbouring
// concurrent tasks.
func (t *CommandTask) Concurrent() bool { return t.opts.Concurrent }

// Options returns a copy of the task options.
func (t *CommandTask) Options() Options {
	opts := t.opts
	opts.Locks = append([]string(nil), t.opts.Locks...)
	return opts
}

// Register marks the task as owned by a runner.
func (t *CommandTask) Register() error {
	if !t.registered.CompareAndSwap(false, true) {
		return ErrTaskAlreadyRegistered
	}
	return nil
}

// Unregister releases the task for use by another runner.
func (t *CommandTask) Unregister() {
	t.registered.Store(false)
}

func (t *CommandTask) source() string {
	return "scheduler:CommandTask:" + t.title
}

// Run executes the command and dispatches to the hooks.
//
// A failure is returned as a CliError whose cause is a ShellError wrapping
// the *backend.ProcessError, unless SuppressErrors absorbs it. Hook errors
// are returned as they are, wrapped into the error envelope.
func (t *CommandTask) Run(ctx context.Context, env *Env) (Outcome, error) {
	if env == nil || env.Executor == nil {
		return Outcome{}, toolerr.NewValidationError("Expected an executor to run the task.", t.source(),
			toolerr.ValidationDetail{Argument: "env", Expected: "an executor", Received: "null"})
	}
	sc := env.Context
	if sc == nil {
		sc = NewSharedContext()
	}

	command, err := sc.Expand(t.command)
	if err != nil {
		return Outcome{}, err
	}

	if env.Locks != nil && len(t.opts.Locks) > 0 {
		env.Locks.LockAll(t.opts.Locks)
		defer env.Locks.UnlockAll(t.opts.Locks)
	}

	env.Tracer.Str(traceTask, t.title, command)

	res, attempts, err := t.execute(ctx, env, command)
	parseStdio(res)
	out := Outcome{Result: res, Attempts: attempts}

	if err == nil {
		if t.opts.OnSuccess != nil {
			if herr := t.opts.OnSuccess(ctx, res, sc, t); herr != nil {
				return out, t.hookError("OnSuccess", herr)
			}
		}
		return out, nil
	}

	perr := asProcessError(err, command, res)
	env.Tracer.Obj(traceTask, "failure", perr)

	if t.opts.OnError != nil {
		if herr := t.opts.OnError(ctx, perr, sc, t); herr != nil {
			return out, t.hookError("OnError", herr)
		}
	}

	if t.opts.SuppressErrors {
		env.Logger.Debug().Str("task", t.title).Err(perr).Msg("task failure suppressed")
		out.Suppressed = true
		out.Err = perr
		return out, nil
	}

	shellErr := toolerr.NewShellError(toolerr.ShellParams{
		Command: command,
		Code:    perr.ExitCode,
		Signal:  perr.Signal,
		Stdout:  perr.Stdout,
		Stderr:  perr.Stderr,
		Source:  t.source(),
		Cause:   perr,
	})

	if t.opts.RenderStdioOnError && env.Out != nil {
		depth := env.Depth
		if depth < 1 {
			depth = toolerr.DefaultDepth
		}
		_, _ = io.WriteString(env.Out, toolerr.Renderer{Depth: depth, Color: env.Color}.Render(shellErr))
	}

	cliErr := toolerr.NewCLIError(toolerr.CLIParams{
		Command: command,
		Stdout:  perr.Stdout,
		Stderr:  perr.Stderr,
		Message: fmt.Sprintf("Task %q failed", t.title),
		Source:  t.source(),
		Cause:   shellErr,
	})
	cliErr.AddToStack("CommandTask.Run: " + t.title)
	return out, cliErr
}

// parseStdio fills the JSON payloads of res that the executor left unset.
func parseStdio(res *backend.Result) {
	if res == nil {
		return
	}
	if res.StdoutJSON == nil {
		res.StdoutJSON = jsonx.StdioToJSON(res.Stdout)
	}
	if res.StderrJSON == nil {
		res.StderrJSON = jsonx.StdioToJSON(res.Stderr)
	}
}

func (t *CommandTask) hookError(hook string, err error) error {
	e := toolerr.Wrap(err, t.source())
	e.AddToStack(fmt.Sprintf("CommandTask.%s: %s", hook, t.title))
	return e
}

// execute runs command once, or under the retry policy when enabled, and
// returns the last result with the number of attempts made.
func (t *CommandTask) execute(ctx context.Context, env *Env, command string) (*backend.Result, int, error) {
	if !t.opts.Retry.enabled() {
		res, err := t.invoke(ctx, env, command)
		return res, 1, err
	}

	var (
		res      *backend.Result
		attempts int
	)
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		r, err := t.invoke(ctx, env, command)
		res = r
		if err == nil {
			return nil
		}
		if isBreakerRejection(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		env.Logger.Debug().Str("task", t.title).Int("attempt", attempts).Err(err).Msg("command failed, retrying")
		return err
	}

	err := backoff.Retry(operation, t.opts.Retry.policy(ctx))
	return res, attempts, err
}

func (t *CommandTask) invoke(ctx context.Context, env *Env, command string) (*backend.Result, error) {
	if env.Breakers == nil {
		return env.Executor.Execute(ctx, command)
	}

	var res *backend.Result
	_, err := env.Breakers.Get(t.program).Execute(func() (any, error) {
		r, err := env.Executor.Execute(ctx, command)
		res = r
		return r, err
	})
	return res, err
}

// asProcessError normalizes whatever the executor or breaker returned.
func asProcessError(err error, command string, res *backend.Result) *backend.ProcessError {
	var perr *backend.ProcessError
	if errors.As(err, &perr) {
		return perr
	}
	perr = &backend.ProcessError{Command: command, ExitCode: -1, Err: err}
	if res != nil {
		perr.ExitCode = res.ExitCode
		perr.Stdout = res.Stdout
		perr.Stderr = res.Stderr
	}
	return perr
}

// FuncTask runs an in-process function as a unit. It lets callers mix
// bookkeeping steps with command tasks.
type FuncTask struct {
	title      string
	concurrent bool
	fn         func(ctx context.Context, sc *SharedContext) error
}

// NewFuncTask creates a FuncTask.
func NewFuncTask(title string, concurrent bool, fn func(ctx context.Context, sc *SharedContext) error) (*FuncTask, error) {
	const source = "scheduler:NewFuncTask"
	if err := validate.CheckNonEmptyString(title, source, "title"); err != nil {
		return nil, err
	}
	if err := validate.CheckFuncValue(fn, source, "fn"); err != nil {
		return nil, err
	}
	return &FuncTask{title: title, concurrent: concurrent, fn: fn}, nil
}

// Title returns the task title.
func (f *FuncTask) Title() string { return f.title }

// Concurrent reports whether the task may overlap with its neighbours.
func (f *FuncTask) Concurrent() bool { return f.concurrent }

// Run calls the function with the run's shared context.
func (f *FuncTask) Run(ctx context.Context, env *Env) (Outcome, error) {
	sc := NewSharedContext()
	if env != nil && env.Context != nil {
		sc = env.Context
	}
	if err := f.fn(ctx, sc); err != nil {
		e := toolerr.Wrap(err, "scheduler:FuncTask:"+f.title)
		e.AddToStack("FuncTask.Run: " + f.title)
		return Outcome{}, e
	}
	return Outcome{}, nil
}
