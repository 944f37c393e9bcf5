// Package orchestrator runs registered tasks in order, stage by stage, and
// reports the outcome of the batch as a single error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/toolbelt/internal/backend"
	"github.com/aristath/toolbelt/internal/debug"
	"github.com/aristath/toolbelt/internal/events"
	"github.com/aristath/toolbelt/internal/persistence"
	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/toolerr"
)

const (
	traceRunner  = "toolbelt:orchestrator:runner"
	runnerSource = "orchestrator:TaskRunner"
)

// SharedContext is the key/value store tasks share during a run.
type SharedContext = scheduler.SharedContext

// State is the lifecycle position of a TaskRunner.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CollectErrors modes.
const (
	CollectMinimal = "minimal" // keep failure messages
	CollectFull    = "full"    // keep the failures themselves
)

// RunnerOptions configures a TaskRunner.
type RunnerOptions struct {
	Name string // recorded in run history

	// Concurrent schedules every task as concurrent, regardless of the
	// task's own flag.
	Concurrent bool
	// ExitOnError stops the run at the first unsuppressed failure.
	ExitOnError bool
	// CollectErrors selects what is kept of failures when the run
	// continues past them.
	CollectErrors string
	ForceColor    bool
	ForceTTY      bool
	// ConcurrencyLimit bounds the tasks of a concurrent stage running at
	// once. Values below 1 mean 4.
	ConcurrencyLimit int
}

// DefaultRunnerOptions returns the options used when a runner is created
// implicitly.
func DefaultRunnerOptions() RunnerOptions {
	return RunnerOptions{
		Name:             "toolbelt",
		Concurrent:       false,
		ExitOnError:      true,
		CollectErrors:    CollectMinimal,
		ForceColor:       true,
		ForceTTY:         true,
		ConcurrencyLimit: 4,
	}
}

func (o RunnerOptions) validate() error {
	switch o.CollectErrors {
	case CollectMinimal, CollectFull:
		return nil
	default:
		return toolerr.NewValidationError(
			fmt.Sprintf("Expected collectErrors to be %q or %q but got %q.", CollectMinimal, CollectFull, o.CollectErrors),
			runnerSource,
			toolerr.ValidationDetail{Argument: "collectErrors", Expected: CollectMinimal + " | " + CollectFull, Received: o.CollectErrors})
	}
}

// Recorder persists run history. *persistence.SQLiteStore implements it.
type Recorder interface {
	StartRun(ctx context.Context, run persistence.Run) error
	RecordTask(ctx context.Context, task persistence.TaskRun) error
	FinishRun(ctx context.Context, runID, status, errMsg string, finishedAt time.Time) error
}

// Deps holds the collaborators a runner uses. Every field is optional:
// a nil Executor runs commands through the shell.
type Deps struct {
	Executor backend.Executor
	Bus      *events.EventBus
	Recorder Recorder
	Breakers *scheduler.BreakerRegistry
	Tracer   *debug.Tracer
	Logger   zerolog.Logger
	Out      io.Writer // destination for rendered task diagnostics
}

// TaskRunner runs tasks in registration order. A runner runs once; Reset
// returns it to NotStarted with no tasks.
type TaskRunner struct {
	mu    sync.Mutex
	opts  RunnerOptions
	deps  Deps
	units []scheduler.Unit
	sc    *SharedContext
	state State
	runID string
}

func newTaskRunner(opts RunnerOptions, deps Deps) (*TaskRunner, error) {
	if opts.CollectErrors == "" {
		opts.CollectErrors = CollectMinimal
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = 4
	}
	if deps.Executor == nil {
		deps.Executor = backend.NewShellExecutor(backend.Config{}, nil, deps.Tracer)
	}
	return &TaskRunner{
		opts: opts,
		deps: deps,
		sc:   scheduler.NewSharedContext(),
	}, nil
}

// Options returns the runner's options.
func (r *TaskRunner) Options() RunnerOptions {
	return r.opts
}

// State returns the runner's lifecycle state.
func (r *TaskRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Context returns the shared context of the current run.
func (r *TaskRunner) Context() *SharedContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sc
}

// Tasks returns the registered tasks in registration order.
func (r *TaskRunner) Tasks() []scheduler.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduler.Unit(nil), r.units...)
}

// RunID returns the ID of the last run, or "" before the first run.
func (r *TaskRunner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// AddTask registers u and returns it. Command tasks record their command
// line in the shared context immediately. Tasks can only be added before
// the runner starts.
func (r *TaskRunner) AddTask(u scheduler.Unit) (scheduler.Unit, error) {
	const source = runnerSource + ".AddTask"
	if u == nil {
		return nil, toolerr.NewValidationError("Expected task to be a task but got null.", source,
			toolerr.ValidationDetail{Argument: "task", Expected: "a task", Received: "null"})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateNotStarted {
		return nil, toolerr.NewValidationError(
			fmt.Sprintf("Cannot add task %q to a runner in state %s.", u.Title(), r.state), source,
			toolerr.ValidationDetail{Argument: "task", Expected: "a runner in state " + StateNotStarted.String(), Received: r.state.String()})
	}

	if ct, ok := u.(*scheduler.CommandTask); ok {
		if err := ct.Register(); err != nil {
			e := toolerr.NewValidationError(fmt.Sprintf("Task %q is already registered with a runner.", ct.Title()), source,
				toolerr.ValidationDetail{Argument: "task", Expected: "an unregistered task", Received: "a registered task"})
			e.Cause = err
			return nil, e
		}
		r.sc.AppendCommand(ct.Command())
	}

	r.units = append(r.units, u)
	r.deps.Tracer.Str(traceRunner, "added task", u.Title())
	return u, nil
}

// Reset drops every task and the shared context, returning the runner to
// NotStarted. Command tasks are released so they can be added elsewhere.
func (r *TaskRunner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning {
		return toolerr.NewValidationError("Cannot reset a running task runner.", runnerSource+".Reset",
			toolerr.ValidationDetail{Argument: "state", Expected: "a runner that is not running", Received: r.state.String()})
	}
	for _, u := range r.units {
		if ct, ok := u.(*scheduler.CommandTask); ok {
			ct.Unregister()
		}
	}
	r.units = nil
	r.sc = scheduler.NewSharedContext()
	r.state = StateNotStarted
	return nil
}

// RunTasks is an alias for Run.
func (r *TaskRunner) RunTasks(ctx context.Context) (*SharedContext, error) {
	return r.Run(ctx)
}

// Run executes every registered task and returns the shared context.
//
// Stages run in order. With ExitOnError the first unsuppressed failure
// stops the run and the remaining tasks are skipped; otherwise every task
// runs and failures are collected. Any failure is returned as a
// RuntimeError whose cause is the task failure.
func (r *TaskRunner) Run(ctx context.Context) (*SharedContext, error) {
	r.mu.Lock()
	if r.state != StateNotStarted {
		state := r.state
		r.mu.Unlock()
		return nil, toolerr.NewValidationError(
			fmt.Sprintf("Cannot run a task runner in state %s. Call Reset first.", state), runnerSource+".Run",
			toolerr.ValidationDetail{Argument: "state", Expected: StateNotStarted.String(), Received: state.String()})
	}
	r.state = StateRunning
	r.runID = uuid.NewString()
	units := append([]scheduler.Unit(nil), r.units...)
	sc := r.sc
	runID := r.runID
	r.mu.Unlock()

	run := newRunState(r, runID, units)
	err := run.execute(ctx, sc)

	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
	} else {
		r.state = StateCompleted
	}
	r.mu.Unlock()

	return sc, err
}

// concurrentUnit forces a unit into a concurrent stage.
type concurrentUnit struct {
	scheduler.Unit
}

func (concurrentUnit) Concurrent() bool { return true }

func unwrap(u scheduler.Unit) scheduler.Unit {
	if c, ok := u.(concurrentUnit); ok {
		return c.Unit
	}
	return u
}

func commandOf(u scheduler.Unit) string {
	if ct, ok := unwrap(u).(*scheduler.CommandTask); ok {
		return ct.Command()
	}
	return ""
}

// runState is the bookkeeping of a single Run call.
type runState struct {
	r       *TaskRunner
	id      string
	units   []scheduler.Unit
	started time.Time
	// recorded is set once the run start reached the Recorder.
	recorded bool

	mu       sync.Mutex
	progress events.RunProgressEvent
	failures []failure
}

type failure struct {
	title string
	err   error
}

func newRunState(r *TaskRunner, id string, units []scheduler.Unit) *runState {
	rs := &runState{
		r:        r,
		id:       id,
		progress: events.RunProgressEvent{RunID: id, Total: len(units), Pending: len(units)},
	}
	for _, u := range units {
		if r.opts.Concurrent && !u.Concurrent() {
			u = concurrentUnit{u}
		}
		rs.units = append(rs.units, u)
	}
	return rs
}

// taskID numbers tasks from 1 in registration order.
func taskID(seq int) string {
	return fmt.Sprintf("task-%d", seq+1)
}

func (rs *runState) execute(ctx context.Context, sc *SharedContext) error {
	deps := rs.r.deps
	opts := rs.r.opts
	rs.started = time.Now()

	stages, err := scheduler.Plan(rs.units)
	if err != nil {
		rs.finish(ctx, err)
		return err
	}

	deps.Tracer.Obj(traceRunner, "stages", stageTitles(stages))
	deps.Bus.Publish(events.TopicRun, events.RunStartedEvent{
		RunID: rs.id, Name: opts.Name, Tasks: len(rs.units), Stages: len(stages), Timestamp: rs.started,
	})
	if deps.Recorder != nil {
		if err := deps.Recorder.StartRun(ctx, persistence.Run{
			ID: rs.id, Name: opts.Name, Status: persistence.RunRunning, TaskCount: len(rs.units), StartedAt: rs.started,
		}); err != nil {
			deps.Logger.Warn().Err(err).Str("run", rs.id).Msg("failed to record run start")
		} else {
			rs.recorded = true
		}
	}

	env := &scheduler.Env{
		Executor: deps.Executor,
		Context:  sc,
		Locks:    scheduler.NewResourceLockManager(),
		Breakers: deps.Breakers,
		Tracer:   deps.Tracer,
		Out:      deps.Out,
		Depth:    deps.Tracer.Depth(),
		Color:    opts.ForceColor,
		Logger:   deps.Logger,
	}
	exec := scheduler.NewExecutor(env, opts.ConcurrencyLimit)
	exec.OnStart = rs.onStart
	exec.OnFinish = rs.onFinish

	stopped := false
	for _, stage := range stages {
		if stopped || ctx.Err() != nil {
			for i, u := range stage.Units {
				rs.skip(ctx, stage.Seq(i), u)
			}
			continue
		}

		deps.Bus.Publish(events.TopicRun, events.StageStartedEvent{
			RunID: rs.id, Index: stage.Index, Concurrent: stage.Concurrent, Titles: stage.Titles(), Timestamp: time.Now(),
		})

		for _, res := range exec.RunStage(ctx, stage, opts.ExitOnError) {
			if res.Skipped {
				rs.skip(ctx, res.Seq, res.Unit)
			}
		}

		rs.mu.Lock()
		failed := len(rs.failures) > 0
		progress := rs.progress
		rs.mu.Unlock()

		progress.Timestamp = time.Now()
		deps.Bus.Publish(events.TopicRun, progress)
		stopped = failed && opts.ExitOnError
	}

	runErr := rs.result(ctx)
	rs.finish(ctx, runErr)
	return runErr
}

func (rs *runState) onStart(seq int, u scheduler.Unit) {
	deps := rs.r.deps
	deps.Tracer.Str(traceRunner, "start", u.Title())
	deps.Bus.Publish(events.TopicTask, events.TaskStartedEvent{
		RunID: rs.id, ID: taskID(seq), Title: u.Title(), Command: commandOf(u), Timestamp: time.Now(),
	})
}

func (rs *runState) onFinish(res scheduler.UnitResult) {
	deps := rs.r.deps
	u := res.Unit
	duration := res.Finished.Sub(res.Started)
	record := persistence.TaskRun{
		RunID:     rs.id,
		Seq:       res.Seq + 1,
		Title:     u.Title(),
		Command:   commandOf(u),
		Attempts:  res.Outcome.Attempts,
		StartedAt: res.Started,
		Duration:  duration,
	}
	if res.Outcome.Result != nil {
		record.ExitCode = res.Outcome.Result.ExitCode
	}

	rs.mu.Lock()
	rs.progress.Pending--
	switch {
	case res.Err != nil:
		rs.progress.Failed++
		rs.failures = append(rs.failures, failure{title: u.Title(), err: res.Err})
	case res.Outcome.Suppressed:
		rs.progress.Suppressed++
	default:
		rs.progress.Completed++
	}
	rs.mu.Unlock()

	switch {
	case res.Err != nil:
		record.Status = persistence.TaskFailed
		record.Error = res.Err.Error()
		record.ExitCode = exitCodeOf(res.Err, record.ExitCode)
		deps.Logger.Debug().Str("task", u.Title()).Err(res.Err).Msg("task failed")
		deps.Bus.Publish(events.TopicTask, events.TaskFailedEvent{
			RunID: rs.id, ID: taskID(res.Seq), Title: u.Title(), Err: res.Err, Duration: duration, Timestamp: res.Finished,
		})
	case res.Outcome.Suppressed:
		record.Status = persistence.TaskSuppressed
		if res.Outcome.Err != nil {
			record.Error = res.Outcome.Err.Error()
			record.ExitCode = exitCodeOf(res.Outcome.Err, record.ExitCode)
		}
		deps.Bus.Publish(events.TopicTask, events.TaskSuppressedEvent{
			RunID: rs.id, ID: taskID(res.Seq), Title: u.Title(), Err: res.Outcome.Err, Duration: duration, Timestamp: res.Finished,
		})
	default:
		record.Status = persistence.TaskCompleted
		deps.Bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			RunID: rs.id, ID: taskID(res.Seq), Title: u.Title(), Attempts: res.Outcome.Attempts, Duration: duration, Timestamp: res.Finished,
		})
	}

	rs.record(context.Background(), record)
}

func (rs *runState) skip(ctx context.Context, seq int, u scheduler.Unit) {
	rs.mu.Lock()
	rs.progress.Pending--
	rs.progress.Skipped++
	rs.mu.Unlock()

	rs.r.deps.Tracer.Str(traceRunner, "skip", u.Title())
	rs.r.deps.Bus.Publish(events.TopicTask, events.TaskSkippedEvent{
		RunID: rs.id, ID: taskID(seq), Title: u.Title(), Timestamp: time.Now(),
	})
	rs.record(ctx, persistence.TaskRun{
		RunID: rs.id, Seq: seq + 1, Title: u.Title(), Command: commandOf(u), Status: persistence.TaskSkipped,
	})
}

func (rs *runState) record(ctx context.Context, tr persistence.TaskRun) {
	rec := rs.r.deps.Recorder
	if rec == nil || !rs.recorded {
		return
	}
	if err := rec.RecordTask(context.WithoutCancel(ctx), tr); err != nil {
		rs.r.deps.Logger.Warn().Err(err).Str("run", rs.id).Str("task", tr.Title).Msg("failed to record task")
	}
}

// result builds the error returned by Run from the collected failures.
func (rs *runState) result(ctx context.Context) error {
	rs.mu.Lock()
	failures := append([]failure(nil), rs.failures...)
	rs.mu.Unlock()

	var cause error
	switch {
	case len(failures) == 1:
		cause = failures[0].err
	case len(failures) > 1 && rs.r.opts.CollectErrors == CollectFull:
		errs := make([]error, len(failures))
		for i, f := range failures {
			errs[i] = f.err
		}
		cause = errors.Join(errs...)
	case len(failures) > 1:
		cause = failures[0].err
	case ctx.Err() != nil:
		cause = ctx.Err()
	default:
		return nil
	}

	rtErr := toolerr.NewRuntimeError("Runtime Error", runnerSource, cause)
	if len(failures) > 0 {
		titles := make([]string, len(failures))
		messages := make([]string, len(failures))
		for i, f := range failures {
			titles[i] = f.title
			messages[i] = f.err.Error()
		}
		rtErr.Detail = map[string]any{"failedTasks": titles, "errors": messages}
	}
	rtErr.AddToStack("TaskRunner.Run")
	return rtErr
}

func (rs *runState) finish(ctx context.Context, runErr error) {
	deps := rs.r.deps
	status, state := persistence.RunCompleted, StateCompleted
	errMsg := ""
	if runErr != nil {
		status, state = persistence.RunFailed, StateFailed
		errMsg = runErr.Error()
	}
	finished := time.Now()

	deps.Bus.Publish(events.TopicRun, events.RunFinishedEvent{
		RunID: rs.id, State: state.String(), Err: runErr, Duration: finished.Sub(rs.started), Timestamp: finished,
	})
	deps.Tracer.Str(traceRunner, "finished", state.String())

	if deps.Recorder == nil || !rs.recorded {
		return
	}
	if err := deps.Recorder.FinishRun(context.WithoutCancel(ctx), rs.id, status, errMsg, finished); err != nil {
		deps.Logger.Warn().Err(err).Str("run", rs.id).Msg("failed to record run finish")
	}
}

func exitCodeOf(err error, fallback int) int {
	var perr *backend.ProcessError
	if errors.As(err, &perr) {
		return perr.ExitCode
	}
	return fallback
}

func stageTitles(stages []scheduler.Stage) [][]string {
	out := make([][]string, len(stages))
	for i, s := range stages {
		out[i] = s.Titles()
	}
	return out
}
