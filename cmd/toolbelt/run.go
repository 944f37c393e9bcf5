package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aristath/toolbelt/internal/backend"
	"github.com/aristath/toolbelt/internal/config"
	"github.com/aristath/toolbelt/internal/events"
	"github.com/aristath/toolbelt/internal/orchestrator"
	"github.com/aristath/toolbelt/internal/persistence"
	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/tui"
	"github.com/aristath/toolbelt/internal/workflow"
)

type runFlags struct {
	dryRun      bool
	noHistory   bool
	concurrency int
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow",
		Long: `Run the tasks of a workflow file in order.

Progress is shown interactively on a terminal (q or ctrl+c cancels) and as
one line per task otherwise. Runs are recorded in the history database
unless history is disabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0], f)
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "list the commands instead of running them")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "do not record this run")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 0, "limit of concurrently running tasks (overrides config and workflow)")
	return cmd
}

func (a *app) run(ctx context.Context, path string, f runFlags) error {
	cfg := a.cfg

	wf, err := workflow.Load(path)
	if err != nil {
		return err
	}
	retry, err := retryDefaults(cfg.Retry)
	if err != nil {
		return err
	}

	execType := "shell"
	if f.dryRun {
		execType = "dry-run"
	}
	pm := backend.NewProcessManager()
	executor, err := backend.New(backend.Config{
		Type:    execType,
		Shell:   cfg.Executor.Shell,
		WorkDir: cfg.Executor.WorkDir,
		Env:     envList(cfg.Executor.Env),
	}, pm, a.tracer)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	deps := orchestrator.Deps{
		Executor: executor,
		Bus:      bus,
		Tracer:   a.tracer,
		Logger:   a.logger,
		Out:      a.stderr,
	}
	if cfg.Breaker.Enabled {
		timeout, err := cfg.Breaker.OpenTimeout()
		if err != nil {
			return err
		}
		deps.Breakers = scheduler.NewBreakerRegistry(cfg.Breaker.Trips, timeout, a.logger)
	}
	if cfg.History.Enabled && !f.noHistory && !f.dryRun {
		store, err := a.openStore(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("run history disabled")
		} else {
			defer store.Close()
			deps.Recorder = store
		}
	}

	opts := wf.RunnerOptions(runnerOptions(cfg.Runner))
	if f.concurrency > 0 {
		opts.ConcurrencyLimit = f.concurrency
	}
	runner, err := orchestrator.NewSession(deps).NewRunner(opts)
	if err != nil {
		return err
	}
	sc := runner.Context()
	for k, v := range cfg.Vars {
		sc.Set(k, v)
	}
	if err := wf.Register(runner, retry); err != nil {
		return err
	}
	a.logger.Debug().Str("workflow", wf.Path).Int("tasks", len(wf.Tasks)).Msg("workflow loaded")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wait := tui.Watch(bus, a.stdout, opts.ForceTTY && isTerminal(a.stdout), opts.ForceColor, cancel)
	_, runErr := runner.Run(ctx)
	bus.Close()
	if err := wait(); err != nil {
		a.logger.Warn().Err(err).Msg("progress view failed")
	}

	if ctx.Err() != nil {
		for _, c := range pm.Running() {
			a.logger.Warn().Str("command", c).Msg("killing interrupted command")
		}
		if err := pm.KillAll(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to kill subprocesses")
		}
	}
	if dry, ok := executor.(*backend.DryRunExecutor); ok {
		for _, c := range dry.Commands() {
			fmt.Fprintln(a.stdout, c)
		}
	}
	return runErr
}

func (a *app) openStore(ctx context.Context) (*persistence.SQLiteStore, error) {
	path := a.cfg.History.Path
	if path == "" {
		var err error
		if path, err = persistence.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return persistence.NewSQLiteStore(ctx, path)
}

func runnerOptions(rc config.RunnerConfig) orchestrator.RunnerOptions {
	opts := orchestrator.DefaultRunnerOptions()
	opts.Concurrent = rc.Concurrent
	opts.ExitOnError = rc.ExitOnError
	opts.CollectErrors = rc.CollectErrors
	opts.ConcurrencyLimit = rc.ConcurrencyLimit
	opts.ForceColor = rc.ForceColor
	opts.ForceTTY = rc.ForceTTY
	return opts
}

func retryDefaults(rc config.RetryConfig) (scheduler.RetryConfig, error) {
	retry := scheduler.DefaultRetryConfig()
	retry.MaxAttempts = rc.Attempts
	interval, err := rc.Interval()
	if err != nil {
		return retry, err
	}
	if interval > 0 {
		retry.InitialInterval = interval
	}
	return retry, nil
}

// envList turns the executor environment into KEY=VALUE pairs, sorted for
// stable traces.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
