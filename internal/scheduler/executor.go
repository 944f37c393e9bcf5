package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// UnitResult is the outcome of one unit within a stage.
type UnitResult struct {
	Unit Unit
	// Seq is the 0-based registration position of Unit.
	Seq      int
	Outcome  Outcome
	Err      error
	Started  time.Time
	Finished time.Time
	// Skipped is set for units that never started because an earlier
	// failure stopped the stage or the run was cancelled.
	Skipped bool
}

// Executor runs stages against a shared Env.
//
// OnStart and OnFinish, when set, are called around every unit. For
// concurrent stages they are called from several goroutines.
type Executor struct {
	env      *Env
	limit    int
	OnStart  func(seq int, u Unit)
	OnFinish func(r UnitResult)
}

// NewExecutor creates an Executor. limit bounds the number of units of a
// concurrent stage running at once; values below 1 mean 4.
func NewExecutor(env *Env, limit int) *Executor {
	if limit < 1 {
		limit = 4
	}
	if env.Context == nil {
		env.Context = NewSharedContext()
	}
	return &Executor{env: env, limit: limit}
}

// RunStage runs every unit of stage and returns their results in
// registration order.
//
// With failFast, a failing unit of a sequential stage skips the units
// after it. A concurrent stage always runs to completion: a failing unit
// never cancels its siblings, and the caller stops before the next stage.
// Units of a concurrent stage each write to an isolated overlay of the
// shared context; overlays are merged back in registration order once all
// units have finished.
func (e *Executor) RunStage(ctx context.Context, stage Stage, failFast bool) []UnitResult {
	results := make([]UnitResult, len(stage.Units))

	if !stage.Concurrent {
		stopped := false
		for i, u := range stage.Units {
			if stopped {
				results[i] = UnitResult{Unit: u, Seq: stage.Seq(i), Skipped: true}
				continue
			}
			results[i] = e.runUnit(ctx, stage.Seq(i), u, e.env)
			stopped = failFast && results[i].Err != nil
		}
		return results
	}

	g := &errgroup.Group{}
	g.SetLimit(e.limit)

	overlays := make([]*SharedContext, len(stage.Units))
	for i, u := range stage.Units {
		env := *e.env
		overlays[i] = e.env.Context.Overlay()
		env.Context = overlays[i]

		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = UnitResult{Unit: u, Seq: stage.Seq(i), Skipped: true}
				return nil
			}
			results[i] = e.runUnit(ctx, stage.Seq(i), u, &env)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range overlays {
		e.env.Context.Merge(o)
	}
	return results
}

func (e *Executor) runUnit(ctx context.Context, seq int, u Unit, env *Env) UnitResult {
	if e.OnStart != nil {
		e.OnStart(seq, u)
	}
	r := UnitResult{Unit: u, Seq: seq, Started: time.Now()}
	r.Outcome, r.Err = u.Run(ctx, env)
	r.Finished = time.Now()
	if e.OnFinish != nil {
		e.OnFinish(r)
	}
	return r
}
