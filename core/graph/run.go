package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderloop/wanderloop/checkpoint"
	"github.com/wanderloop/wanderloop/core/cancel"
)

// Invoke runs the graph to completion: starting from the entry step, each
// iteration executes the current step, merges its update through the schema
// reducers, then routes to the next step using the post-merge state, until
// routing reaches End.
//
// Step failures do not abort the run. The failing step's partial update is
// merged, the failure is recorded as a StepFault on the Result, and routing
// continues; steps and routers own their degraded-output policy. Only two
// classes abort: a ConfigError (including a router escaping its declared
// targets and an exhausted step budget) and cancellation, either through
// ctx or through the session token given with WithCancelToken.
//
// The seed update is merged into a fully defaulted (or checkpoint-restored)
// state before the first step runs, so steps never observe missing fields.
func (g *Graph) Invoke(ctx context.Context, seed *Update, opts ...InvokeOption) (*Result, error) {
	var cfg invokeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := g.config.logger
	started := time.Now()

	state, err := g.initialState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := g.schema.apply(state.values, seed); err != nil {
		return nil, err
	}

	var (
		path     []StepName
		faults   []StepFault
		stepsRun int
	)

	current := g.entry
	for current != End {
		if err := runInterrupted(ctx, cfg.token); err != nil {
			logger.Info("run cancelled", "step", current, "thread", cfg.threadID)
			return nil, err
		}

		if stepsRun >= g.config.maxSteps {
			return nil, configErrorf("step budget of %d exhausted at step %q; check for a routing loop", g.config.maxSteps, current)
		}

		stepStart := time.Now()
		update, stepErr := g.runStep(ctx, g.steps[current], state)

		// Merge before inspecting the error so partial progress from a
		// degraded step is kept.
		if mergeErr := g.schema.apply(state.values, update); mergeErr != nil {
			return nil, mergeErr
		}

		stepsRun++
		path = append(path, current)

		if stepErr != nil {
			if cancel.IsCancellation(stepErr) {
				logger.Info("run cancelled", "step", current, "thread", cfg.threadID)
				return nil, stepErr
			}
			var configErr *ConfigError
			if errors.As(stepErr, &configErr) {
				return nil, stepErr
			}

			faults = append(faults, StepFault{Step: current, Err: stepErr})
			logger.Warn("step degraded",
				"step", current,
				"error", stepErr,
				"duration", time.Since(stepStart),
			)
		} else {
			logger.Debug("step completed",
				"step", current,
				"duration", time.Since(stepStart),
			)
		}

		next, routeErr := g.route(ctx, current, state)
		if routeErr != nil {
			return nil, routeErr
		}
		logger.Debug("routed", "from", current, "to", next)
		current = next
	}

	result := &Result{
		State:    state,
		Path:     path,
		Faults:   faults,
		Duration: time.Since(started),
	}

	g.saveCheckpoint(ctx, cfg, state)

	logger.Info("run completed",
		"steps", stepsRun,
		"faults", len(faults),
		"duration", result.Duration,
		"thread", cfg.threadID,
	)

	return result, nil
}

// initialState returns the state the run starts from: the thread's restored
// checkpoint when resuming, a fully defaulted state otherwise. Checkpoint
// load failures degrade to a fresh state; a checkpoint that cannot be
// restored into the schema aborts, since running on half-coerced state
// would corrupt the thread.
func (g *Graph) initialState(ctx context.Context, cfg invokeConfig) (*State, error) {
	if !cfg.resume || g.config.checkpoints == nil || cfg.threadID == "" {
		return NewState(g.schema), nil
	}

	record, err := g.config.checkpoints.Load(ctx, cfg.threadID)
	if err != nil {
		g.config.logger.Warn("checkpoint load failed; starting fresh", "thread", cfg.threadID, "error", err)
		return NewState(g.schema), nil
	}
	if record == nil {
		return NewState(g.schema), nil
	}

	state, err := g.schema.Restore(record.State)
	if err != nil {
		return nil, fmt.Errorf("thread %q: %w", cfg.threadID, err)
	}

	g.config.logger.Debug("resumed from checkpoint", "thread", cfg.threadID, "saved_at", record.CreatedAt)
	return state, nil
}

// saveCheckpoint persists the final state for the run's thread. A save
// failure is logged but does not fail a run that already completed.
func (g *Graph) saveCheckpoint(ctx context.Context, cfg invokeConfig, state *State) {
	if g.config.checkpoints == nil || cfg.threadID == "" {
		return
	}

	record := checkpoint.Record{
		ThreadID:  cfg.threadID,
		State:     state.Snapshot(),
		CreatedAt: time.Now(),
		TTL:       g.config.checkpointTTL,
	}

	if err := g.config.checkpoints.Save(ctx, record); err != nil {
		g.config.logger.Warn("checkpoint save failed", "thread", cfg.threadID, "error", err)
	}
}

// runStep executes one step with panic isolation and the optional per-step
// timeout. A panicking step is reported as a step failure, not a crash.
func (g *Graph) runStep(ctx context.Context, st *step, state *State) (update *Update, err error) {
	stepCtx := ctx
	if g.config.stepTimeout > 0 {
		var cancelStep context.CancelFunc
		stepCtx, cancelStep = context.WithTimeout(ctx, g.config.stepTimeout)
		defer cancelStep()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			update = nil
			err = fmt.Errorf("step %q panicked: %v", st.name, recovered)
		}
	}()

	return st.fn(stepCtx, state)
}

// route resolves the next step after current using its single outgoing
// edge. Routers are evaluated against post-merge state; a result outside
// the declared target set is a wiring bug and aborts the run.
func (g *Graph) route(ctx context.Context, current StepName, state *State) (StepName, error) {
	out := g.outgoing[current]

	if out.router == nil {
		return out.to, nil
	}

	next := out.router(ctx, state)
	if !out.allows(next) {
		return End, configErrorf("router for step %q returned undeclared target %q", current, next)
	}
	return next, nil
}

// runInterrupted reports the reason the run should stop before the next
// step, if any: a done context or a fired session token.
func runInterrupted(ctx context.Context, token *cancel.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token != nil {
		if err := token.Err(); err != nil {
			return err
		}
	}
	return nil
}
