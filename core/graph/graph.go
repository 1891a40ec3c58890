package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wanderloop/wanderloop/checkpoint"
)

// StepName identifies a step within a graph.
type StepName string

// End is the terminal routing target. Routing to End finishes the run; it
// can never be the name of a real step.
const End StepName = "__end__"

// StepFunc is the processing logic of a single step. It reads the current
// state and returns a partial update describing its writes. Returning both
// an update and an error is allowed: the update is merged before the error
// is recorded, so partial progress from a degraded step is kept.
type StepFunc func(ctx context.Context, state *State) (*Update, error)

// Router picks the next step after its source step's update has been
// merged, so the decision always sees the freshest state. The returned name
// must be one of the targets declared on the conditional edge (or End).
type Router func(ctx context.Context, state *State) StepName

// ConfigError reports a wiring mistake: an invalid graph structure, a
// router escaping its declared targets, an update from a foreign schema, or
// an exhausted step budget. Config errors abort the run; they are bugs, not
// data conditions.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "graph configuration: " + e.Reason
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// step is a named unit of work registered on a builder.
type step struct {
	name StepName
	fn   StepFunc
}

// edge is the single outgoing route of a step: either a fixed target or a
// router with its declared target set.
type edge struct {
	from    StepName
	to      StepName
	router  Router
	targets []StepName
}

// allows reports whether target is a declared outcome of this edge.
func (e *edge) allows(target StepName) bool {
	for _, declared := range e.targets {
		if declared == target {
			return true
		}
	}
	return false
}

// graphConfig holds graph-level settings populated by Options.
type graphConfig struct {
	logger        *slog.Logger
	maxSteps      int
	stepTimeout   time.Duration
	checkpoints   checkpoint.Store
	checkpointTTL time.Duration
}

// defaultMaxSteps bounds a run when WithMaxSteps is not given. Conditional
// edges may legally route backwards (retry loops), so some bound must exist
// to turn a routing bug into an error instead of a spin.
const defaultMaxSteps = 64

// Graph is a validated, executable step graph over a declared state schema.
// Build one per process from injected dependencies and call Invoke per
// session; the graph itself holds no per-run state, so concurrent Invoke
// calls on the same instance are safe.
type Graph struct {
	schema   *Schema
	steps    map[StepName]*step
	outgoing map[StepName]*edge
	entry    StepName
	config   *graphConfig
}

// StepFault records one degraded step in a run: the step failed, its
// partial update (if any) was merged, and the run continued.
type StepFault struct {
	Step StepName
	Err  error
}

// Result carries the final state and run metadata after a completed run.
type Result struct {
	// State is the fully merged state after the last step.
	State *State

	// Path lists the steps executed in order.
	Path []StepName

	// Faults lists the steps that failed along the way. An empty list
	// means a clean run; a non-empty list means the result is degraded
	// but still usable.
	Faults []StepFault

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Degraded reports whether any step failed during the run.
func (r *Result) Degraded() bool {
	return len(r.Faults) > 0
}
