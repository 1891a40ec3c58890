// Package fanout runs independent work items concurrently and joins their
// results back in input order. It exists for the per-stop phases of
// audioguide generation (script writing, speech synthesis), where one slow
// or broken stop must never lose the others' work: every item gets a slot in
// the output, failures included.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wanderloop/wanderloop/core/cancel"
)

// Status classifies what happened to a single work item.
type Status string

const (
	// StatusOK means the task completed and Value is populated.
	StatusOK Status = "ok"

	// StatusFailed means the task returned an error or panicked; Err is set.
	StatusFailed Status = "failed"

	// StatusCancelled means the run was cancelled before or during the task.
	StatusCancelled Status = "cancelled"
)

// Kind labels what a work item produces. The audioguide pipeline mixes the
// tour introduction and the per-stop narrations in a single batch.
type Kind string

const (
	KindIntro Kind = "intro"
	KindStop  Kind = "stop"
)

// Item is one unit of work. Index is the caller's stable position for the
// item (for stops, the stop's position in the tour) and is carried through
// to the Outcome untouched.
type Item[P any] struct {
	Index   int
	Kind    Kind
	Payload P
}

// Outcome records the result of one item. The outcome slice returned by Run
// always has the same length as the input, with outcome i describing item i,
// so downstream assembly never has to reorder or guess which slots are
// missing.
type Outcome[R any] struct {
	Index  int
	Kind   Kind
	Status Status
	Value  R
	Err    error
}

// Failed reports whether the item did not produce a usable value.
func (o Outcome[R]) Failed() bool {
	return o.Status != StatusOK
}

// Task processes a single item. Tasks run concurrently and must not share
// mutable state through the payload.
type Task[P, R any] func(ctx context.Context, item Item[P]) (R, error)

// Run executes task over all items with at most limit running concurrently
// (limit <= 0 means unbounded). Item failures are recorded in their outcome
// slot and never abort the batch; the returned error is non-nil only when
// the context was cancelled, in which case not-yet-finished items are marked
// StatusCancelled.
func Run[P, R any](ctx context.Context, items []Item[P], limit int, task Task[P, R]) ([]Outcome[R], error) {
	outcomes := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return outcomes, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}

	for position, item := range items {
		group.Go(func() error {
			outcomes[position] = runOne(groupCtx, item, task)
			return nil
		})
	}

	// Tasks record their own failures; Wait only joins the goroutines.
	_ = group.Wait()

	return outcomes, ctx.Err()
}

// runOne executes a single task with panic isolation. A panicking item is
// converted into a failed outcome so one malformed stop cannot take down
// the whole batch.
func runOne[P, R any](ctx context.Context, item Item[P], task Task[P, R]) (outcome Outcome[R]) {
	outcome = Outcome[R]{Index: item.Index, Kind: item.Kind}

	defer func() {
		if recovered := recover(); recovered != nil {
			outcome.Status = StatusFailed
			outcome.Err = fmt.Errorf("task panicked: %v", recovered)
		}
	}()

	if ctx.Err() != nil {
		outcome.Status = StatusCancelled
		outcome.Err = context.Cause(ctx)
		return outcome
	}

	value, err := task(ctx, item)
	if err != nil {
		if cancel.IsCancellation(err) {
			outcome.Status = StatusCancelled
		} else {
			outcome.Status = StatusFailed
		}
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusOK
	outcome.Value = value
	return outcome
}

// Tally counts outcomes by status. Useful for deciding whether a batch is
// complete, partial, or a total loss.
func Tally[R any](outcomes []Outcome[R]) (ok, failed, cancelled int) {
	for _, outcome := range outcomes {
		switch outcome.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		}
	}
	return ok, failed, cancelled
}
