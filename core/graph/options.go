package graph

import (
	"log/slog"
	"time"

	"github.com/wanderloop/wanderloop/checkpoint"
	"github.com/wanderloop/wanderloop/core/cancel"
)

// Option configures graph-level behavior. Options are applied by
// NewBuilder.
type Option func(*graphConfig)

// InvokeOption configures a single run.
type InvokeOption func(*invokeConfig)

// WithLogger sets the structured logger used for step lifecycle events.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(config *graphConfig) {
		config.logger = logger
	}
}

// WithMaxSteps bounds the number of step executions in one run. Conditional
// edges may route backwards, so the budget is what turns a routing bug into
// a ConfigError instead of an endless loop. Defaults to 64.
func WithMaxSteps(maxSteps int) Option {
	return func(config *graphConfig) {
		if maxSteps > 0 {
			config.maxSteps = maxSteps
		}
	}
}

// WithStepTimeout bounds each individual step's execution. Zero (the
// default) means steps run under the caller's context deadline only.
func WithStepTimeout(timeout time.Duration) Option {
	return func(config *graphConfig) {
		config.stepTimeout = timeout
	}
}

// WithCheckpoints attaches a checkpoint store. Runs invoked with a thread
// ID save their final state under it with the given TTL, and WithResume
// restores from it. Without this option, thread IDs are inert.
func WithCheckpoints(store checkpoint.Store, ttl time.Duration) Option {
	return func(config *graphConfig) {
		config.checkpoints = store
		config.checkpointTTL = ttl
	}
}

// invokeConfig holds per-run settings populated by InvokeOptions.
type invokeConfig struct {
	threadID string
	resume   bool
	token    *cancel.Token
}

// WithThread names the conversation thread this run belongs to. The final
// state is checkpointed under the thread ID when the graph was built with
// WithCheckpoints.
func WithThread(threadID string) InvokeOption {
	return func(config *invokeConfig) {
		config.threadID = threadID
	}
}

// WithResume restores the thread's checkpointed state before the run
// starts, when one exists and has not expired. The seed update still merges
// on top of the restored state. A load failure falls back to a fresh state
// rather than failing the run.
func WithResume() InvokeOption {
	return func(config *invokeConfig) {
		config.resume = true
	}
}

// WithCancelToken attaches a session cancellation token. The engine polls
// it between steps and aborts the run once it fires; steps that make long
// provider calls race them against the same token with cancel.Watch.
func WithCancelToken(token *cancel.Token) InvokeOption {
	return func(config *invokeConfig) {
		config.token = token
	}
}
