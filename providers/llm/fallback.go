package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/core/retry"
)

// FallbackScriptModel wraps a primary and a secondary ScriptModel. The
// primary runs under the retry policy; once its attempts are exhausted the
// call is rerun on the secondary model instead of failing outright. The
// secondary is expected to be a cheaper, lower-tier model whose output is
// acceptable as degraded narration.
//
// Cancellation and fatal (non-transient) errors propagate immediately and
// never trigger the fallback: a cancelled session must stop, and a prompt
// the primary rejects as malformed will not fare better on the secondary.
type FallbackScriptModel struct {
	primary   ScriptModel
	secondary ScriptModel
	policy    retry.Policy
	logger    *slog.Logger
}

var _ ScriptModel = (*FallbackScriptModel)(nil)

// FallbackOption configures a FallbackScriptModel.
type FallbackOption func(*FallbackScriptModel)

// WithRetryPolicy replaces the retry policy applied to each model. The
// policy's Retryable predicate defaults to [Retryable] when unset.
func WithRetryPolicy(policy retry.Policy) FallbackOption {
	return func(model *FallbackScriptModel) {
		model.policy = policy
	}
}

// WithLogger sets the logger used for fallback events. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) FallbackOption {
	return func(model *FallbackScriptModel) {
		model.logger = logger
	}
}

// NewFallbackScriptModel builds the degradation wrapper around primary and
// secondary.
func NewFallbackScriptModel(primary, secondary ScriptModel, opts ...FallbackOption) *FallbackScriptModel {
	model := &FallbackScriptModel{
		primary:   primary,
		secondary: secondary,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(model)
	}

	if model.policy.Retryable == nil {
		model.policy.Retryable = Retryable
	}

	return model
}

// Generate runs the prompt on the primary model under the retry policy,
// substituting the secondary model when the primary exhausts its attempts.
// When both models fail, the returned error carries both failures.
func (model *FallbackScriptModel) Generate(ctx context.Context, prompt Prompt) (string, error) {
	text, primaryErr := retry.Do(ctx, model.policy, func(ctx context.Context) (string, error) {
		return model.primary.Generate(ctx, prompt)
	})
	if primaryErr == nil {
		return text, nil
	}

	if ctx.Err() != nil || cancel.IsCancellation(primaryErr) {
		return "", primaryErr
	}

	if !errors.Is(primaryErr, retry.ErrAttemptsExhausted) {
		return "", primaryErr
	}

	model.logger.Warn("primary script model exhausted retries, falling back",
		"error", primaryErr)

	text, secondaryErr := retry.Do(ctx, model.policy, func(ctx context.Context) (string, error) {
		return model.secondary.Generate(ctx, prompt)
	})
	if secondaryErr != nil {
		return "", fmt.Errorf("script generation failed on both models: %w", errors.Join(primaryErr, secondaryErr))
	}

	return text, nil
}
