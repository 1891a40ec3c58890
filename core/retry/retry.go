// Package retry provides bounded retries with exponential backoff for
// provider calls. Only errors classified as transient by the policy are
// retried; everything else propagates immediately so validation bugs and
// cancellations are never masked by repeated attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// ErrAttemptsExhausted is wrapped into the error returned when every attempt
// allowed by the policy has failed with a retryable error. Callers unwrap it
// with errors.Is to trigger degradation paths such as a fallback model.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy holds the tuning parameters for Do. Zero values are replaced with
// the defaults documented on each field.
type Policy struct {
	// MaxRetries is the number of retry attempts after the first failure.
	// A value of 3 means the operation runs at most 4 times. Default: 3.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential growth multiplier
	// (backoff = min(InitialBackoff * BackoffFactor^attempt, MaxBackoff)).
	// Default: 2.0.
	BackoffFactor float64

	// JitterFraction adds random noise in [0, JitterFraction*backoff] to
	// spread out concurrent retries. Default: 0.1.
	JitterFraction float64

	// Retryable reports whether an error should trigger another attempt.
	// The default retries on HTTP status codes 429, 500, 502, 503 and 529
	// by matching the error text, which is how provider errors carry their
	// status downstream.
	Retryable func(error) bool
}

// DefaultRetryable is the retry predicate used when Policy.Retryable is nil.
// It treats rate limits and server-side failures as transient.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	message := err.Error()

	for _, code := range []string{"429", "500", "502", "503", "529"} {
		if strings.Contains(message, code) {
			return true
		}
	}

	return false
}

func (p *Policy) applyDefaults() {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}

	if p.InitialBackoff == 0 {
		p.InitialBackoff = time.Second
	}

	if p.MaxBackoff == 0 {
		p.MaxBackoff = 30 * time.Second
	}

	if p.BackoffFactor == 0 {
		p.BackoffFactor = 2.0
	}

	if p.JitterFraction == 0 {
		p.JitterFraction = 0.1
	}

	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
}

// computeBackoff returns the wait before retry number attempt (0-indexed).
// backoff = min(InitialBackoff * BackoffFactor^attempt, MaxBackoff) + jitter
func computeBackoff(policy Policy, attempt int) time.Duration {
	base := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}

	jitter := base * policy.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter is intentional
	return time.Duration(base + jitter)
}

// Do runs op, retrying per the policy while the error is retryable. The
// context is respected both during op and while waiting out a backoff, so a
// cancelled run never sits in a retry loop.
//
// On exhaustion the returned error wraps both ErrAttemptsExhausted and the
// last operation error, allowing callers to unwrap either.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	policy.applyDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := computeBackoff(policy, attempt-1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !policy.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d retries: %w", ErrAttemptsExhausted, policy.MaxRetries, lastErr)
}
