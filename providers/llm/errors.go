package llm

import (
	"errors"
	"fmt"

	"github.com/wanderloop/wanderloop/core/retry"
)

// ProviderError is a model call failure carrying the upstream HTTP status.
// The status appears in the error text as well, so callers that classify
// errors by message (legacy predicates, log scrapes) keep working.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Message)
}

// Transient reports whether the failure is worth retrying: rate limits and
// server-side errors are transient, everything else (auth, bad request) is
// fatal for the current prompt.
func (e *ProviderError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}

// Retryable is the retry predicate for model calls. Typed provider errors
// are classified by status; untyped errors fall back to the text-based
// default, which recognizes status codes embedded in the message.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient()
	}

	return retry.DefaultRetryable(err)
}
