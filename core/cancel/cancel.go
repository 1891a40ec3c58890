// Package cancel implements cooperative, session-scoped cancellation.
//
// A user may abandon a generation run at any point (close the app, start a
// new tour), so every long-running phase checks a shared per-session Token
// between units of work. Cancellation is cooperative: nothing in flight is
// forcibly aborted, the run simply stops requesting new work once the flag
// is observed. For single long provider calls that cannot check mid-call,
// Watch derives a context that is cancelled within one poll interval of the
// token firing, so the caller's select unblocks promptly.
package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by Token.Err and carried as the context cause by
// Watch once cancellation has been requested. It is a stop signal, not a
// failure: callers should treat it differently from step errors.
var ErrCancelled = errors.New("cancelled by request")

// DefaultPollInterval is used by Watch when no interval is supplied.
const DefaultPollInterval = 500 * time.Millisecond

// Token is the cancellation flag for a single session. The zero value is
// ready to use and reports not-cancelled. Safe for concurrent use.
type Token struct {
	flag atomic.Bool
}

// Cancel marks the token as cancelled. Calling it repeatedly is safe and
// has no further effect.
func (t *Token) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.flag.Load()
}

// Err returns ErrCancelled once the token has been cancelled, nil before.
func (t *Token) Err() error {
	if t.flag.Load() {
		return ErrCancelled
	}
	return nil
}

// Registry tracks one Token per active session. All methods are safe for
// concurrent use; cancellation typically arrives from a different goroutine
// than the run that polls it.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Token returns the cancellation token for the given session, creating it on
// first use. Repeated calls for the same session return the same token.
func (r *Registry) Token(sessionID string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.tokens[sessionID]
	if !exists {
		token = &Token{}
		r.tokens[sessionID] = token
	}
	return token
}

// Cancel requests cancellation for the given session. Unknown or already
// finished sessions are a no-op, and repeating the request has no further
// effect.
func (r *Registry) Cancel(sessionID string) {
	r.mu.Lock()
	token, exists := r.tokens[sessionID]
	r.mu.Unlock()

	if exists {
		token.Cancel()
	}
}

// Cancelled reports whether cancellation has been requested for the session.
// Unknown sessions report false.
func (r *Registry) Cancelled(sessionID string) bool {
	r.mu.Lock()
	token, exists := r.tokens[sessionID]
	r.mu.Unlock()

	return exists && token.Cancelled()
}

// Release forgets the session's token. Call it when a run finishes so a
// later run reusing the session ID starts with a fresh flag.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, sessionID)
}

// Watch derives a context that is cancelled when the parent is cancelled or
// within one pollInterval of the token being cancelled. Use it to race a
// single long provider call against the session flag:
//
//	callCtx, stop := cancel.Watch(ctx, token, time.Second)
//	defer stop()
//	response, err := model.Generate(callCtx, prompt)
//
// When the token fired, context.Cause(callCtx) returns ErrCancelled. The
// returned stop function releases the watcher and must be called.
func Watch(parent context.Context, token *Token, pollInterval time.Duration) (context.Context, context.CancelFunc) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ctx, cancelCause := context.WithCancelCause(parent)
	stop := func() { cancelCause(nil) }

	if token == nil {
		return ctx, stop
	}

	if token.Cancelled() {
		cancelCause(ErrCancelled)
		return ctx, stop
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if token.Cancelled() {
					cancelCause(ErrCancelled)
					return
				}
			}
		}
	}()

	return ctx, stop
}

// IsCancellation reports whether err originates from a cancellation request
// or a cancelled context, as opposed to a genuine failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
