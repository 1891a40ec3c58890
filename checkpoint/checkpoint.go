// Package checkpoint defines durable state snapshots for graph threads. A
// run that completes saves its final state under a thread ID; a later run
// for the same thread can restore it and continue, surviving process
// restarts when a persistent backend is used.
//
// Two backends ship with the module: memcheckpoint (in-process, msgpack
// snapshot isolation) and pgcheckpoint (PostgreSQL, JSONB).
package checkpoint

import (
	"context"
	"time"
)

// Record is one saved snapshot of a thread's state.
type Record struct {
	// ThreadID identifies the conversation or session the state belongs to.
	ThreadID string

	// State is the field-name-keyed snapshot produced by the graph engine.
	// Values must be serializable by the backend.
	State map[string]any

	// CreatedAt is when the snapshot was saved. Stores fill it in when the
	// caller leaves it zero.
	CreatedAt time.Time

	// TTL is the retention window measured from CreatedAt. Zero means the
	// record never expires.
	TTL time.Duration
}

// Expired reports whether the record's retention window has passed at now.
func (r *Record) Expired(now time.Time) bool {
	if r.TTL <= 0 {
		return false
	}
	return now.After(r.CreatedAt.Add(r.TTL))
}

// Store persists at most one record per thread; saving again overwrites.
//
// Load returns (nil, nil) when the thread has no record or the record has
// expired. Reading a record does not extend its retention window unless the
// store was explicitly configured to refresh on read; by default an old
// thread expires on schedule no matter how often it is looked at.
type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, threadID string) (*Record, error)
	Delete(ctx context.Context, threadID string) error
}
