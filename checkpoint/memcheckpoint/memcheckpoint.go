// Package memcheckpoint provides the in-process checkpoint store used in
// tests and single-process deployments.
//
// State snapshots are encoded to msgpack at Save and decoded at Load. That
// costs a serialization round-trip but buys the same two guarantees a
// database backend gives: stored records are isolated from later mutation
// of the live state, and state that cannot be serialized fails fast at save
// time instead of surfacing later in production against PostgreSQL.
package memcheckpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wanderloop/wanderloop/checkpoint"
)

// Store is an in-memory checkpoint.Store. Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	records       map[string]storedRecord
	refreshOnRead bool
	now           func() time.Time
}

type storedRecord struct {
	encoded   []byte
	createdAt time.Time
	ttl       time.Duration
}

// Compile-time check that Store implements checkpoint.Store.
var _ checkpoint.Store = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithRefreshOnRead makes every successful Load restart the record's
// retention window. The default is no refresh: a thread expires on schedule
// from its last save, however often it is read.
func WithRefreshOnRead() Option {
	return func(s *Store) {
		s.refreshOnRead = true
	}
}

// WithClock overrides the time source used for expiry. For tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty in-memory checkpoint store.
func New(opts ...Option) *Store {
	store := &Store{
		records: make(map[string]storedRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Save encodes the record's state and stores it under its thread ID,
// replacing any previous record for the thread.
func (s *Store) Save(_ context.Context, record checkpoint.Record) error {
	encoded, err := msgpack.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("encoding state for thread %q: %w", record.ThreadID, err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ThreadID] = storedRecord{
		encoded:   encoded,
		createdAt: createdAt,
		ttl:       record.TTL,
	}
	return nil
}

// Load returns the thread's record, or (nil, nil) when none exists or the
// record has expired. Expired records are dropped on the way out.
func (s *Store) Load(_ context.Context, threadID string) (*checkpoint.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[threadID]
	if !exists {
		return nil, nil
	}

	record := checkpoint.Record{
		ThreadID:  threadID,
		CreatedAt: stored.createdAt,
		TTL:       stored.ttl,
	}
	if record.Expired(s.now()) {
		delete(s.records, threadID)
		return nil, nil
	}

	if err := msgpack.Unmarshal(stored.encoded, &record.State); err != nil {
		return nil, fmt.Errorf("decoding state for thread %q: %w", threadID, err)
	}

	if s.refreshOnRead {
		stored.createdAt = s.now()
		s.records[threadID] = stored
		record.CreatedAt = stored.createdAt
	}

	return &record, nil
}

// Delete removes the thread's record. Deleting a missing thread is a no-op.
func (s *Store) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, threadID)
	return nil
}

// PurgeExpired drops every expired record and returns how many were
// removed. Long-lived processes can run it periodically; Load also drops
// expired records lazily, so purging is optional hygiene.
func (s *Store) PurgeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for threadID, stored := range s.records {
		record := checkpoint.Record{CreatedAt: stored.createdAt, TTL: stored.ttl}
		if record.Expired(now) {
			delete(s.records, threadID)
			purged++
		}
	}
	return purged
}

// Len reports the number of live records. For tests and diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
