// Package pgcheckpoint provides the PostgreSQL-backed checkpoint store.
// State snapshots live in a JSONB column keyed by thread ID, one row per
// thread, upserted on save. Expiry is enforced lazily: an expired row is
// deleted the next time its thread is loaded.
package pgcheckpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wanderloop/wanderloop/checkpoint"
)

// defaultTableName is the table used when no custom name is provided.
const defaultTableName = "wanderloop_checkpoints"

// Querier abstracts the pgx query methods needed by the store. Both
// *pgxpool.Pool and pgx.Tx satisfy this interface, allowing callers to
// inject either a connection pool or a single transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements checkpoint.Store on PostgreSQL. Thread safety is handled
// by the underlying pgx connection pool; no application-level mutex is
// needed.
type Store struct {
	db            Querier
	tableName     string
	refreshOnRead bool
}

// Compile-time check that Store implements checkpoint.Store.
var _ checkpoint.Store = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithTableName overrides the default table name ("wanderloop_checkpoints").
// The name is sanitized via pgx.Identifier to prevent SQL injection, since
// it is interpolated into queries via fmt.Sprintf.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// WithRefreshOnRead makes every successful Load restart the record's
// retention window. The default is no refresh.
func WithRefreshOnRead() Option {
	return func(s *Store) {
		s.refreshOnRead = true
	}
}

// New creates a PostgreSQL-backed checkpoint store. The db parameter must
// be a pgx-compatible query executor (typically *pgxpool.Pool).
func New(db Querier, opts ...Option) *Store {
	store := &Store{
		db:        db,
		tableName: defaultTableName,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Save upserts the thread's record. The state map is serialized to JSONB;
// state that cannot be marshalled fails here rather than corrupting the
// row.
func (s *Store) Save(ctx context.Context, record checkpoint.Record) error {
	stateJSON, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("pgcheckpoint: encoding state for thread %q: %w", record.ThreadID, err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := fmt.Sprintf(`INSERT INTO %s (thread_id, state, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (thread_id) DO UPDATE
		SET state = EXCLUDED.state, created_at = EXCLUDED.created_at, ttl_seconds = EXCLUDED.ttl_seconds`,
		s.tableName)

	if _, err := s.db.Exec(ctx, query, record.ThreadID, stateJSON, createdAt, int64(record.TTL/time.Second)); err != nil {
		return fmt.Errorf("pgcheckpoint: save thread %q: %w", record.ThreadID, err)
	}
	return nil
}

// Load returns the thread's record, or (nil, nil) when the thread has no
// row or the row has expired. Expired rows are deleted on the way out.
func (s *Store) Load(ctx context.Context, threadID string) (*checkpoint.Record, error) {
	query := fmt.Sprintf(`SELECT state, created_at, ttl_seconds FROM %s WHERE thread_id = $1`, s.tableName)

	var stateJSON []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := s.db.QueryRow(ctx, query, threadID).Scan(&stateJSON, &createdAt, &ttlSeconds)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pgcheckpoint: load thread %q: %w", threadID, err)
	}

	record := checkpoint.Record{
		ThreadID:  threadID,
		CreatedAt: createdAt,
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}

	if record.Expired(time.Now()) {
		if err := s.Delete(ctx, threadID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := json.Unmarshal(stateJSON, &record.State); err != nil {
		return nil, fmt.Errorf("pgcheckpoint: decoding state for thread %q: %w", threadID, err)
	}

	if s.refreshOnRead {
		refresh := fmt.Sprintf(`UPDATE %s SET created_at = NOW() WHERE thread_id = $1`, s.tableName)
		if _, err := s.db.Exec(ctx, refresh, threadID); err != nil {
			return nil, fmt.Errorf("pgcheckpoint: refresh thread %q: %w", threadID, err)
		}
	}

	return &record, nil
}

// Delete removes the thread's row. Deleting a missing thread is a no-op.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = $1`, s.tableName)

	if _, err := s.db.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("pgcheckpoint: delete thread %q: %w", threadID, err)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were
// removed. Intended for periodic maintenance alongside the lazy per-thread
// expiry in Load.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s
		WHERE ttl_seconds > 0 AND created_at + make_interval(secs => ttl_seconds) < NOW()`,
		s.tableName)

	tag, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("pgcheckpoint: purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
