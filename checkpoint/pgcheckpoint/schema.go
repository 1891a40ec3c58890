package pgcheckpoint

import (
	"context"
	"fmt"
)

// createTableSQL is the DDL statement that creates the checkpoints table.
// One row per thread: the primary key doubles as the upsert conflict
// target, and ttl_seconds of zero means the row never expires.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    thread_id   TEXT PRIMARY KEY,
    state       JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ttl_seconds BIGINT NOT NULL DEFAULT 0
)`

// createExpiryIndexSQL supports the PurgeExpired sweep.
const createExpiryIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_created_at
    ON %s (created_at) WHERE ttl_seconds > 0`

// EnsureSchema creates the checkpoints table and its index if they do not
// already exist. This is a convenience helper for development and
// prototyping; production deployments should manage schema changes with
// proper migration tooling.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tableSQL := fmt.Sprintf(createTableSQL, s.tableName)
	if _, err := s.db.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("pgcheckpoint: create table: %w", err)
	}

	indexSQL := fmt.Sprintf(createExpiryIndexSQL, s.tableName, s.tableName)
	if _, err := s.db.Exec(ctx, indexSQL); err != nil {
		return fmt.Errorf("pgcheckpoint: create expiry index: %w", err)
	}

	return nil
}
