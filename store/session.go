package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is one tour-builder session: where the walk starts, how
// long it should run, the derived area context, and the ranked candidate
// list the generation run produced. AreaContext and Candidates are JSON
// documents owned by the caller; the store persists them opaquely.
type SessionRecord struct {
	ID              string
	Lat             float64
	Lon             float64
	DurationMinutes int
	AreaContext     json.RawMessage
	Candidates      json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SaveSession upserts the session under its ID. The first save sets
// CreatedAt; every save stamps UpdatedAt. Candidate generation re-runs for
// the same session overwrite the previous ranked list.
func (s *Store) SaveSession(ctx context.Context, record SessionRecord) error {
	if record.ID == "" {
		return errors.New("session ID must not be empty")
	}

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, lat, lon, duration_minutes, area_context, candidates, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			duration_minutes = excluded.duration_minutes,
			area_context = excluded.area_context,
			candidates = excluded.candidates,
			updated_at = excluded.updated_at
	`,
		record.ID,
		record.Lat,
		record.Lon,
		record.DurationMinutes,
		string(record.AreaContext),
		string(record.Candidates),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// GetSession returns the session stored under id, or nil when there is
// none.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lat, lon, duration_minutes, area_context, candidates, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	record, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		record      SessionRecord
		areaContext string
		candidates  string
	)

	err := row.Scan(
		&record.ID,
		&record.Lat,
		&record.Lon,
		&record.DurationMinutes,
		&areaContext,
		&candidates,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if areaContext != "" {
		record.AreaContext = json.RawMessage(areaContext)
	}
	if candidates != "" {
		record.Candidates = json.RawMessage(candidates)
	}
	return &record, nil
}
