package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// TourStatus tracks an audioguide generation run.
type TourStatus string

const (
	// TourPending means generation has been requested but not finished.
	TourPending TourStatus = "pending"

	// TourReady means every stop has a script and audio.
	TourReady TourStatus = "ready"

	// TourPartial means the tour is playable but at least one stop's
	// narration failed and carries an explicit failure marker.
	TourPartial TourStatus = "partial"

	// TourFailed means nothing usable was produced.
	TourFailed TourStatus = "failed"
)

// TourRecord is one generated audioguide. It is addressable by ID alone so
// a finished tour can be shared without its session; SessionID and
// CandidateRef record where it came from. Intro and Stops are JSON
// documents owned by the caller.
type TourRecord struct {
	ID           string
	SessionID    string
	CandidateRef int
	Status       TourStatus
	Intro        json.RawMessage
	Stops        json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// tourColumns is the SELECT list shared by every tour read path.
var tourColumns = []string{
	"id", "session_id", "candidate_ref", "status", "intro", "stops", "created_at", "updated_at",
}

// SaveTour upserts the tour and returns the stored record. A record
// without an ID is assigned a fresh UUID; a record with one overwrites the
// existing row. The owning session must already be saved.
func (s *Store) SaveTour(ctx context.Context, record TourRecord) (TourRecord, error) {
	if record.SessionID == "" {
		return TourRecord{}, errors.New("tour session ID must not be empty")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = TourPending
	}

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tours
		(id, session_id, candidate_ref, status, intro, stops, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			intro = excluded.intro,
			stops = excluded.stops,
			updated_at = excluded.updated_at
	`,
		record.ID,
		record.SessionID,
		record.CandidateRef,
		string(record.Status),
		string(record.Intro),
		string(record.Stops),
		now,
		now,
	)
	if err != nil {
		return TourRecord{}, fmt.Errorf("save tour: %w", err)
	}

	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record, nil
}

// GetTour returns the tour stored under id, or nil when there is none.
func (s *Store) GetTour(ctx context.Context, id string) (*TourRecord, error) {
	query, args, err := squirrel.Select(tourColumns...).
		From("tours").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("get tour: %w", err)
	}

	record, err := scanTour(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tour: %w", err)
	}
	return record, nil
}

// TourFilter narrows ListTours. Zero fields are not filtered on.
type TourFilter struct {
	SessionID string
	Status    TourStatus
	Limit     int
}

// ListTours returns tours matching the filter, newest first.
func (s *Store) ListTours(ctx context.Context, filter TourFilter) ([]TourRecord, error) {
	builder := squirrel.Select(tourColumns...).
		From("tours").
		OrderBy("created_at DESC", "id")

	if filter.SessionID != "" {
		builder = builder.Where(squirrel.Eq{"session_id": filter.SessionID})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	defer rows.Close()

	var records []TourRecord
	for rows.Next() {
		record, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("list tours: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}

	return records, nil
}

func scanTour(row rowScanner) (*TourRecord, error) {
	var (
		record TourRecord
		status string
		intro  string
		stops  string
	)

	err := row.Scan(
		&record.ID,
		&record.SessionID,
		&record.CandidateRef,
		&status,
		&intro,
		&stops,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = TourStatus(status)
	if intro != "" {
		record.Intro = json.RawMessage(intro)
	}
	if stops != "" {
		record.Stops = json.RawMessage(stops)
	}
	return &record, nil
}
