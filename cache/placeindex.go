package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/wanderloop/wanderloop/core/geo"
)

// defaultPlaceRetention is how long a discovered place stays queryable
// without being re-upserted. Place data drifts slowly (openings, closures,
// rating changes), so a week keeps results fresh enough while absorbing
// most repeat traffic for popular areas.
const defaultPlaceRetention = 7 * 24 * time.Hour

// Place is one cached point of interest. The area context fields are
// filled in lazily by SetAreaContext once a reverse geocode has run for
// the place's location; until then they are empty.
type Place struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Location     geo.Point `json:"location"`
	Types        []string  `json:"types,omitempty"`
	Rating       float64   `json:"rating,omitempty"`
	Primary      bool      `json:"primary"`
	Country      string    `json:"country,omitempty"`
	City         string    `json:"city,omitempty"`
	Neighborhood string    `json:"neighborhood,omitempty"`
}

// QueryOptions narrows a PlaceIndex query. The zero value means no primary
// filter and no result cap.
type QueryOptions struct {
	// PrimaryOnly keeps only places flagged as primary sights.
	PrimaryOnly bool

	// Limit caps the result count, keeping the nearest places. Zero or
	// negative means unlimited.
	Limit int
}

// placeRecord wraps a stored place with its cache bookkeeping.
type placeRecord struct {
	place    Place
	storedAt time.Time
	pinned   bool
}

// PlaceIndex is an in-memory geospatial cache of points of interest,
// queried by radius around a center. Expired entries are dropped lazily
// during queries; Pin exempts an entry from expiry entirely.
type PlaceIndex struct {
	mu        sync.Mutex
	entries   map[string]*placeRecord
	retention time.Duration
	now       func() time.Time
}

// PlaceIndexOption configures a PlaceIndex.
type PlaceIndexOption func(*PlaceIndex)

// WithPlaceRetention overrides the retention window. Defaults to 7 days.
func WithPlaceRetention(retention time.Duration) PlaceIndexOption {
	return func(index *PlaceIndex) {
		if retention > 0 {
			index.retention = retention
		}
	}
}

// WithPlaceClock overrides the time source, for tests.
func WithPlaceClock(now func() time.Time) PlaceIndexOption {
	return func(index *PlaceIndex) {
		if now != nil {
			index.now = now
		}
	}
}

// NewPlaceIndex creates an empty place index.
func NewPlaceIndex(opts ...PlaceIndexOption) *PlaceIndex {
	index := &PlaceIndex{
		entries:   make(map[string]*placeRecord),
		retention: defaultPlaceRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(index)
	}
	return index
}

// Upsert stores a place under its ID, replacing any previous version and
// restarting its retention window. A pinned entry stays pinned across
// upserts. Re-discovery is the only thing that refreshes retention; reads
// and lazy context fills never do.
func (x *PlaceIndex) Upsert(place Place) error {
	if place.ID == "" {
		return &ValidationError{Reason: "place ID must not be empty"}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	place.Types = clonePlaceTypes(place.Types)

	record, exists := x.entries[place.ID]
	if !exists {
		record = &placeRecord{}
		x.entries[place.ID] = record
	}
	record.place = place
	record.storedAt = x.now()

	return nil
}

// SetAreaContext fills in the area fields for an already cached place and
// reports whether the place was found. The retention window is not
// restarted; filling context is a lazy enrichment, not a re-discovery.
func (x *PlaceIndex) SetAreaContext(id, country, city, neighborhood string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, exists := x.entries[id]
	if !exists {
		return false
	}

	record.place.Country = country
	record.place.City = city
	record.place.Neighborhood = neighborhood
	return true
}

// Pin exempts a place from expiry and reports whether it was found.
func (x *PlaceIndex) Pin(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, exists := x.entries[id]
	if !exists {
		return false
	}
	record.pinned = true
	return true
}

// Query returns the places within radiusMeters of center, nearest first,
// filtered and capped per opts. Entries past their retention window are
// dropped as the query walks them.
func (x *PlaceIndex) Query(center geo.Point, radiusMeters float64, opts QueryOptions) []Place {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := x.now()

	type scoredPlace struct {
		place    Place
		distance float64
	}

	var matches []scoredPlace
	for id, record := range x.entries {
		if x.expired(record, now) {
			delete(x.entries, id)
			continue
		}
		if opts.PrimaryOnly && !record.place.Primary {
			continue
		}
		distance := geo.DistanceMeters(center, record.place.Location)
		if distance > radiusMeters {
			continue
		}
		matches = append(matches, scoredPlace{place: record.place, distance: distance})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		// Equidistant places sort by ID so results are deterministic.
		return matches[i].place.ID < matches[j].place.ID
	})

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	places := make([]Place, len(matches))
	for index, match := range matches {
		places[index] = match.place
		places[index].Types = clonePlaceTypes(match.place.Types)
	}
	return places
}

// PurgeExpired removes every entry past its retention window and returns
// how many were dropped. Queries already drop lazily; this is for
// housekeeping sweeps.
func (x *PlaceIndex) PurgeExpired() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := x.now()
	purged := 0
	for id, record := range x.entries {
		if x.expired(record, now) {
			delete(x.entries, id)
			purged++
		}
	}
	return purged
}

// Len reports the number of stored entries, expired or not.
func (x *PlaceIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func (x *PlaceIndex) expired(record *placeRecord, now time.Time) bool {
	if record.pinned {
		return false
	}
	return now.Sub(record.storedAt) > x.retention
}

// clonePlaceTypes keeps callers and the cache from sharing one backing
// array.
func clonePlaceTypes(types []string) []string {
	if types == nil {
		return nil
	}
	return append([]string(nil), types...)
}
