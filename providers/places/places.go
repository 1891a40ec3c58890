// Package places defines the nearby-search contract used to discover points
// of interest around a session's location.
package places

import (
	"context"

	"github.com/wanderloop/wanderloop/core/geo"
)

// PointOfInterest is one place returned by a nearby search. Types carries
// the provider's category labels (for example "tourist_attraction" or
// "cafe") and is how callers separate primary sights from supporting stops.
type PointOfInterest struct {
	ID       string
	Name     string
	Location geo.Point
	Types    []string
	Rating   float64
}

// SearchProvider performs radius-bounded nearby searches.
type SearchProvider interface {
	// SearchNearby returns points of interest within radiusMeters of
	// center, optionally restricted to the given category labels. An empty
	// categories slice means no restriction. Result order is provider
	// defined; callers needing distance order sort themselves.
	SearchNearby(ctx context.Context, center geo.Point, radiusMeters float64, categories []string) ([]PointOfInterest, error)
}
