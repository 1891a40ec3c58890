// Package geocode defines the reverse-geocoding contract used to resolve a
// session's coordinates into a named area.
package geocode

import (
	"context"

	"github.com/wanderloop/wanderloop/core/geo"
)

// Area is the administrative context of a coordinate, from coarse to fine.
// City and Neighborhood may be empty for sparse regions; Country is always
// set on a successful lookup.
type Area struct {
	Country      string `json:"country"`
	City         string `json:"city,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

// ReverseGeocoder resolves coordinates into a named area.
type ReverseGeocoder interface {
	// Lookup returns the area containing the point, or (nil, nil) when the
	// point cannot be resolved to any known area. Errors are reserved for
	// provider failures (network, auth, quota).
	Lookup(ctx context.Context, point geo.Point) (*Area, error)
}
