// Package routes defines the walking-route contract used to check that a
// tour's stops form a feasible walk.
package routes

import (
	"context"
	"time"

	"github.com/wanderloop/wanderloop/core/geo"
)

// Leg is one segment of a walking route between consecutive stops.
type Leg struct {
	DistanceMeters float64
	Duration       time.Duration
	// Instructions holds the turn-by-turn steps for the leg, in walking
	// order.
	Instructions []string
}

// Route is a complete walking route through a tour's stops.
type Route struct {
	Legs           []Leg
	DistanceMeters float64
	Duration       time.Duration
}

// Validator computes walking routes between stops.
type Validator interface {
	// WalkingRoute returns the walking route from origin through waypoints
	// to destination. An error means the route could not be computed;
	// callers treat an unroutable tour as invalid rather than failed.
	WalkingRoute(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*Route, error)
}
