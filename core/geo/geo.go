// Package geo provides the geospatial primitives shared by the place index
// and the provider contracts: WGS84 points, haversine distances, and radius
// helpers. Distances are expressed in meters throughout the module.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula. Accuracy is within ~0.5% of true geodesic distance,
// which is more than enough for walking-tour radii.
func DistanceMeters(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	deltaLat := radians(b.Lat - a.Lat)
	deltaLon := radians(b.Lon - a.Lon)

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)

	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Within reports whether candidate lies inside (or exactly on) the circle of
// radiusMeters around center.
func Within(center, candidate Point, radiusMeters float64) bool {
	return DistanceMeters(center, candidate) <= radiusMeters
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
