// Package cache provides the two in-process caches behind tour generation:
// a geospatial place index queried by radius around a walk's center, and a
// hierarchical area summary cache keyed by country, city, and neighborhood.
//
// Both caches hold derived, re-computable data, so writes are
// last-write-wins and staleness is bounded by retention windows rather than
// locking. Both are safe for concurrent use across independent sessions.
package cache

// ValidationError reports input rejected at a cache boundary, such as an
// area key missing its country or naming a neighborhood without its city.
// Rejection is strict: invalid input is never coerced into a partial key,
// which is what keeps same-named cities in different countries from
// clobbering each other's entries.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "cache validation: " + e.Reason
}
