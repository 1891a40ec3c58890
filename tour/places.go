package tour

import (
	"context"
	"fmt"
	"slices"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/core/graph"
)

// escalatingQuery runs the three-tier place query over the index and returns
// the places of the first tier that reached cfg.MinPlaces, along with the
// tier number (1 to 3). Tiers trade quality for quantity: primary sights at
// the base radius first, then everything at the base radius, then everything
// at the widened radius. The final tier's result is returned even when it is
// still short of the minimum.
//
// Because each tier only drops a filter or widens the radius, a later tier
// never returns fewer places than an earlier one.
func escalatingQuery(index *cache.PlaceIndex, center geo.Point, cfg Config) ([]cache.Place, int) {
	baseRadius := cfg.SearchRadiusMeters
	widened := baseRadius * cfg.EscalationFactor

	tier1 := index.Query(center, baseRadius, cache.QueryOptions{PrimaryOnly: true, Limit: cfg.MinPlaces})
	if len(tier1) >= cfg.MinPlaces {
		return tier1, 1
	}

	tier2 := index.Query(center, baseRadius, cache.QueryOptions{Limit: cfg.MinPlaces})
	if len(tier2) >= cfg.MinPlaces {
		return tier2, 2
	}

	return index.Query(center, widened, cache.QueryOptions{Limit: cfg.MinPlaces}), 3
}

// isPrimary reports whether any of the provider's category labels marks the
// place as a primary sight.
func isPrimary(types, primaryCategories []string) bool {
	for _, t := range types {
		if slices.Contains(primaryCategories, t) {
			return true
		}
	}
	return false
}

// refreshPlaces pulls points of interest from the search provider at the
// widest radius the escalation can reach and upserts them into the index.
// Re-discovered places restart their retention window.
func (p *CandidatePipeline) refreshPlaces(ctx context.Context, center geo.Point) error {
	cfg := p.deps.Config
	widened := cfg.SearchRadiusMeters * cfg.EscalationFactor

	found, err := p.deps.Places.SearchNearby(ctx, center, widened, nil)
	if err != nil {
		return fmt.Errorf("nearby search: %w", err)
	}

	for _, poi := range found {
		place := cache.Place{
			ID:       poi.ID,
			Name:     poi.Name,
			Location: poi.Location,
			Types:    poi.Types,
			Rating:   poi.Rating,
			Primary:  isPrimary(poi.Types, cfg.PrimaryCategories),
		}
		if err := p.deps.PlaceIndex.Upsert(place); err != nil {
			p.logger.Warn("skipping unusable place", "name", poi.Name, "error", err)
		}
	}

	p.logger.Debug("place index refreshed", "found", len(found), "radius_meters", widened)
	return nil
}

// collectPlaces is the cache-aside discovery step. The index is consulted
// first; the search provider is only called when the cache cannot reach the
// minimum count on its own. The escalation then runs over the index, so a
// provider outage with a warm cache costs nothing.
func (p *CandidatePipeline) collectPlaces(ctx context.Context, state *graph.State) (*graph.Update, error) {
	origin := graph.Get(state, p.fields.origin)
	cfg := p.deps.Config
	widened := cfg.SearchRadiusMeters * cfg.EscalationFactor

	var refreshErr error
	cached := p.deps.PlaceIndex.Query(origin, widened, cache.QueryOptions{Limit: cfg.MinPlaces})
	if len(cached) < cfg.MinPlaces {
		watchCtx, stop := cancel.Watch(ctx, p.token(state), cfg.PollInterval)
		defer stop()

		if refreshErr = p.refreshPlaces(watchCtx, origin); refreshErr != nil {
			if err := asCancellation(watchCtx, refreshErr); err != nil {
				return nil, err
			}
		}
	}

	found, tier := escalatingQuery(p.deps.PlaceIndex, origin, cfg)
	update := graph.Set(graph.NewUpdate(), p.fields.placeList, found)

	if refreshErr != nil {
		// Whatever the cache still held is merged as the best effort.
		return update, fmt.Errorf("collect places: %w", refreshErr)
	}

	p.logger.Info("places collected", "count", len(found), "tier", tier)
	return update, nil
}
