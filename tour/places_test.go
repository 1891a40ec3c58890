package tour

import (
	"fmt"
	"testing"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/core/geo"
)

// seedAt inserts a place displaced north of center by roughly northMeters.
// Distances stay well clear of radius boundaries so the exact great-circle
// constant does not matter.
func seedAt(t *testing.T, index *cache.PlaceIndex, id string, center geo.Point, northMeters float64, primary bool) {
	t.Helper()
	place := cache.Place{
		ID:       id,
		Name:     id,
		Location: geo.Point{Lat: center.Lat + northMeters/111320.0, Lon: center.Lon},
		Primary:  primary,
	}
	if err := index.Upsert(place); err != nil {
		t.Fatalf("Upsert(%q) failed: %v", id, err)
	}
}

func escalationConfig(minPlaces int) Config {
	return Config{
		MinPlaces:          minPlaces,
		SearchRadiusMeters: 800,
		EscalationFactor:   1.5,
	}
}

func TestEscalatingQuery_FirstTierPrimaryOnly(t *testing.T) {
	index := cache.NewPlaceIndex()
	for i := 0; i < 5; i++ {
		seedAt(t, index, fmt.Sprintf("primary-%d", i), notreDame, float64(100+i*100), true)
	}
	for i := 0; i < 3; i++ {
		seedAt(t, index, fmt.Sprintf("filler-%d", i), notreDame, float64(50+i*100), false)
	}

	found, tier := escalatingQuery(index, notreDame, escalationConfig(4))

	if tier != 1 {
		t.Fatalf("expected tier 1, got %d", tier)
	}
	if len(found) != 4 {
		t.Fatalf("expected 4 places, got %d", len(found))
	}
	for _, place := range found {
		if !place.Primary {
			t.Errorf("tier 1 returned non-primary place %q", place.ID)
		}
	}
}

func TestEscalatingQuery_SecondTierFillsWithNonPrimary(t *testing.T) {
	index := cache.NewPlaceIndex()
	for i := 0; i < 10; i++ {
		seedAt(t, index, fmt.Sprintf("primary-%d", i), notreDame, float64(30+i*13), true)
	}
	for i := 0; i < 45; i++ {
		seedAt(t, index, fmt.Sprintf("filler-%d", i), notreDame, float64(200+i*12), false)
	}
	// Too far for the base radius, close enough for the widened one. The
	// second tier must not pick these up.
	for i := 0; i < 5; i++ {
		seedAt(t, index, fmt.Sprintf("far-%d", i), notreDame, float64(900+i*40), false)
	}

	found, tier := escalatingQuery(index, notreDame, escalationConfig(40))

	if tier != 2 {
		t.Fatalf("expected tier 2, got %d", tier)
	}
	if len(found) != 40 {
		t.Fatalf("expected 40 places, got %d", len(found))
	}
	for _, place := range found {
		if distance := geo.DistanceMeters(notreDame, place.Location); distance > 800 {
			t.Errorf("place %q at %.0fm is outside the base radius", place.ID, distance)
		}
	}
}

func TestEscalatingQuery_ThirdTierWidensRadius(t *testing.T) {
	index := cache.NewPlaceIndex()
	seedAt(t, index, "near-primary", notreDame, 150, true)
	seedAt(t, index, "near-a", notreDame, 300, false)
	seedAt(t, index, "near-b", notreDame, 500, false)
	for i := 0; i < 4; i++ {
		seedAt(t, index, fmt.Sprintf("ring-%d", i), notreDame, float64(900+i*60), false)
	}
	// Outside even the widened radius of 1200m.
	seedAt(t, index, "beyond", notreDame, 1400, true)

	found, tier := escalatingQuery(index, notreDame, escalationConfig(8))

	if tier != 3 {
		t.Fatalf("expected tier 3, got %d", tier)
	}
	// Still short of the minimum: the last tier returns what it has.
	if len(found) != 7 {
		t.Fatalf("expected 7 places, got %d", len(found))
	}
	for _, place := range found {
		if place.ID == "beyond" {
			t.Error("place outside the widened radius was returned")
		}
	}
}

func TestEscalatingQuery_LaterTiersNeverShrink(t *testing.T) {
	index := cache.NewPlaceIndex()
	for i := 0; i < 5; i++ {
		seedAt(t, index, fmt.Sprintf("primary-%d", i), notreDame, float64(100+i*50), true)
	}
	for i := 0; i < 7; i++ {
		seedAt(t, index, fmt.Sprintf("secondary-%d", i), notreDame, float64(120+i*60), false)
	}
	for i := 0; i < 8; i++ {
		seedAt(t, index, fmt.Sprintf("outer-%d", i), notreDame, float64(850+i*40), false)
	}

	cfg := escalationConfig(100)
	tier1 := index.Query(notreDame, cfg.SearchRadiusMeters, cache.QueryOptions{PrimaryOnly: true, Limit: cfg.MinPlaces})
	tier2 := index.Query(notreDame, cfg.SearchRadiusMeters, cache.QueryOptions{Limit: cfg.MinPlaces})
	found, tier := escalatingQuery(index, notreDame, cfg)

	if len(tier1) > len(tier2) || len(tier2) > len(found) {
		t.Fatalf("tiers shrank: %d, %d, %d", len(tier1), len(tier2), len(found))
	}
	if tier != 3 {
		t.Fatalf("expected tier 3, got %d", tier)
	}
	if len(found) != 20 {
		t.Fatalf("expected all 20 places at the widest tier, got %d", len(found))
	}
}

func TestIsPrimary(t *testing.T) {
	categories := []string{"tourist_attraction", "museum"}

	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{name: "direct match", types: []string{"museum"}, want: true},
		{name: "match among others", types: []string{"cafe", "tourist_attraction"}, want: true},
		{name: "no match", types: []string{"restaurant"}, want: false},
		{name: "no types", types: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPrimary(tt.types, categories); got != tt.want {
				t.Errorf("isPrimary(%v) = %v, want %v", tt.types, got, tt.want)
			}
		})
	}
}
