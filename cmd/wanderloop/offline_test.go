package main

import (
	"context"
	"testing"

	"github.com/wanderloop/wanderloop/core/extract"
	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/speech"
)

var testCenter = geo.Point{Lat: 48.8530, Lon: 2.3499}

func TestOfflinePlaces_ShiftToCenterAndRespectRadius(t *testing.T) {
	ctx := context.Background()

	wide, err := offlinePlaces{}.SearchNearby(ctx, testCenter, 1200, nil)
	if err != nil {
		t.Fatalf("SearchNearby() failed: %v", err)
	}
	if len(wide) != len(offlinePOIs) {
		t.Errorf("expected all %d canned places at 1200m, got %d", len(offlinePOIs), len(wide))
	}
	for _, poi := range wide {
		if distance := geo.DistanceMeters(testCenter, poi.Location); distance > 1200 {
			t.Errorf("place %q at %.0fm is outside the radius", poi.ID, distance)
		}
	}

	narrow, err := offlinePlaces{}.SearchNearby(ctx, testCenter, 150, nil)
	if err != nil {
		t.Fatalf("SearchNearby() failed: %v", err)
	}
	if len(narrow) == 0 || len(narrow) >= len(wide) {
		t.Errorf("expected the narrow radius to keep a strict subset, got %d of %d", len(narrow), len(wide))
	}

	// A different center yields the same neighborhood shape.
	elsewhere, err := offlinePlaces{}.SearchNearby(ctx, geo.Point{Lat: -33.86, Lon: 151.21}, 1200, nil)
	if err != nil {
		t.Fatalf("SearchNearby() failed: %v", err)
	}
	if len(elsewhere) != len(wide) {
		t.Errorf("canned layout must travel with the center: %d vs %d", len(elsewhere), len(wide))
	}
}

func TestOfflineCandidateModel_StreamParses(t *testing.T) {
	stream, err := offlineCandidateModel{}.StreamGenerate(context.Background(), llm.Prompt{})
	if err != nil {
		t.Fatalf("StreamGenerate() failed: %v", err)
	}

	type candidate struct {
		Title           string `json:"title"`
		DurationMinutes int    `json:"duration_minutes"`
		StopRefs        []int  `json:"stop_refs"`
	}
	candidates, err := extract.All(extract.Objects[candidate](stream.Iter()))
	if err != nil {
		t.Fatalf("stream does not parse: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 canned candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if len(c.StopRefs) < 2 {
			t.Errorf("candidate %q has too few stops: %v", c.Title, c.StopRefs)
		}
		for _, ref := range c.StopRefs {
			if ref < 0 || ref >= len(offlinePOIs) {
				t.Errorf("candidate %q references place %d outside the canned set", c.Title, ref)
			}
		}
	}
}

func TestOfflineRoutes_PricesLegs(t *testing.T) {
	origin := testCenter
	destination := geo.Point{Lat: testCenter.Lat + 0.003, Lon: testCenter.Lon}
	waypoint := geo.Point{Lat: testCenter.Lat + 0.001, Lon: testCenter.Lon + 0.002}

	route, err := offlineRoutes{}.WalkingRoute(context.Background(), origin, destination, []geo.Point{waypoint})
	if err != nil {
		t.Fatalf("WalkingRoute() failed: %v", err)
	}
	if len(route.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(route.Legs))
	}
	if route.DistanceMeters <= 0 || route.Duration <= 0 {
		t.Errorf("route not priced: %.0fm in %v", route.DistanceMeters, route.Duration)
	}

	var total float64
	for _, leg := range route.Legs {
		total += leg.DistanceMeters
	}
	if total != route.DistanceMeters {
		t.Errorf("leg sum %.1f differs from total %.1f", total, route.DistanceMeters)
	}
}

func TestOfflineSpeech_Deterministic(t *testing.T) {
	ctx := context.Background()
	request := speech.SynthesisRequest{Text: "Stand here a moment.", Voice: "guide", Language: "en"}

	first, err := offlineSpeech{}.Synthesize(ctx, request)
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	second, err := offlineSpeech{}.Synthesize(ctx, request)
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if first.Ref != second.Ref {
		t.Errorf("same text produced different refs: %q vs %q", first.Ref, second.Ref)
	}

	other, err := offlineSpeech{}.Synthesize(ctx, speech.SynthesisRequest{Text: "A different narration."})
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if other.Ref == first.Ref {
		t.Error("different texts collided on one ref")
	}
}
