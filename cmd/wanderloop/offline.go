package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/providers/geocode"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/places"
	"github.com/wanderloop/wanderloop/providers/routes"
	"github.com/wanderloop/wanderloop/providers/speech"
)

// The offline collaborators serve a canned Paris-flavored dataset shifted to
// the requested origin, so both commands run deterministically without any
// provider credentials. Swap them for real integrations behind the same
// interfaces to go live.

// offlinePOIs are laid out as offsets from the requested center; roughly 111m
// per 0.001 degrees of latitude.
var offlinePOIs = []struct {
	id     string
	name   string
	dLat   float64
	dLon   float64
	types  []string
	rating float64
}{
	{"off-chapel", "Chapelle Saint-Louis", 0.0028, -0.0021, []string{"place_of_worship", "tourist_attraction"}, 4.8},
	{"off-museum", "Musée des Quais", -0.0019, -0.0026, []string{"museum"}, 4.6},
	{"off-tower", "Tour de l'Horloge", 0.0012, 0.0034, []string{"monument"}, 4.5},
	{"off-market", "Marché Couvert", -0.0008, 0.0011, []string{"market", "point_of_interest"}, 4.3},
	{"off-books", "Librairie du Pont", 0.0004, -0.0009, []string{"book_store"}, 4.4},
	{"off-garden", "Jardin des Remparts", 0.0041, 0.0008, []string{"park"}, 4.2},
	{"off-cafe", "Café des Arcades", -0.0003, 0.0019, []string{"cafe"}, 4.1},
	{"off-gate", "Porte des Lions", -0.0035, 0.0027, []string{"monument", "tourist_attraction"}, 4.4},
	{"off-atelier", "Atelier des Vitraux", 0.0017, -0.0032, []string{"art_gallery"}, 4.0},
	{"off-bistro", "Bistro de la Fontaine", 0.0009, 0.0005, []string{"restaurant"}, 4.2},
	{"off-crypt", "Crypte Romane", -0.0013, -0.0007, []string{"tourist_attraction"}, 4.7},
	{"off-quay", "Quai des Peintres", 0.0022, 0.0016, []string{"point_of_interest"}, 4.1},
}

type offlineGeocoder struct{}

func (offlineGeocoder) Lookup(ctx context.Context, point geo.Point) (*geocode.Area, error) {
	return &geocode.Area{Country: "France", City: "Paris", Neighborhood: "Quartier Latin"}, nil
}

type offlinePlaces struct{}

func (offlinePlaces) SearchNearby(ctx context.Context, center geo.Point, radiusMeters float64, categories []string) ([]places.PointOfInterest, error) {
	found := make([]places.PointOfInterest, 0, len(offlinePOIs))
	for _, poi := range offlinePOIs {
		location := geo.Point{Lat: center.Lat + poi.dLat, Lon: center.Lon + poi.dLon}
		if geo.DistanceMeters(center, location) > radiusMeters {
			continue
		}
		found = append(found, places.PointOfInterest{
			ID:       poi.id,
			Name:     poi.name,
			Location: location,
			Types:    poi.types,
			Rating:   poi.rating,
		})
	}
	return found, nil
}

type offlineSummarizer struct{}

func (offlineSummarizer) Summarize(ctx context.Context, request llm.SummaryRequest) (*llm.Summary, error) {
	return &llm.Summary{
		SummaryText: fmt.Sprintf("%s grew up around its riverside lanes, and most of what is worth seeing sits within a short walk.", request.PlaceName),
		KeyFacts: []string{
			"The covered market has run daily since the nineteenth century",
			"The clocktower bell still rings the hour by hand",
		},
	}, nil
}

// offlineCandidateModel streams a fixed set of itineraries in two chunks,
// split mid-token the way a real model stream arrives.
type offlineCandidateModel struct{}

func (offlineCandidateModel) StreamGenerate(ctx context.Context, prompt llm.Prompt) (*llm.TokenStream, error) {
	const first = `[{"id":"loop-classics","title":"Classics of the Quarter","description":` +
		`"The chapel, the clocktower and the old crypt in one unhurried loop.",` +
		`"theme":"heritage","duration_minutes":90,"stop_refs":[0,1,2]},` +
		`{"id":"loop-riverside","title":"Riverside Hour","descri`
	const second = `ption":"Bookstalls and painters' quays at a gentle pace.",` +
		`"theme":"riverside","duration_minutes":60,"stop_refs":[1,3,4]},` +
		`{"id":"loop-long","title":"Ramparts Afternoon","description":` +
		`"The long way around the gates and gardens.",` +
		`"theme":"fortifications","duration_minutes":120,"stop_refs":[0,2,3,5]}]`

	return llm.NewTokenStream(func(yield func(string, error) bool) {
		if !yield(first, nil) {
			return
		}
		yield(second, nil)
	}), nil
}

// offlineScriptModel narrates by elaborating on the request's opening line,
// so every slot gets distinct, stable text.
type offlineScriptModel struct{}

func (offlineScriptModel) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	brief, _, _ := strings.Cut(prompt.User, "\n")
	return fmt.Sprintf("%s Take a moment here: notice how the street narrows, and listen for the quarter going about its day before walking on.", brief), nil
}

type offlineSpeech struct{}

func (offlineSpeech) Synthesize(ctx context.Context, request speech.SynthesisRequest) (*speech.AudioAsset, error) {
	digest := fnv.New32a()
	digest.Write([]byte(request.Text))
	seconds := float64(len(request.Text)) / 15
	if seconds < 1 {
		seconds = 1
	}
	return &speech.AudioAsset{
		Ref:             fmt.Sprintf("file://narrations/%08x.mp3", digest.Sum32()),
		Format:          "mp3",
		DurationSeconds: seconds,
	}, nil
}

// offlineRoutes validates any walk and prices it with great-circle legs at a
// strolling pace of 75 meters per minute.
type offlineRoutes struct{}

func (offlineRoutes) WalkingRoute(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*routes.Route, error) {
	points := make([]geo.Point, 0, len(waypoints)+2)
	points = append(points, origin)
	points = append(points, waypoints...)
	points = append(points, destination)

	route := &routes.Route{Legs: make([]routes.Leg, 0, len(points)-1)}
	for i := 1; i < len(points); i++ {
		meters := geo.DistanceMeters(points[i-1], points[i])
		duration := time.Duration(meters/75.0*60.0) * time.Second
		route.Legs = append(route.Legs, routes.Leg{
			DistanceMeters: meters,
			Duration:       duration,
			Instructions:   []string{fmt.Sprintf("walk %.0f m to the next stop", meters)},
		})
		route.DistanceMeters += meters
		route.Duration += duration
	}
	return route, nil
}

var (
	_ geocode.ReverseGeocoder = offlineGeocoder{}
	_ places.SearchProvider   = offlinePlaces{}
	_ llm.Summarizer          = offlineSummarizer{}
	_ llm.CandidateModel      = offlineCandidateModel{}
	_ llm.ScriptModel         = offlineScriptModel{}
	_ speech.Synthesizer      = offlineSpeech{}
	_ routes.Validator        = offlineRoutes{}
)
