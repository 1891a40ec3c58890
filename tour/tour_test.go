package tour

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/checkpoint/memcheckpoint"
	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/providers/geocode"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/places"
	"github.com/wanderloop/wanderloop/providers/routes"
	"github.com/wanderloop/wanderloop/providers/speech"
	"github.com/wanderloop/wanderloop/store"
)

// Fixture geography: places around Notre-Dame, nearest first at roughly
// 88m, 137m, 447m, 514m, 593m and 767m from the origin.
var (
	notreDame = geo.Point{Lat: 48.8530, Lon: 2.3499}

	parisArea = &geocode.Area{Country: "France", City: "Paris", Neighborhood: "Le Marais"}

	parisPOIs = []places.PointOfInterest{
		{ID: "p-bouquinistes", Name: "Bouquinistes", Location: geo.Point{Lat: 48.8527, Lon: 2.3488}, Types: []string{"book_store"}, Rating: 4.4},
		{ID: "p-bistro", Name: "Bistro de la Seine", Location: geo.Point{Lat: 48.8540, Lon: 2.3510}, Types: []string{"restaurant"}, Rating: 4.2},
		{ID: "p-chapelle", Name: "Sainte-Chapelle", Location: geo.Point{Lat: 48.8554, Lon: 2.3450}, Types: []string{"tourist_attraction", "place_of_worship"}, Rating: 4.8},
		{ID: "p-cluny", Name: "Musée de Cluny", Location: geo.Point{Lat: 48.8505, Lon: 2.3440}, Types: []string{"museum"}, Rating: 4.6},
		{ID: "p-flore", Name: "Café de Flore", Location: geo.Point{Lat: 48.8542, Lon: 2.3420}, Types: []string{"cafe"}, Rating: 4.1},
		{ID: "p-pantheon", Name: "Panthéon", Location: geo.Point{Lat: 48.8465, Lon: 2.3464}, Types: []string{"tourist_attraction", "monument"}, Rating: 4.7},
	}
)

// happyCandidateJSON references places by their index in the collected list:
// with MinPlaces 4 the list is the four nearest, indexes 0 to 3.
const happyCandidateJSON = `[` +
	`{"id":"c1","title":"Island Classics","description":"Chapels and booksellers along the Seine.",` +
	`"theme":"history","duration_minutes":60,"stop_refs":[0,2,3]},` +
	`{"id":"c2","title":"Left Bank Hour","description":"Books, bistros and stained glass.",` +
	`"theme":"literary","duration_minutes":90,"stop_refs":[1,2]}]`

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// streamOf builds a token stream that yields the given chunks in order.
func streamOf(chunks ...string) *llm.TokenStream {
	return llm.NewTokenStream(func(yield func(string, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	})
}

// --- Collaborator Stubs ---

type stubGeocoder struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, point geo.Point) (*geocode.Area, error)
}

func (s *stubGeocoder) Lookup(ctx context.Context, point geo.Point) (*geocode.Area, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, point)
}

type stubPlaces struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, center geo.Point, radiusMeters float64) ([]places.PointOfInterest, error)
}

func (s *stubPlaces) SearchNearby(ctx context.Context, center geo.Point, radiusMeters float64, categories []string) ([]places.PointOfInterest, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, center, radiusMeters)
}

type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, request llm.SummaryRequest) (*llm.Summary, error)
}

func (s *stubSummarizer) Summarize(ctx context.Context, request llm.SummaryRequest) (*llm.Summary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, request)
}

type stubCandidateModel struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ctx context.Context, prompt llm.Prompt) (*llm.TokenStream, error)
}

func (s *stubCandidateModel) StreamGenerate(ctx context.Context, prompt llm.Prompt) (*llm.TokenStream, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, ctx, prompt)
}

type stubScriptModel struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, prompt llm.Prompt) (string, error)
}

func (s *stubScriptModel) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, prompt)
}

type stubSpeech struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, request speech.SynthesisRequest) (*speech.AudioAsset, error)
}

func (s *stubSpeech) Synthesize(ctx context.Context, request speech.SynthesisRequest) (*speech.AudioAsset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, request)
}

type stubRoutes struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*routes.Route, error)
}

func (s *stubRoutes) WalkingRoute(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*routes.Route, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, origin, destination, waypoints)
}

var (
	_ geocode.ReverseGeocoder = (*stubGeocoder)(nil)
	_ places.SearchProvider   = (*stubPlaces)(nil)
	_ llm.Summarizer          = (*stubSummarizer)(nil)
	_ llm.CandidateModel      = (*stubCandidateModel)(nil)
	_ llm.ScriptModel         = (*stubScriptModel)(nil)
	_ speech.Synthesizer      = (*stubSpeech)(nil)
	_ routes.Validator        = (*stubRoutes)(nil)
)

// testEnv wires happy-path stubs around real caches, a real SQLite store and
// an in-memory checkpoint store. Tests override individual stub functions
// before building a pipeline.
type testEnv struct {
	geocoder    *stubGeocoder
	places      *stubPlaces
	summarizer  *stubSummarizer
	candidates  *stubCandidateModel
	scripts     *stubScriptModel
	speech      *stubSpeech
	routes      *stubRoutes
	placeIndex  *cache.PlaceIndex
	summaries   *cache.AreaSummaryCache
	checkpoints *memcheckpoint.Store
	store       *store.Store
	registry    *cancel.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &testEnv{
		geocoder: &stubGeocoder{fn: func(ctx context.Context, point geo.Point) (*geocode.Area, error) {
			return parisArea, nil
		}},
		places: &stubPlaces{fn: func(ctx context.Context, center geo.Point, radiusMeters float64) ([]places.PointOfInterest, error) {
			return parisPOIs, nil
		}},
		summarizer: &stubSummarizer{fn: func(ctx context.Context, request llm.SummaryRequest) (*llm.Summary, error) {
			return &llm.Summary{
				SummaryText: "A medieval quarter along the Seine.",
				KeyFacts:    []string{"Home to Sainte-Chapelle", "Bouquinistes since the 16th century"},
			}, nil
		}},
		candidates: &stubCandidateModel{fn: func(call int, ctx context.Context, prompt llm.Prompt) (*llm.TokenStream, error) {
			return llm.NewSingleChunkStream(happyCandidateJSON), nil
		}},
		scripts: &stubScriptModel{fn: func(ctx context.Context, prompt llm.Prompt) (string, error) {
			return "Welcome. Stand here and look around you.", nil
		}},
		speech: &stubSpeech{fn: func(ctx context.Context, request speech.SynthesisRequest) (*speech.AudioAsset, error) {
			return &speech.AudioAsset{Ref: fmt.Sprintf("audio/%d.mp3", len(request.Text)), Format: "mp3", DurationSeconds: 45}, nil
		}},
		routes: &stubRoutes{fn: func(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*routes.Route, error) {
			leg := routes.Leg{DistanceMeters: 400, Duration: 6 * time.Minute, Instructions: []string{"head east"}}
			legs := make([]routes.Leg, len(waypoints)+1)
			for i := range legs {
				legs[i] = leg
			}
			return &routes.Route{
				Legs:           legs,
				DistanceMeters: float64(len(legs)) * leg.DistanceMeters,
				Duration:       time.Duration(len(legs)) * leg.Duration,
			}, nil
		}},
		placeIndex:  cache.NewPlaceIndex(),
		summaries:   cache.NewAreaSummaryCache(),
		checkpoints: memcheckpoint.New(),
		store:       s,
		registry:    cancel.NewRegistry(),
	}
}

func (env *testEnv) deps() Deps {
	return Deps{
		Geocoder:    env.geocoder,
		Places:      env.places,
		Summarizer:  env.summarizer,
		Candidates:  env.candidates,
		Scripts:     env.scripts,
		Speech:      env.speech,
		Routes:      env.routes,
		PlaceIndex:  env.placeIndex,
		Summaries:   env.summaries,
		Checkpoints: env.checkpoints,
		Store:       env.store,
		Cancels:     env.registry,
		Logger:      testLogger(),
		Config: Config{
			MinPlaces:          4,
			SearchRadiusMeters: 800,
			EscalationFactor:   1.5,
			MaxCandidates:      2,
			MinStops:           2,
			FanoutLimit:        2,
			PollInterval:       5 * time.Millisecond,
			CheckpointTTL:      time.Hour,
		},
	}
}

func (env *testEnv) candidatePipeline(t *testing.T) *CandidatePipeline {
	t.Helper()
	pipeline, err := NewCandidatePipeline(env.deps())
	if err != nil {
		t.Fatalf("NewCandidatePipeline() failed: %v", err)
	}
	return pipeline
}

func (env *testEnv) audioguidePipeline(t *testing.T) *AudioguidePipeline {
	t.Helper()
	pipeline, err := NewAudioguidePipeline(env.deps())
	if err != nil {
		t.Fatalf("NewAudioguidePipeline() failed: %v", err)
	}
	return pipeline
}
