package tour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/core/extract"
	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/core/graph"
	"github.com/wanderloop/wanderloop/providers/geocode"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/routes"
	"github.com/wanderloop/wanderloop/store"
)

// Candidate is one generated walking-tour proposal. StopRefs index into the
// session's collected place list in walking order, exactly as the model
// emitted them; Stops is the resolved form filled in during validation.
type Candidate struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Theme           string  `json:"theme,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	StopRefs        []int   `json:"stop_refs"`
	Stops           []Stop  `json:"stops,omitempty"`
	WalkMeters      float64 `json:"walk_meters,omitempty"`
	WalkMinutes     int     `json:"walk_minutes,omitempty"`
}

// Stop is one resolved tour stop.
type Stop struct {
	PlaceID  string    `json:"place_id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
}

// Candidate pipeline step names.
const (
	stepResolveArea   graph.StepName = "resolve_area"
	stepAreaSummary   graph.StepName = "area_summary"
	stepCollectPlaces graph.StepName = "collect_places"
	stepGenerate      graph.StepName = "generate"
	stepValidate      graph.StepName = "validate"
	stepFinalize      graph.StepName = "finalize"
)

// candidateFields declares the candidate run's state schema. Every field
// merges last-write-wins: each step replaces whole values rather than
// appending.
type candidateFields struct {
	schema     *graph.Schema
	sessionID  graph.Field[string]
	origin     graph.Field[geo.Point]
	duration   graph.Field[int]
	area       graph.Field[*geocode.Area]
	summary    graph.Field[*cache.AreaSummary]
	placeList  graph.Field[[]cache.Place]
	candidates graph.Field[[]Candidate]
	attempts   graph.Field[int]
}

func newCandidateFields() candidateFields {
	schema := graph.NewSchema()
	return candidateFields{
		schema:     schema,
		sessionID:  graph.Define(schema, "session_id", "", nil),
		origin:     graph.Define(schema, "origin", geo.Point{}, nil),
		duration:   graph.Define(schema, "duration_minutes", 0, nil),
		area:       graph.Define[*geocode.Area](schema, "area", nil, nil),
		summary:    graph.Define[*cache.AreaSummary](schema, "area_summary", nil, nil),
		placeList:  graph.Define[[]cache.Place](schema, "places", nil, nil),
		candidates: graph.Define[[]Candidate](schema, "candidates", nil, nil),
		attempts:   graph.Define(schema, "generation_attempts", 0, nil),
	}
}

// CandidatePipeline generates ranked walking-tour candidates for a session.
// Build it once with NewCandidatePipeline and invoke Run per session.
type CandidatePipeline struct {
	deps   Deps
	fields candidateFields
	logger *slog.Logger
	graph  *graph.Graph
}

// NewCandidatePipeline validates the dependency bundle and builds the
// candidate graph.
func NewCandidatePipeline(deps Deps) (*CandidatePipeline, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	p := &CandidatePipeline{
		deps:   deps,
		fields: newCandidateFields(),
		logger: deps.Logger.With("pipeline", "candidates"),
	}

	opts := []graph.Option{graph.WithLogger(p.logger)}
	if deps.Config.StepTimeout > 0 {
		opts = append(opts, graph.WithStepTimeout(deps.Config.StepTimeout))
	}
	if deps.Checkpoints != nil {
		opts = append(opts, graph.WithCheckpoints(deps.Checkpoints, deps.Config.CheckpointTTL))
	}

	built, err := graph.NewBuilder(p.fields.schema, opts...).
		AddStep(stepResolveArea, p.resolveArea).
		AddStep(stepAreaSummary, p.areaSummary).
		AddStep(stepCollectPlaces, p.collectPlaces).
		AddStep(stepGenerate, p.generate).
		AddStep(stepValidate, p.validate).
		AddStep(stepFinalize, p.finalize).
		SetEntry(stepResolveArea).
		AddEdge(stepResolveArea, stepAreaSummary).
		AddEdge(stepAreaSummary, stepCollectPlaces).
		AddConditionalEdge(stepCollectPlaces, p.afterPlaces, stepGenerate, graph.End).
		AddEdge(stepGenerate, stepValidate).
		AddConditionalEdge(stepValidate, p.afterValidate, stepGenerate, stepFinalize).
		AddEdge(stepFinalize, graph.End).
		Build()
	if err != nil {
		return nil, err
	}

	p.graph = built
	return p, nil
}

// CandidateRequest is the input of one candidate run.
type CandidateRequest struct {
	SessionID       string
	Origin          geo.Point
	DurationMinutes int
}

func (r CandidateRequest) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("tour: session ID is required")
	}
	if r.Origin.Lat < -90 || r.Origin.Lat > 90 || r.Origin.Lon < -180 || r.Origin.Lon > 180 {
		return fmt.Errorf("tour: origin (%.4f, %.4f) out of range", r.Origin.Lat, r.Origin.Lon)
	}
	if r.DurationMinutes <= 0 {
		return errors.New("tour: duration must be positive")
	}
	return nil
}

// CandidateResult is the outcome of one candidate run. A degraded run still
// carries its best-effort candidate list; Faults explains what was lost.
type CandidateResult struct {
	SessionID  string
	Area       *geocode.Area
	Candidates []Candidate
	Path       []graph.StepName
	Faults     []graph.StepFault
}

// Degraded reports whether any step failed along the way.
func (r *CandidateResult) Degraded() bool {
	return len(r.Faults) > 0
}

// Run generates candidates for one session. The session's cancellation token
// is registered for the duration of the run and released afterwards, so a
// later run reusing the session ID starts with a fresh flag.
func (p *CandidatePipeline) Run(ctx context.Context, req CandidateRequest) (*CandidateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	seed := graph.NewUpdate()
	graph.Set(seed, p.fields.sessionID, req.SessionID)
	graph.Set(seed, p.fields.origin, req.Origin)
	graph.Set(seed, p.fields.duration, req.DurationMinutes)

	token := p.deps.Cancels.Token(req.SessionID)
	defer p.deps.Cancels.Release(req.SessionID)

	result, err := p.graph.Invoke(ctx, seed,
		graph.WithThread("candidates:"+req.SessionID),
		graph.WithCancelToken(token))
	if err != nil {
		return nil, err
	}

	return &CandidateResult{
		SessionID:  req.SessionID,
		Area:       graph.Get(result.State, p.fields.area),
		Candidates: graph.Get(result.State, p.fields.candidates),
		Path:       result.Path,
		Faults:     result.Faults,
	}, nil
}

// token returns the cancellation token of the session the run belongs to.
func (p *CandidatePipeline) token(state *graph.State) *cancel.Token {
	return p.deps.Cancels.Token(graph.Get(state, p.fields.sessionID))
}

// resolveArea reverse-geocodes the origin. An unresolvable point is not a
// failure; the run continues without area context.
func (p *CandidatePipeline) resolveArea(ctx context.Context, state *graph.State) (*graph.Update, error) {
	origin := graph.Get(state, p.fields.origin)

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	area, err := p.deps.Geocoder.Lookup(watchCtx, origin)
	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return nil, fmt.Errorf("resolve area: %w", err)
	}
	if area == nil {
		p.logger.Info("origin resolves to no known area, continuing without context",
			"lat", origin.Lat, "lon", origin.Lon)
		return nil, nil
	}

	return graph.Set(graph.NewUpdate(), p.fields.area, area), nil
}

// areaSummary reads the area summary through the cache, generating and
// caching it on a miss. Runs without area context skip the step.
func (p *CandidatePipeline) areaSummary(ctx context.Context, state *graph.State) (*graph.Update, error) {
	area := graph.Get(state, p.fields.area)
	if area == nil {
		return nil, nil
	}

	key := cache.AreaKey{Country: area.Country, City: area.City, Neighborhood: area.Neighborhood}
	cached, err := p.deps.Summaries.Read(key)
	if err != nil {
		return nil, fmt.Errorf("summary cache read: %w", err)
	}
	if cached != nil {
		p.logger.Debug("area summary cache hit", "key", key.String())
		return graph.Set(graph.NewUpdate(), p.fields.summary, cached), nil
	}

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	name := areaDisplayName(area.Country, area.City, area.Neighborhood)
	generated, err := p.deps.Summarizer.Summarize(watchCtx, llm.SummaryRequest{
		PlaceName: name,
		Context:   "history and culture relevant to a walking tour",
	})
	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return nil, fmt.Errorf("summarize %s: %w", name, err)
	}

	summary := cache.AreaSummary{SummaryText: generated.SummaryText, KeyFacts: generated.KeyFacts}
	update := graph.Set(graph.NewUpdate(), p.fields.summary, &summary)
	if err := p.deps.Summaries.Write(key, summary); err != nil {
		return update, fmt.Errorf("summary cache write: %w", err)
	}

	return update, nil
}

// generate streams candidates out of the model, emitting each one the moment
// it closes in the stream. A mid-stream failure keeps everything parsed up
// to that point.
func (p *CandidatePipeline) generate(ctx context.Context, state *graph.State) (*graph.Update, error) {
	attempt := graph.Get(state, p.fields.attempts) + 1
	update := graph.Set(graph.NewUpdate(), p.fields.attempts, attempt)

	area := graph.Get(state, p.fields.area)
	var areaName string
	if area != nil {
		areaName = areaDisplayName(area.Country, area.City, area.Neighborhood)
	}

	prompt := candidatePrompt(
		areaName,
		graph.Get(state, p.fields.summary),
		graph.Get(state, p.fields.placeList),
		graph.Get(state, p.fields.duration),
		p.deps.Config.MaxCandidates,
	)

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	stream, err := p.deps.Candidates.StreamGenerate(watchCtx, prompt)
	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return update, fmt.Errorf("candidate generation attempt %d: %w", attempt, err)
	}

	preview := func(field, value string) {
		p.logger.Info("candidate forming", "attempt", attempt, field, value)
	}

	candidates, err := extract.All(extract.Objects[Candidate](stream.Iter(),
		extract.WithPreview(preview, "title"),
		extract.WithTailRepair()))
	graph.Set(update, p.fields.candidates, candidates)

	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return update, fmt.Errorf("candidate stream attempt %d: %w", attempt, err)
	}

	p.logger.Info("candidates generated", "attempt", attempt, "count", len(candidates))
	return update, nil
}

// validate resolves each candidate's stop references and checks the stops
// form a routable walk. Invalid candidates are dropped one by one; the step
// itself only fails on cancellation.
func (p *CandidatePipeline) validate(ctx context.Context, state *graph.State) (*graph.Update, error) {
	candidates := graph.Get(state, p.fields.candidates)
	if len(candidates) == 0 {
		return nil, nil
	}
	placeList := graph.Get(state, p.fields.placeList)

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	valid := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		stops, err := resolveStops(candidate, placeList, p.deps.Config.MinStops)
		if err != nil {
			p.logger.Warn("dropping candidate", "title", candidate.Title, "reason", err)
			continue
		}

		route, err := p.walkingRoute(watchCtx, stops)
		if err != nil {
			if c := asCancellation(watchCtx, err); c != nil {
				return nil, c
			}
			p.logger.Warn("dropping unroutable candidate", "title", candidate.Title, "error", err)
			continue
		}

		candidate.Stops = stops
		candidate.WalkMeters = route.DistanceMeters
		candidate.WalkMinutes = int(route.Duration.Minutes())
		valid = append(valid, candidate)
	}

	p.logger.Info("candidates validated",
		"valid", len(valid), "dropped", len(candidates)-len(valid))
	return graph.Set(graph.NewUpdate(), p.fields.candidates, valid), nil
}

// finalize ranks and trims the surviving candidates, back-fills area context
// onto the places they kept, and persists the session record.
func (p *CandidatePipeline) finalize(ctx context.Context, state *graph.State) (*graph.Update, error) {
	sessionID := graph.Get(state, p.fields.sessionID)
	origin := graph.Get(state, p.fields.origin)
	requested := graph.Get(state, p.fields.duration)
	area := graph.Get(state, p.fields.area)

	ranked := rankCandidates(graph.Get(state, p.fields.candidates), requested)
	if len(ranked) > p.deps.Config.MaxCandidates {
		ranked = ranked[:p.deps.Config.MaxCandidates]
	}

	if area != nil {
		for _, candidate := range ranked {
			for _, stop := range candidate.Stops {
				p.deps.PlaceIndex.SetAreaContext(stop.PlaceID, area.Country, area.City, area.Neighborhood)
			}
		}
	}

	update := graph.Set(graph.NewUpdate(), p.fields.candidates, ranked)

	record, err := sessionRecord(sessionID, origin, requested, area, ranked)
	if err != nil {
		return update, fmt.Errorf("encode session: %w", err)
	}
	if err := p.deps.Store.SaveSession(ctx, record); err != nil {
		return update, fmt.Errorf("save session: %w", err)
	}

	p.logger.Info("session finalized", "session_id", sessionID, "candidates", len(ranked))
	return update, nil
}

// afterPlaces ends the run early when discovery produced nothing to build
// tours from. The empty result is the degraded answer, not an error.
func (p *CandidatePipeline) afterPlaces(ctx context.Context, state *graph.State) graph.StepName {
	if len(graph.Get(state, p.fields.placeList)) == 0 {
		p.logger.Warn("no places found, ending run with empty result")
		return graph.End
	}
	return stepGenerate
}

// afterValidate retries generation once when validation rejected everything,
// then settles for whatever is there.
func (p *CandidatePipeline) afterValidate(ctx context.Context, state *graph.State) graph.StepName {
	if len(graph.Get(state, p.fields.candidates)) == 0 && graph.Get(state, p.fields.attempts) < 2 {
		p.logger.Info("no valid candidates, retrying generation")
		return stepGenerate
	}
	return stepFinalize
}

// resolveStops checks a candidate's references against the collected place
// list and resolves them into concrete stops. Out-of-range and repeated
// references invalidate the whole candidate rather than being patched over.
func resolveStops(candidate Candidate, placeList []cache.Place, minStops int) ([]Stop, error) {
	if len(candidate.StopRefs) < minStops {
		return nil, fmt.Errorf("%d stops, need at least %d", len(candidate.StopRefs), minStops)
	}

	seen := make(map[int]bool, len(candidate.StopRefs))
	stops := make([]Stop, 0, len(candidate.StopRefs))
	for _, ref := range candidate.StopRefs {
		if ref < 0 || ref >= len(placeList) {
			return nil, fmt.Errorf("stop reference %d out of range [0,%d)", ref, len(placeList))
		}
		if seen[ref] {
			return nil, fmt.Errorf("stop reference %d repeated", ref)
		}
		seen[ref] = true

		place := placeList[ref]
		stops = append(stops, Stop{PlaceID: place.ID, Name: place.Name, Location: place.Location})
	}
	return stops, nil
}

// walkingRoute asks the validator for the route through the stops in order.
func (p *CandidatePipeline) walkingRoute(ctx context.Context, stops []Stop) (*routes.Route, error) {
	origin := stops[0].Location
	destination := stops[len(stops)-1].Location

	var waypoints []geo.Point
	if len(stops) > 2 {
		waypoints = make([]geo.Point, 0, len(stops)-2)
		for _, stop := range stops[1 : len(stops)-1] {
			waypoints = append(waypoints, stop.Location)
		}
	}

	return p.deps.Routes.WalkingRoute(ctx, origin, destination, waypoints)
}

// rankCandidates orders candidates by how closely their duration matches the
// requested one, keeping the model's order among ties.
func rankCandidates(candidates []Candidate, requestedMinutes int) []Candidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		deltaA := absInt(a.DurationMinutes - requestedMinutes)
		deltaB := absInt(b.DurationMinutes - requestedMinutes)
		return deltaA - deltaB
	})
	return ranked
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// sessionRecord encodes the run's outcome as the persisted session row.
func sessionRecord(sessionID string, origin geo.Point, durationMinutes int, area *geocode.Area, candidates []Candidate) (store.SessionRecord, error) {
	record := store.SessionRecord{
		ID:              sessionID,
		Lat:             origin.Lat,
		Lon:             origin.Lon,
		DurationMinutes: durationMinutes,
	}

	if area != nil {
		encoded, err := json.Marshal(area)
		if err != nil {
			return record, err
		}
		record.AreaContext = encoded
	}

	if candidates == nil {
		candidates = []Candidate{}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return record, err
	}
	record.Candidates = encoded

	return record, nil
}
