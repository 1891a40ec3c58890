package tour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/core/fanout"
	"github.com/wanderloop/wanderloop/core/graph"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/speech"
	"github.com/wanderloop/wanderloop/store"
)

// SegmentStatus tracks one narration slot through the pipeline.
type SegmentStatus string

const (
	SegmentPending SegmentStatus = "pending"
	SegmentOK      SegmentStatus = "ok"
	SegmentFailed  SegmentStatus = "failed"
)

// Segment is one narration slot of the audioguide: the intro at index 0,
// the stops from index 1 in walking order. Failed slots keep their position
// and carry the reason, so a player can show "narration unavailable" for one
// stop while the rest play.
type Segment struct {
	Index           int           `json:"index"`
	Kind            fanout.Kind   `json:"kind"`
	Title           string        `json:"title"`
	PlaceID         string        `json:"place_id,omitempty"`
	Text            string        `json:"text,omitempty"`
	AudioRef        string        `json:"audio_ref,omitempty"`
	Format          string        `json:"format,omitempty"`
	DurationSeconds int           `json:"duration_seconds,omitempty"`
	Status          SegmentStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
}

// Audioguide pipeline step names.
const (
	stepLoadTour     graph.StepName = "load_tour"
	stepWriteScripts graph.StepName = "write_scripts"
	stepSynthesize   graph.StepName = "synthesize"
	stepAssemble     graph.StepName = "assemble"
	stepPersist      graph.StepName = "persist"
)

type audioguideFields struct {
	schema    *graph.Schema
	sessionID graph.Field[string]
	ref       graph.Field[int]
	candidate graph.Field[*Candidate]
	segments  graph.Field[[]Segment]
	status    graph.Field[store.TourStatus]
	tourID    graph.Field[string]
}

func newAudioguideFields() audioguideFields {
	schema := graph.NewSchema()
	return audioguideFields{
		schema:    schema,
		sessionID: graph.Define(schema, "session_id", "", nil),
		ref:       graph.Define(schema, "candidate_ref", 0, nil),
		candidate: graph.Define[*Candidate](schema, "candidate", nil, nil),
		segments:  graph.Define[[]Segment](schema, "segments", nil, nil),
		status:    graph.Define(schema, "status", store.TourPending, nil),
		tourID:    graph.Define(schema, "tour_id", "", nil),
	}
}

// AudioguidePipeline turns one chosen candidate into narrated audio per
// stop. Build it once with NewAudioguidePipeline and invoke Run per tour.
type AudioguidePipeline struct {
	deps   Deps
	fields audioguideFields
	logger *slog.Logger
	graph  *graph.Graph
}

// NewAudioguidePipeline validates the dependency bundle and builds the
// audioguide graph.
func NewAudioguidePipeline(deps Deps) (*AudioguidePipeline, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	p := &AudioguidePipeline{
		deps:   deps,
		fields: newAudioguideFields(),
		logger: deps.Logger.With("pipeline", "audioguide"),
	}

	opts := []graph.Option{graph.WithLogger(p.logger)}
	if deps.Config.StepTimeout > 0 {
		opts = append(opts, graph.WithStepTimeout(deps.Config.StepTimeout))
	}
	if deps.Checkpoints != nil {
		opts = append(opts, graph.WithCheckpoints(deps.Checkpoints, deps.Config.CheckpointTTL))
	}

	built, err := graph.NewBuilder(p.fields.schema, opts...).
		AddStep(stepLoadTour, p.loadTour).
		AddStep(stepWriteScripts, p.writeScripts).
		AddStep(stepSynthesize, p.synthesize).
		AddStep(stepAssemble, p.assemble).
		AddStep(stepPersist, p.persist).
		SetEntry(stepLoadTour).
		AddConditionalEdge(stepLoadTour, p.afterLoad, stepWriteScripts, graph.End).
		AddEdge(stepWriteScripts, stepSynthesize).
		AddEdge(stepSynthesize, stepAssemble).
		AddEdge(stepAssemble, stepPersist).
		AddEdge(stepPersist, graph.End).
		Build()
	if err != nil {
		return nil, err
	}

	p.graph = built
	return p, nil
}

// AudioguideRequest names the session and which of its candidates to turn
// into an audioguide.
type AudioguideRequest struct {
	SessionID    string
	CandidateRef int
}

// AudioguideResult is the outcome of one audioguide run. Status partial
// means the tour is playable with some slots marked failed.
type AudioguideResult struct {
	TourID   string
	Status   store.TourStatus
	Segments []Segment
	Path     []graph.StepName
	Faults   []graph.StepFault
}

// Degraded reports whether any step failed along the way.
func (r *AudioguideResult) Degraded() bool {
	return len(r.Faults) > 0
}

// Run synthesizes the audioguide for one chosen candidate. The session's
// cancellation token is registered for the duration of the run and released
// afterwards.
func (p *AudioguidePipeline) Run(ctx context.Context, req AudioguideRequest) (*AudioguideResult, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, errors.New("tour: session ID is required")
	}
	if req.CandidateRef < 0 {
		return nil, fmt.Errorf("tour: candidate reference %d is negative", req.CandidateRef)
	}

	seed := graph.NewUpdate()
	graph.Set(seed, p.fields.sessionID, req.SessionID)
	graph.Set(seed, p.fields.ref, req.CandidateRef)

	token := p.deps.Cancels.Token(req.SessionID)
	defer p.deps.Cancels.Release(req.SessionID)

	thread := fmt.Sprintf("audioguide:%s:%d", req.SessionID, req.CandidateRef)
	result, err := p.graph.Invoke(ctx, seed,
		graph.WithThread(thread),
		graph.WithCancelToken(token))
	if err != nil {
		return nil, err
	}

	return &AudioguideResult{
		TourID:   graph.Get(result.State, p.fields.tourID),
		Status:   graph.Get(result.State, p.fields.status),
		Segments: graph.Get(result.State, p.fields.segments),
		Path:     result.Path,
		Faults:   result.Faults,
	}, nil
}

func (p *AudioguidePipeline) token(state *graph.State) *cancel.Token {
	return p.deps.Cancels.Token(graph.Get(state, p.fields.sessionID))
}

// loadTour fetches the session and picks the requested candidate. Any load
// problem marks the run failed; the router then ends it without touching
// the providers.
func (p *AudioguidePipeline) loadTour(ctx context.Context, state *graph.State) (*graph.Update, error) {
	sessionID := graph.Get(state, p.fields.sessionID)
	ref := graph.Get(state, p.fields.ref)
	failed := graph.Set(graph.NewUpdate(), p.fields.status, store.TourFailed)

	session, err := p.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return failed, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return failed, fmt.Errorf("session %q not found", sessionID)
	}

	var candidates []Candidate
	if len(session.Candidates) > 0 {
		if err := json.Unmarshal(session.Candidates, &candidates); err != nil {
			return failed, fmt.Errorf("decode session candidates: %w", err)
		}
	}
	if ref >= len(candidates) {
		return failed, fmt.Errorf("candidate reference %d out of range [0,%d)", ref, len(candidates))
	}

	candidate := candidates[ref]
	p.logger.Info("tour loaded", "session_id", sessionID, "title", candidate.Title, "stops", len(candidate.Stops))

	update := graph.NewUpdate()
	graph.Set(update, p.fields.candidate, &candidate)
	graph.Set(update, p.fields.segments, initialSegments(&candidate))
	return update, nil
}

// afterLoad routes failed loads straight to the end; the failed status in
// state is the run's answer.
func (p *AudioguidePipeline) afterLoad(ctx context.Context, state *graph.State) graph.StepName {
	if graph.Get(state, p.fields.candidate) == nil {
		return graph.End
	}
	return stepWriteScripts
}

// initialSegments lays out one pending slot per narration: the intro first,
// then every stop in walking order.
func initialSegments(candidate *Candidate) []Segment {
	segments := make([]Segment, 0, len(candidate.Stops)+1)
	segments = append(segments, Segment{
		Index:  0,
		Kind:   fanout.KindIntro,
		Title:  candidate.Title,
		Status: SegmentPending,
	})
	for i, stop := range candidate.Stops {
		segments = append(segments, Segment{
			Index:   i + 1,
			Kind:    fanout.KindStop,
			Title:   stop.Name,
			PlaceID: stop.PlaceID,
			Status:  SegmentPending,
		})
	}
	return segments
}

// writeScripts fans the intro and every stop out through the script model
// and fans the texts back in by slot. A failed slot records its reason and
// the batch carries on; only cancellation stops the run.
func (p *AudioguidePipeline) writeScripts(ctx context.Context, state *graph.State) (*graph.Update, error) {
	candidate := graph.Get(state, p.fields.candidate)
	segments := slices.Clone(graph.Get(state, p.fields.segments))

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	items := make([]fanout.Item[Segment], len(segments))
	for i, segment := range segments {
		items[i] = fanout.Item[Segment]{Index: segment.Index, Kind: segment.Kind, Payload: segment}
	}

	total := len(candidate.Stops)
	language := p.deps.Config.Language
	outcomes, err := fanout.Run(watchCtx, items, p.deps.Config.FanoutLimit,
		func(ctx context.Context, item fanout.Item[Segment]) (string, error) {
			var prompt llm.Prompt
			if item.Kind == fanout.KindIntro {
				prompt = introPrompt(candidate, language)
			} else {
				prompt = stopPrompt(candidate, candidate.Stops[item.Index-1], item.Index, total, language)
			}
			return p.deps.Scripts.Generate(ctx, prompt)
		})
	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return nil, fmt.Errorf("write scripts: %w", err)
	}

	written := 0
	for i, outcome := range outcomes {
		switch outcome.Status {
		case fanout.StatusOK:
			segments[i].Text = outcome.Value
			segments[i].Status = SegmentOK
			written++
		case fanout.StatusCancelled:
			return nil, outcome.Err
		default:
			segments[i].Status = SegmentFailed
			segments[i].Reason = "script unavailable: " + outcome.Err.Error()
		}
	}

	p.logger.Info("scripts written", "ok", written, "failed", len(segments)-written)
	return graph.Set(graph.NewUpdate(), p.fields.segments, segments), nil
}

// synthesize fans the successfully written scripts out through the speech
// synthesizer. Slots that lose their audio here are demoted to failed; slots
// that never got a script are left as they are.
func (p *AudioguidePipeline) synthesize(ctx context.Context, state *graph.State) (*graph.Update, error) {
	segments := slices.Clone(graph.Get(state, p.fields.segments))

	var pending []fanout.Item[Segment]
	for _, segment := range segments {
		if segment.Status == SegmentOK && segment.Text != "" {
			pending = append(pending, fanout.Item[Segment]{Index: segment.Index, Kind: segment.Kind, Payload: segment})
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	watchCtx, stop := cancel.Watch(ctx, p.token(state), p.deps.Config.PollInterval)
	defer stop()

	voice, language := p.deps.Config.Voice, p.deps.Config.Language
	outcomes, err := fanout.Run(watchCtx, pending, p.deps.Config.FanoutLimit,
		func(ctx context.Context, item fanout.Item[Segment]) (*speech.AudioAsset, error) {
			return p.deps.Speech.Synthesize(ctx, speech.SynthesisRequest{
				Text:     item.Payload.Text,
				Voice:    voice,
				Language: language,
			})
		})
	if err != nil {
		if c := asCancellation(watchCtx, err); c != nil {
			return nil, c
		}
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	synthesized := 0
	for _, outcome := range outcomes {
		// Slot indexes double as positions in the segment list.
		segment := &segments[outcome.Index]
		switch {
		case outcome.Status == fanout.StatusCancelled:
			return nil, outcome.Err
		case outcome.Status == fanout.StatusOK && outcome.Value != nil:
			segment.AudioRef = outcome.Value.Ref
			segment.Format = outcome.Value.Format
			segment.DurationSeconds = int(math.Round(outcome.Value.DurationSeconds))
			synthesized++
		default:
			segment.Status = SegmentFailed
			segment.Reason = "narration audio unavailable"
			if outcome.Err != nil {
				segment.Reason += ": " + outcome.Err.Error()
			}
		}
	}

	p.logger.Info("narrations synthesized", "ok", synthesized, "of", len(outcomes))
	return graph.Set(graph.NewUpdate(), p.fields.segments, segments), nil
}

// assemble orders the slots, settles their final statuses, and derives the
// tour status: ready when every slot plays, failed when none does, partial
// in between.
func (p *AudioguidePipeline) assemble(ctx context.Context, state *graph.State) (*graph.Update, error) {
	segments := slices.Clone(graph.Get(state, p.fields.segments))
	slices.SortStableFunc(segments, func(a, b Segment) int { return a.Index - b.Index })

	playable := 0
	for i := range segments {
		if segments[i].Status == SegmentOK && segments[i].AudioRef != "" {
			playable++
			continue
		}
		if segments[i].Status != SegmentFailed {
			segments[i].Status = SegmentFailed
			if segments[i].Reason == "" {
				segments[i].Reason = "narration unavailable"
			}
		}
	}

	status := store.TourPartial
	switch playable {
	case len(segments):
		status = store.TourReady
	case 0:
		status = store.TourFailed
	}

	p.logger.Info("audioguide assembled",
		"playable", playable, "total", len(segments), "status", string(status))

	update := graph.NewUpdate()
	graph.Set(update, p.fields.segments, segments)
	graph.Set(update, p.fields.status, status)
	return update, nil
}

// persist writes the tour record. The record's UUID comes back from the
// store and becomes the tour's shareable identifier.
func (p *AudioguidePipeline) persist(ctx context.Context, state *graph.State) (*graph.Update, error) {
	record, err := tourRecord(
		graph.Get(state, p.fields.sessionID),
		graph.Get(state, p.fields.ref),
		graph.Get(state, p.fields.status),
		graph.Get(state, p.fields.segments),
	)
	if err != nil {
		return nil, fmt.Errorf("encode tour: %w", err)
	}

	saved, err := p.deps.Store.SaveTour(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("save tour: %w", err)
	}

	p.logger.Info("tour persisted", "tour_id", saved.ID, "status", string(saved.Status))
	return graph.Set(graph.NewUpdate(), p.fields.tourID, saved.ID), nil
}

// tourRecord encodes the segments as the persisted tour row: the intro slot
// in its own column, the stop slots as an array.
func tourRecord(sessionID string, ref int, status store.TourStatus, segments []Segment) (store.TourRecord, error) {
	record := store.TourRecord{
		SessionID:    sessionID,
		CandidateRef: ref,
		Status:       status,
	}

	if len(segments) == 0 {
		return record, nil
	}

	intro, err := json.Marshal(segments[0])
	if err != nil {
		return record, err
	}
	record.Intro = intro

	stops, err := json.Marshal(segments[1:])
	if err != nil {
		return record, err
	}
	record.Stops = stops

	return record, nil
}
