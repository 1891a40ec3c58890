package tour

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/checkpoint"
	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/providers/geocode"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/providers/places"
	"github.com/wanderloop/wanderloop/providers/routes"
	"github.com/wanderloop/wanderloop/providers/speech"
	"github.com/wanderloop/wanderloop/store"
)

// Persistence is the slice of the store the pipelines need. *store.Store
// satisfies it.
type Persistence interface {
	SaveSession(ctx context.Context, record store.SessionRecord) error
	GetSession(ctx context.Context, id string) (*store.SessionRecord, error)
	SaveTour(ctx context.Context, record store.TourRecord) (store.TourRecord, error)
}

var _ Persistence = (*store.Store)(nil)

// Deps bundles every collaborator a pipeline needs. All collaborators are
// constructed once at process start and injected here; the pipelines hold no
// global state of their own.
//
// Checkpoints is optional (nil disables resumable state). Cancels and Logger
// default when nil. Everything else is required.
type Deps struct {
	Geocoder   geocode.ReverseGeocoder
	Places     places.SearchProvider
	Summarizer llm.Summarizer
	Candidates llm.CandidateModel
	Scripts    llm.ScriptModel
	Speech     speech.Synthesizer
	Routes     routes.Validator

	PlaceIndex  *cache.PlaceIndex
	Summaries   *cache.AreaSummaryCache
	Checkpoints checkpoint.Store
	Store       Persistence

	Cancels *cancel.Registry
	Logger  *slog.Logger
	Config  Config
}

// validate reports every missing required collaborator at once and fills in
// the optional defaults.
func (d *Deps) validate() error {
	var problems []error

	required := []struct {
		name    string
		missing bool
	}{
		{"Geocoder", d.Geocoder == nil},
		{"Places", d.Places == nil},
		{"Summarizer", d.Summarizer == nil},
		{"Candidates", d.Candidates == nil},
		{"Scripts", d.Scripts == nil},
		{"Speech", d.Speech == nil},
		{"Routes", d.Routes == nil},
		{"PlaceIndex", d.PlaceIndex == nil},
		{"Summaries", d.Summaries == nil},
		{"Store", d.Store == nil},
	}
	for _, dep := range required {
		if dep.missing {
			problems = append(problems, errors.New("tour: Deps."+dep.name+" is required"))
		}
	}

	if d.Cancels == nil {
		d.Cancels = cancel.NewRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Config.applyDefaults()

	return errors.Join(problems...)
}

// asCancellation returns the cancellation hiding behind a provider failure:
// the watch context's cause when the session flag interrupted the call, or
// the error itself when it already is one. It returns nil for genuine
// failures, which the caller reports as a step fault instead.
func asCancellation(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && cancel.IsCancellation(cause) {
		return cause
	}
	if cancel.IsCancellation(err) {
		return err
	}
	return nil
}

// Config carries the tunable knobs of both pipelines. The zero value is
// usable; every field has a default documented below.
type Config struct {
	// MinPlaces is the minimum place count the escalating search tries to
	// reach before generation. Default: 40.
	MinPlaces int

	// SearchRadiusMeters is the base search radius around the session's
	// origin. Default: 800.
	SearchRadiusMeters float64

	// EscalationFactor widens the radius on the final escalation tier.
	// Default: 1.5.
	EscalationFactor float64

	// PrimaryCategories are the place type labels treated as primary
	// sights. A place carrying any of them is preferred by the first
	// escalation tier.
	PrimaryCategories []string

	// MaxCandidates caps the ranked candidate list a session keeps.
	// Default: 3.
	MaxCandidates int

	// MinStops is the smallest stop count a candidate may reference and
	// still pass validation. Default: 2.
	MinStops int

	// FanoutLimit bounds concurrent script and synthesis tasks.
	// Default: 4.
	FanoutLimit int

	// PollInterval is how often in-flight provider calls re-check the
	// session's cancellation flag. Default: cancel.DefaultPollInterval.
	PollInterval time.Duration

	// StepTimeout bounds each graph step. Zero means no per-step bound.
	StepTimeout time.Duration

	// CheckpointTTL is the retention of saved run state. Default: 24h.
	CheckpointTTL time.Duration

	// Voice and Language select the synthesizer output. Defaults: "guide",
	// "en".
	Voice    string
	Language string
}

func (c *Config) applyDefaults() {
	if c.MinPlaces <= 0 {
		c.MinPlaces = 40
	}
	if c.SearchRadiusMeters <= 0 {
		c.SearchRadiusMeters = 800
	}
	if c.EscalationFactor <= 1 {
		c.EscalationFactor = 1.5
	}
	if len(c.PrimaryCategories) == 0 {
		c.PrimaryCategories = []string{
			"tourist_attraction", "museum", "landmark", "monument", "place_of_worship",
		}
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 3
	}
	if c.MinStops <= 0 {
		c.MinStops = 2
	}
	if c.FanoutLimit <= 0 {
		c.FanoutLimit = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = cancel.DefaultPollInterval
	}
	if c.CheckpointTTL <= 0 {
		c.CheckpointTTL = 24 * time.Hour
	}
	if c.Voice == "" {
		c.Voice = "guide"
	}
	if c.Language == "" {
		c.Language = "en"
	}
}
