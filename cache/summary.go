package cache

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

// defaultSummaryRetention is how long an area summary stays served before
// being regenerated. Summaries describe slow-moving facts about an area,
// so a month-long window trades freshness for generation cost.
const defaultSummaryRetention = 30 * 24 * time.Hour

// AreaKey addresses one summary in the country/city/neighborhood
// hierarchy. Country alone denotes a country-level entry, country+city a
// city-level entry, and all three a neighborhood-level entry.
type AreaKey struct {
	Country      string
	City         string
	Neighborhood string
}

// Validate checks the hierarchy rules: country is mandatory, and a
// neighborhood can only be named together with its city. A key that names
// a neighborhood without a city is rejected outright rather than degraded
// to a city- or country-level key.
func (k AreaKey) Validate() error {
	if strings.TrimSpace(k.Country) == "" {
		return &ValidationError{Reason: "area key requires a country"}
	}
	if k.Neighborhood != "" && k.City == "" {
		return &ValidationError{Reason: fmt.Sprintf("area key names neighborhood %q without a city", k.Neighborhood)}
	}
	return nil
}

// Level reports the hierarchy level the key addresses: "country", "city",
// or "neighborhood".
func (k AreaKey) Level() string {
	switch {
	case k.Neighborhood != "":
		return "neighborhood"
	case k.City != "":
		return "city"
	default:
		return "country"
	}
}

// String renders the key as a path for logs and error messages.
func (k AreaKey) String() string {
	parts := []string{k.Country}
	if k.City != "" {
		parts = append(parts, k.City)
	}
	if k.Neighborhood != "" {
		parts = append(parts, k.Neighborhood)
	}
	return strings.Join(parts, "/")
}

// AreaSummary is the cached description of one area: a narrative summary,
// the key facts worth surfacing to the script writer, and any derived
// assets (such as a pre-rendered intro audio reference) keyed by asset
// name.
type AreaSummary struct {
	SummaryText   string            `json:"summary_text"`
	KeyFacts      []string          `json:"key_facts,omitempty"`
	DerivedAssets map[string]string `json:"derived_assets,omitempty"`
}

type summaryRecord struct {
	summary  AreaSummary
	storedAt time.Time
}

// AreaSummaryCache stores area summaries under validated hierarchical
// keys. Entries expire a fixed retention window after their write,
// independent of how often they are read.
type AreaSummaryCache struct {
	mu        sync.Mutex
	entries   map[AreaKey]summaryRecord
	retention time.Duration
	now       func() time.Time
}

// SummaryCacheOption configures an AreaSummaryCache.
type SummaryCacheOption func(*AreaSummaryCache)

// WithSummaryRetention overrides the retention window. Defaults to 30
// days.
func WithSummaryRetention(retention time.Duration) SummaryCacheOption {
	return func(cache *AreaSummaryCache) {
		if retention > 0 {
			cache.retention = retention
		}
	}
}

// WithSummaryClock overrides the time source, for tests.
func WithSummaryClock(now func() time.Time) SummaryCacheOption {
	return func(cache *AreaSummaryCache) {
		if now != nil {
			cache.now = now
		}
	}
}

// NewAreaSummaryCache creates an empty summary cache.
func NewAreaSummaryCache(opts ...SummaryCacheOption) *AreaSummaryCache {
	cache := &AreaSummaryCache{
		entries:   make(map[AreaKey]summaryRecord),
		retention: defaultSummaryRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Read returns the summary stored under key, or nil when there is none or
// it has expired. The key is validated before the lookup; an invalid key
// is an error, never a miss. Reading does not extend an entry's life.
func (c *AreaSummaryCache) Read(key AreaKey) (*AreaSummary, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.entries[key]
	if !exists {
		return nil, nil
	}
	if c.now().Sub(record.storedAt) > c.retention {
		delete(c.entries, key)
		return nil, nil
	}

	summary := cloneSummary(record.summary)
	return &summary, nil
}

// Write stores the summary under key, replacing any previous entry and
// restarting its retention window. The key is validated first; an invalid
// key never reaches the map.
func (c *AreaSummaryCache) Write(key AreaKey, summary AreaSummary) error {
	if err := key.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = summaryRecord{
		summary:  cloneSummary(summary),
		storedAt: c.now(),
	}
	return nil
}

// PurgeExpired removes every entry past its retention window and returns
// how many were dropped.
func (c *AreaSummaryCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for key, record := range c.entries {
		if now.Sub(record.storedAt) > c.retention {
			delete(c.entries, key)
			purged++
		}
	}
	return purged
}

// Len reports the number of stored entries, expired or not.
func (c *AreaSummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cloneSummary copies the summary so the cache and its callers never share
// mutable backing storage.
func cloneSummary(summary AreaSummary) AreaSummary {
	cloned := AreaSummary{SummaryText: summary.SummaryText}
	if summary.KeyFacts != nil {
		cloned.KeyFacts = append([]string(nil), summary.KeyFacts...)
	}
	if summary.DerivedAssets != nil {
		cloned.DerivedAssets = maps.Clone(summary.DerivedAssets)
	}
	return cloned
}
