package main

import (
	"fmt"
	"log/slog"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/checkpoint/memcheckpoint"
	"github.com/wanderloop/wanderloop/core/cancel"
	"github.com/wanderloop/wanderloop/internal/config"
	"github.com/wanderloop/wanderloop/providers/llm"
	"github.com/wanderloop/wanderloop/store"
	"github.com/wanderloop/wanderloop/tour"
)

// buildDeps assembles the dependency bundle both pipelines run on: offline
// collaborators around real caches, an in-memory checkpoint store and the
// SQLite store. The returned cleanup closes the store.
func buildDeps(cfg config.Config, logger *slog.Logger) (tour.Deps, func(), error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return tour.Deps{}, nil, fmt.Errorf("open store %s: %w", cfg.Database.Path, err)
	}

	scripts := llm.NewFallbackScriptModel(
		offlineScriptModel{},
		offlineScriptModel{},
		llm.WithLogger(logger.With("component", "scripts")),
	)

	deps := tour.Deps{
		Geocoder:    offlineGeocoder{},
		Places:      offlinePlaces{},
		Summarizer:  offlineSummarizer{},
		Candidates:  offlineCandidateModel{},
		Scripts:     scripts,
		Speech:      offlineSpeech{},
		Routes:      offlineRoutes{},
		PlaceIndex:  cache.NewPlaceIndex(),
		Summaries:   cache.NewAreaSummaryCache(),
		Checkpoints: memcheckpoint.New(),
		Store:       st,
		Cancels:     cancel.NewRegistry(),
		Logger:      logger,
		Config:      cfg.Tour(),
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}
	return deps, cleanup, nil
}
