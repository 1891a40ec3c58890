// Package tour implements the two generation pipelines behind the product:
// candidate generation, which turns a location and a time budget into a
// ranked list of walking-tour candidates, and audioguide synthesis, which
// turns one chosen candidate into narrated audio per stop.
//
// Each pipeline is a typed-state graph built once from an injected [Deps]
// bundle and invoked per session. Steps degrade rather than abort: a failed
// provider call costs the run that step's contribution, and the pipeline
// still finishes with its best effort. Only configuration errors and
// session cancellation stop a run outright.
package tour
