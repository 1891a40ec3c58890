// Package extract turns a chunked text stream carrying a top-level JSON
// array into a lazy stream of typed domain objects. Each object is emitted
// the instant its closing brace arrives, so consumers (candidate lists,
// per-stop scripts) can start work on the first element while the model is
// still producing the last one.
//
// The input is the raw token stream of an LLM response: chunk boundaries
// fall anywhere, including inside string escapes, and the emitted sequence
// is identical no matter how the text is split. The stream is finite,
// non-restartable, and never re-emits or revises an object. Memory is
// bounded by one pending element regardless of array length.
//
// Example:
//
//	stream := model.StreamGenerate(ctx, prompt)
//	for candidate, err := range extract.Objects[TourCandidate](stream.Iter()) {
//	    if err != nil {
//	        // mid-stream failure: everything already emitted stays valid
//	        break
//	    }
//	    render(candidate)
//	}
package extract

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/kaptinlin/jsonrepair"
)

// config holds the optional behaviors of an extraction run.
type config struct {
	previewFields []string
	previewFn     func(field, value string)
	tailRepair    bool
}

// Option configures Objects.
type Option func(*config)

// WithPreview registers a best-effort callback fired while an element is
// still incomplete, as soon as one of the named scalar string fields becomes
// fully visible in the buffered text. It exists for progressive UI feedback
// (show a candidate's title before its stops finish streaming) and fires at
// most once per field per element. Previews are non-authoritative: only the
// emitted object is trusted.
func WithPreview(fn func(field, value string), fields ...string) Option {
	return func(cfg *config) {
		cfg.previewFn = fn
		cfg.previewFields = fields
	}
}

// WithTailRepair attempts to salvage a final element left dangling when the
// chunk stream ends mid-object (truncated model output). The dangling text
// is run through jsonrepair and emitted only if the repaired form decodes
// cleanly. Off by default because a repaired object may be missing trailing
// fields.
func WithTailRepair() Option {
	return func(cfg *config) {
		cfg.tailRepair = true
	}
}

// Objects adapts a chunk stream into a stream of decoded T values, one per
// top-level array element, in array order.
//
// A chunk-level error terminates the sequence with that error after
// everything already complete has been emitted. An element that is complete
// and syntactically valid JSON but does not decode into T yields a decode
// error for that element and the sequence continues, so one malformed
// element does not discard the rest of the batch.
func Objects[T any](chunks iter.Seq2[string, error], opts ...Option) iter.Seq2[T, error] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(yield func(T, error) bool) {
		sc := newScanner(cfg)
		var zero T

		for chunk, err := range chunks {
			if err != nil {
				yield(zero, fmt.Errorf("reading chunk stream: %w", err))
				return
			}

			for _, raw := range sc.feed(chunk) {
				var element T
				if decodeErr := json.Unmarshal(raw, &element); decodeErr != nil {
					if !yield(zero, fmt.Errorf("decoding array element: %w", decodeErr)) {
						return
					}
					continue
				}
				if !yield(element, nil) {
					return
				}
			}
		}

		if cfg.tailRepair {
			if dangling := sc.finish(); len(dangling) > 0 {
				if element, ok := repairDangling[T](dangling); ok {
					yield(element, nil)
				}
			}
		}
	}
}

// All drains an object stream into a slice. On a mid-stream error it returns
// the objects emitted so far together with that error.
func All[T any](objects iter.Seq2[T, error]) ([]T, error) {
	var collected []T
	for element, err := range objects {
		if err != nil {
			return collected, err
		}
		collected = append(collected, element)
	}
	return collected, nil
}

// repairDangling runs truncated element text through jsonrepair and reports
// whether the result decodes into T.
func repairDangling[T any](dangling []byte) (T, bool) {
	var element T

	repaired, err := jsonrepair.JSONRepair(string(dangling))
	if err != nil {
		return element, false
	}
	if err := json.Unmarshal([]byte(repaired), &element); err != nil {
		return element, false
	}
	return element, true
}
