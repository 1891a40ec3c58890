package llm

import (
	"iter"
	"strings"
)

// TokenStream wraps a streaming iterator over raw text chunks and provides
// automatic accumulation into the final text. It supports both range-based
// iteration for incremental processing and a convenience Collect method for
// callers who want the complete response.
//
// Callers must consume the stream, either by iterating with Iter (including
// breaking out of the loop early) or by calling Collect. The underlying
// provider may hold open resources (such as an HTTP response body) that are
// only released when the iterator completes or is abandoned via a loop break.
type TokenStream struct {
	iterator iter.Seq2[string, error]
}

// NewTokenStream creates a TokenStream from a raw streaming iterator. The
// iterator is expected to yield text chunks with a nil error for normal
// deltas, and may yield a non-nil error to signal a mid-stream failure.
func NewTokenStream(iterator iter.Seq2[string, error]) *TokenStream {
	return &TokenStream{iterator: iterator}
}

// NewSingleChunkStream wraps an already-complete text as a one-chunk stream.
// This is the fallback for providers without streaming support and the usual
// shape for scripted test doubles.
func NewSingleChunkStream(text string) *TokenStream {
	return NewTokenStream(func(yield func(string, error) bool) {
		if text == "" {
			return
		}
		yield(text, nil)
	})
}

// Iter returns the underlying iterator for use with range-over-func loops.
//
// Example:
//
//	for chunk, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    fmt.Print(chunk)
//	}
func (stream *TokenStream) Iter() iter.Seq2[string, error] {
	return stream.iterator
}

// Collect consumes the entire stream and returns the accumulated text.
// Any mid-stream error terminates collection and returns the partial text
// alongside the error.
func (stream *TokenStream) Collect() (string, error) {
	var accumulated strings.Builder

	for chunk, err := range stream.iterator {
		if err != nil {
			return accumulated.String(), err
		}
		accumulated.WriteString(chunk)
	}

	return accumulated.String(), nil
}
