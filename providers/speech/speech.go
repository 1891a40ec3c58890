// Package speech defines the text-to-speech contract used to narrate tour
// scripts.
package speech

import "context"

// SynthesisRequest asks for one narration clip.
type SynthesisRequest struct {
	Text     string
	Voice    string
	Language string
}

// AudioAsset references a synthesized clip. Ref is an opaque locator
// (object-store key, URL) owned by the synthesizer; callers persist it
// verbatim.
type AudioAsset struct {
	Ref             string
	Format          string
	DurationSeconds float64
}

// Synthesizer converts narration text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, request SynthesisRequest) (*AudioAsset, error)
}
