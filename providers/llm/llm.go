package llm

import "context"

// Prompt carries one generation request. System sets the model's role and
// constraints, User carries the task input, and Schema optionally describes
// the required output shape (for example a JSON array layout) when the caller
// intends to parse the response mechanically.
type Prompt struct {
	System string
	User   string
	Schema string
}

// CandidateModel produces structured output as a token stream. Pre-stream
// errors (auth, bad request, network) are returned as a normal error;
// mid-stream errors are yielded through the returned stream's iterator.
type CandidateModel interface {
	// StreamGenerate sends the prompt and returns a TokenStream that yields
	// raw text chunks as they arrive. Chunk boundaries are arbitrary and
	// carry no meaning; callers that need structure feed the stream into a
	// parser that tolerates fragmentation.
	StreamGenerate(ctx context.Context, prompt Prompt) (*TokenStream, error)
}

// ScriptModel produces a complete narration text in one call. Implementations
// are expected to be wrapped with a retry policy by the caller; see
// [FallbackScriptModel] for the degradation wrapper used by the pipelines.
type ScriptModel interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// SummaryRequest asks for a short factual summary of a named place or area.
// Context carries optional disambiguation hints (for example the enclosing
// city and country).
type SummaryRequest struct {
	PlaceName string
	Context   string
}

// Summary is the result of a summarization call.
type Summary struct {
	SummaryText string
	KeyFacts    []string
}

// Summarizer produces compact area summaries used to seed tour prompts.
type Summarizer interface {
	Summarize(ctx context.Context, request SummaryRequest) (*Summary, error)
}
