// Package llm defines the provider-agnostic model contracts consumed by the
// tour pipelines. Each implementation maps these types to its own wire
// format, keeping the pipeline code decoupled from provider-specific details.
//
// The three contracts are [CandidateModel] for streamed structured
// generation, [ScriptModel] for synchronous narration text, and [Summarizer]
// for short area summaries. Streamed output flows through [TokenStream].
// Provider failures carry their HTTP status in [ProviderError] so retry
// policies can separate transient rate limits from fatal request errors, and
// [FallbackScriptModel] degrades to a lower-tier model once the primary has
// exhausted its retries.
package llm
