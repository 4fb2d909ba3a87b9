// Package llmclient is the opaque LM transport seam (§4.11): Call(agent,
// prompt, timeout) -> (raw_text, parsed_json_or_error), with hard timeouts,
// JSON extraction from prose, truncation marking, and telemetry persistence
// on every call regardless of outcome. The concrete wire protocol to any
// given vendor is out of scope for the engine proper (§1) and lives behind
// the Provider seam so a caller can swap providers per agent without
// touching the engine. Grounded on the provider abstraction in
// llm/provider.go, trimmed to the synchronous, non-streaming shape this
// engine needs (streaming is an explicit non-goal).
package llmclient

import "context"

// Request is the minimal shape every concrete provider adapter consumes.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Provider is a single LM backend. Completion must respect ctx's deadline
// and return an error (never a partial/garbled string) on cancellation.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// RefusalError marks a provider response that was a content-policy refusal
// rather than a transport failure. Providers that can detect this (e.g. a
// dedicated stop_reason or moderation field) should return it wrapped so
// Client.Call can map it to model.CodeLLMRefusal instead of LLM_UNPARSEABLE.
type RefusalError struct {
	Provider string
	Reason   string
}

func (e *RefusalError) Error() string {
	if e.Reason == "" {
		return e.Provider + ": refused to respond"
	}
	return e.Provider + ": refused to respond: " + e.Reason
}
