// Package ctxkeys defines typed context.Context keys for a run id, a trace
// id, a prompt bundle version and a per-call model override, with setters
// and getters that treat an empty string as absent. No other package in
// this module sets or reads these keys.
package ctxkeys

import "context"

type contextKey string

const (
	traceIDKey             contextKey = "trace_id"
	runIDKey               contextKey = "run_id"
	promptBundleVersionKey contextKey = "prompt_bundle_version"
	llmModelKey            contextKey = "llm_model"
)

// WithTraceID attaches a trace id to ctx, for correlating log lines and
// OTel spans across one tick.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRunID attaches the current run's id, distinguishing repeated
// invocations of the run loop against the same plan.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPromptBundleVersion records which prompt template set produced the
// request, so an LlmCall row can be traced back to the prompt that shaped it.
func WithPromptBundleVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, promptBundleVersionKey, version)
}

func PromptBundleVersion(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(promptBundleVersionKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithLLMModel records a model name that overrides the configured default
// for calls made with this context.
func WithLLMModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, llmModelKey, model)
}

func LLMModel(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(llmModelKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
