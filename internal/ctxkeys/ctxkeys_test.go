package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	got, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", got)
}

func TestTraceID_AbsentReturnsFalse(t *testing.T) {
	_, ok := TraceID(context.Background())
	assert.False(t, ok)
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	got, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", got)
}

func TestPromptBundleVersion_RoundTrip(t *testing.T) {
	ctx := WithPromptBundleVersion(context.Background(), "v3")
	got, ok := PromptBundleVersion(ctx)
	assert.True(t, ok)
	assert.Equal(t, "v3", got)
}

func TestLLMModel_RoundTrip(t *testing.T) {
	ctx := WithLLMModel(context.Background(), "claude-x")
	got, ok := LLMModel(ctx)
	assert.True(t, ok)
	assert.Equal(t, "claude-x", got)
}

func TestLLMModel_EmptyStringTreatedAsAbsent(t *testing.T) {
	ctx := WithLLMModel(context.Background(), "")
	_, ok := LLMModel(ctx)
	assert.False(t, ok)
}
