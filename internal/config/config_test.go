package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().MaxTaskAttempts, cfg.MaxTaskAttempts)
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_task_attempts": 7, "workflow_mode": "v2"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxTaskAttempts)
	assert.Equal(t, model.ModeV2, cfg.WorkflowMode)
	assert.Equal(t, Default().PlanReviewPassScore, cfg.PlanReviewPassScore)
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_task_attempts": 0}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsBadWorkflowMode(t *testing.T) {
	cfg := Default()
	cfg.WorkflowMode = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangePassScore(t *testing.T) {
	cfg := Default()
	cfg.PlanReviewPassScore = 101
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveGuardrails(t *testing.T) {
	cfg := Default()
	cfg.Guardrails.MaxRunIterations = 0
	assert.Error(t, cfg.Validate())
}

func TestLLMConfig_TimeoutConvertsSecondsToDuration(t *testing.T) {
	cfg := LLMConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45e9, float64(cfg.Timeout()))
}
