// Package config loads the engine's single JSON configuration file (§6).
// Environment variable overrides are explicitly disallowed by the
// specification this engine implements, unlike the teacher's YAML+env
// loader (config/loader.go) — so this loader only layers defaults under
// whatever the file provides, with no env-var pass.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dagrunner/planengine/internal/model"
)

// Config is the full engine configuration (§6).
type Config struct {
	MaxDecompositionDepth      int                 `json:"max_decomposition_depth"`
	OneShotThresholdPersonDays float64             `json:"one_shot_threshold_person_days"`
	PlanReviewPassScore        int                 `json:"plan_review_pass_score"`
	WorkflowMode               model.WorkflowMode  `json:"workflow_mode"`
	MaxTaskAttempts            int                 `json:"max_task_attempts"`
	FailedAutoResetReady       bool                `json:"failed_auto_reset_ready"`
	LLM                        LLMConfig           `json:"llm"`
	Guardrails                 GuardrailsConfig    `json:"guardrails"`
	DBPath                     string              `json:"db_path"`
	WorkspaceRoot              string              `json:"workspace_root"`
	Telemetry                  TelemetryConfig     `json:"telemetry"`
}

// TelemetryConfig controls the optional OTLP export of traces/metrics for
// the tick loop and LM calls. Disabled by default; the engine never dials
// out on its own.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	ServiceName  string  `json:"service_name"`
	SampleRate   float64 `json:"sample_rate"`
}

// LLMConfig configures the LM Client's transport timeout (§6: llm.timeout_s).
type LLMConfig struct {
	TimeoutSeconds int `json:"timeout_s"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GuardrailsConfig is the fuse/cap block of §6 and §5.
type GuardrailsConfig struct {
	MaxRunIterations          int `json:"max_run_iterations"`
	MaxLLMCallsPerRun         int `json:"max_llm_calls_per_run"`
	MaxLLMCallsPerTask        int `json:"max_llm_calls_per_task"`
	MaxPromptChars            int `json:"max_prompt_chars"`
	MaxResponseChars          int `json:"max_response_chars"`
	MaxTaskEventsPerTask      int `json:"max_task_events_per_task"`
	MaxLLMCallsRows           int `json:"max_llm_calls_rows"`
	MaxTaskEventsRows         int `json:"max_task_events_rows"`
	MaxArtifactVersionsPerTask int `json:"max_artifact_versions_per_task"`
	MaxReviewVersionsPerCheck int `json:"max_review_versions_per_check"`
	MaxPlanRuntimeSeconds     int `json:"max_plan_runtime_seconds"`
	MaxLLMCalls               int `json:"max_llm_calls"`
	PollIntervalSeconds       int `json:"poll_interval_seconds"`
	SkillTimeoutSeconds       int `json:"skill_timeout_seconds"`
	MaxEvidenceSnippetChars   int `json:"max_evidence_snippet_chars"`
}

// Default returns the engine's built-in defaults (§6), applied before any
// JSON file is layered on top.
func Default() *Config {
	return &Config{
		MaxDecompositionDepth:      6,
		OneShotThresholdPersonDays: 3,
		PlanReviewPassScore:        90,
		WorkflowMode:               model.ModeV1,
		MaxTaskAttempts:            3,
		FailedAutoResetReady:       false, // §9 open question: default off for audit clarity.
		LLM:                        LLMConfig{TimeoutSeconds: 120},
		Guardrails: GuardrailsConfig{
			MaxRunIterations:           500,
			MaxLLMCallsPerRun:          200,
			MaxLLMCallsPerTask:         10,
			MaxPromptChars:             60000,
			MaxResponseChars:           60000,
			MaxTaskEventsPerTask:       500,
			MaxLLMCallsRows:            5000,
			MaxTaskEventsRows:          20000,
			MaxArtifactVersionsPerTask: 20,
			MaxReviewVersionsPerCheck:  20,
			MaxPlanRuntimeSeconds:      3600,
			MaxLLMCalls:                500,
			PollIntervalSeconds:        2,
			SkillTimeoutSeconds:        30,
			MaxEvidenceSnippetChars:    4000,
		},
		DBPath:        "planengine.db",
		WorkspaceRoot: ".",
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "planengine",
			SampleRate:   1.0,
		},
	}
}

// Load reads path, merging it over Default(). A missing file is not an
// error — the engine runs on defaults. A malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot safely run under.
func (c *Config) Validate() error {
	switch {
	case c.MaxDecompositionDepth <= 0:
		return fmt.Errorf("max_decomposition_depth must be positive")
	case c.PlanReviewPassScore < 0 || c.PlanReviewPassScore > 100:
		return fmt.Errorf("plan_review_pass_score must be in [0,100]")
	case c.WorkflowMode != model.ModeV1 && c.WorkflowMode != model.ModeV2:
		return fmt.Errorf("workflow_mode must be v1 or v2")
	case c.MaxTaskAttempts <= 0:
		return fmt.Errorf("max_task_attempts must be positive")
	case c.LLM.TimeoutSeconds <= 0:
		return fmt.Errorf("llm.timeout_s must be positive")
	case c.Guardrails.MaxRunIterations <= 0:
		return fmt.Errorf("guardrails.max_run_iterations must be positive")
	case c.Guardrails.MaxLLMCalls <= 0:
		return fmt.Errorf("guardrails.max_llm_calls must be positive")
	}
	return nil
}
