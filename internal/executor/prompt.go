package executor

import (
	"encoding/json"
	"strings"
)

const sharedPromptVersion = "shared_prompt_v1"
const xiaoboPromptVersion = "agent_xiaobo_prompt_v1"

// sharedPrompt is the fixed material every call to either agent carries:
// the wire contract both of them must honor.
const sharedPrompt = `You are part of a two-agent planning and execution system.
Every response you return must be a single JSON object and nothing else:
no markdown fences, no prose before or after it. If you cannot comply,
return the smallest JSON object that explains why instead of free text.
A RUNTIME_CONTEXT_JSON block follows these instructions with the concrete
task, evidence, and history you need to act on.`

// xiaoboPrompt is the executor-specific instruction block.
const xiaoboPrompt = `You are xiaobo, the executor agent. Given one scheduled
task, either produce a deliverable or explain precisely why you cannot yet.

Respond with exactly one JSON object shaped as xiaobo_action_v1:
  {"schema_version":"xiaobo_action_v1","task_id":"...","result_type":"ARTIFACT|NEEDS_INPUT|NOOP|ERROR", ...}

- ARTIFACT: include {"artifact":{"name","format","content"}}. format is one
  of md|txt|json|html|css|js. content is the full deliverable text.
- NEEDS_INPUT: include {"needs_input":{"required_docs":[{"name","description","accepted_types"}]}}
  when you cannot proceed without a document or confirmation the user must supply.
- NOOP: nothing changed; explain why in a short "reason" field.
- ERROR: include {"error":{"code","message"}} using one of the engine's
  known error codes when a tool or precondition failed in a way you cannot
  route around on your own.

Use the suggestions from the most recent review, the requirements and
evidence listed, and the approved artifacts from upstream tasks as your
grounding. Do not invent evidence you were not given.`

// taskContext is the task-specific slice of RuntimeContext.
type taskContext struct {
	TaskID       string `json:"task_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	AttemptCount int    `json:"attempt_count"`
	Priority     int    `json:"priority"`
}

type planContext struct {
	PlanID    string `json:"plan_id"`
	Title     string `json:"title"`
	RootTitle string `json:"root_title"`
}

type requirementContext struct {
	RequirementID string   `json:"requirement_id"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Required      bool     `json:"required"`
	MinCount      int      `json:"min_count"`
	AllowedTypes  []string `json:"allowed_types"`
	Source        string   `json:"source"`
}

type evidenceContext struct {
	EvidenceID      string `json:"evidence_id"`
	RequirementID   string `json:"requirement_id"`
	RequirementName string `json:"requirement_name"`
	Path            string `json:"path"`
	SHA256          string `json:"sha256"`
	Snippet         string `json:"extracted_text,omitempty"`
}

type upstreamArtifactContext struct {
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// RuntimeContext is the task-specific material appended after the fixed
// shared+agent prompt text (§4.7).
type RuntimeContext struct {
	Plan              planContext               `json:"plan"`
	Task              taskContext               `json:"task"`
	Requirements      []requirementContext      `json:"requirements"`
	Evidence          []evidenceContext         `json:"evidence"`
	Suggestions       string                    `json:"suggestions"`
	UpstreamArtifacts []upstreamArtifactContext `json:"upstream_artifacts"`
}

// BuildPrompt renders the fixed system instructions and the runtime-context
// user message. Kept as two strings (rather than one joined blob, as the
// original Python prompt builder does) because every Provider in this
// engine exposes a distinct system/user split.
func BuildPrompt(rc RuntimeContext) (system string, user string, err error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(sharedPrompt) + "\n\n" + strings.TrimSpace(xiaoboPrompt)
	user = "RUNTIME_CONTEXT_JSON:\n" + string(payload)
	return system, user, nil
}
