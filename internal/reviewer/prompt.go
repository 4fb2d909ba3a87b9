package reviewer

import (
	"encoding/json"
	"strings"
)

const sharedPromptVersion = "shared_prompt_v1"
const xiaojingPromptVersion = "agent_xiaojing_prompt_v1"

// sharedPrompt mirrors internal/executor's copy verbatim: both agents are
// held to the same wire contract.
const sharedPrompt = `You are part of a two-agent planning and execution system.
Every response you return must be a single JSON object and nothing else:
no markdown fences, no prose before or after it. If you cannot comply,
return the smallest JSON object that explains why instead of free text.
A RUNTIME_CONTEXT_JSON block follows these instructions with the concrete
task, evidence, and history you need to act on.`

// xiaojingPrompt is the reviewer-specific instruction block.
const xiaojingPrompt = `You are xiaojing, the reviewer agent. Given one
deliverable produced for a task, grade it against the task's acceptance
criteria and decide whether it may be accepted.

Respond with exactly one JSON object shaped as xiaojing_review_v1:
  {"schema_version":"xiaojing_review_v1","task_id":"...","review_target":"NODE",
   "total_score":0-100,"breakdown":[{"dimension","score","max_score","issues":[
     {"problem","evidence","impact","suggestion","acceptance_criteria"}]}],
   "summary":"...","action_required":"APPROVE|MODIFY|REQUEST_EXTERNAL_INPUT",
   "suggestions":[{"priority":"HIGH|MED|LOW","change","steps":[...],"acceptance_criteria"}]}

A total_score of 90 or above requires action_required=APPROVE; anything
below 90 must not be APPROVE. Use REQUEST_EXTERNAL_INPUT only when the
deliverable cannot be judged without something only a human can supply.
Ground every issue and suggestion in the artifact content you were given —
never invent evidence.`

type planContext struct {
	PlanID    string `json:"plan_id"`
	Title     string `json:"title"`
	RootTitle string `json:"root_title"`
}

type taskContext struct {
	TaskID             string `json:"task_id"`
	Title              string `json:"title"`
	Status             string `json:"status"`
	AttemptCount       int    `json:"attempt_count"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
}

type artifactContext struct {
	ArtifactID string `json:"artifact_id"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Version    int    `json:"version"`
	Content    string `json:"content"`
	Truncated  bool   `json:"truncated"`
}

// RuntimeContext is the task-specific material appended after the fixed
// shared+agent prompt text (§4.8).
type RuntimeContext struct {
	Plan     planContext     `json:"plan"`
	Task     taskContext     `json:"task"`
	Artifact artifactContext `json:"artifact"`
}

// BuildPrompt renders the fixed system instructions and the runtime-context
// user message, the same two-string split internal/executor uses.
func BuildPrompt(rc RuntimeContext) (system string, user string, err error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(sharedPrompt) + "\n\n" + strings.TrimSpace(xiaojingPrompt)
	user = "RUNTIME_CONTEXT_JSON:\n" + string(payload)
	return system, user, nil
}

// xiaojingCheckPrompt is the instruction block for a dedicated CHECK node:
// unlike BuildPrompt's single deliverable, a CHECK node gates on every
// DEPENDS_ON predecessor's approved output at once.
const xiaojingCheckPrompt = `You are xiaojing, the reviewer agent, judging a
CHECK gate rather than a single task's deliverable. You are given every
upstream artifact the gate depends on; decide whether the combination of
them satisfies the gate's acceptance criteria.

Respond with exactly one JSON object shaped as xiaojing_review_v1, the same
schema used for single-task reviews, with task_id set to the CHECK node's
own id and review_target="NODE":
  {"schema_version":"xiaojing_review_v1","task_id":"...","review_target":"NODE",
   "total_score":0-100,"breakdown":[{"dimension","score","max_score","issues":[
     {"problem","evidence","impact","suggestion","acceptance_criteria"}]}],
   "summary":"...","action_required":"APPROVE|MODIFY|REQUEST_EXTERNAL_INPUT",
   "suggestions":[{"priority":"HIGH|MED|LOW","change","steps":[...],"acceptance_criteria"}]}

A total_score of 90 or above requires action_required=APPROVE; anything
below 90 must not be APPROVE. Ground every issue in the artifacts you were
given — never invent evidence.`

type checkSourceContext struct {
	TaskID    string          `json:"task_id"`
	TaskTitle string          `json:"task_title"`
	Artifact  artifactContext `json:"artifact"`
}

// CheckRuntimeContext is the material handed to a CHECK node review: the
// gate node itself plus every upstream artifact it depends on.
type CheckRuntimeContext struct {
	Plan    planContext          `json:"plan"`
	Check   taskContext          `json:"check"`
	Sources []checkSourceContext `json:"sources"`
}

// BuildCheckPrompt renders the CHECK-node variant of BuildPrompt.
func BuildCheckPrompt(rc CheckRuntimeContext) (system string, user string, err error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(sharedPrompt) + "\n\n" + strings.TrimSpace(xiaojingCheckPrompt)
	user = "RUNTIME_CONTEXT_JSON:\n" + string(payload)
	return system, user, nil
}
