package createplan

import (
	"encoding/json"
	"strings"
)

const sharedPrompt = `You are part of a two-agent planning and execution system.
Every response you return must be a single JSON object and nothing else:
no markdown fences, no prose before or after it. If you cannot comply,
return the smallest JSON object that explains why instead of free text.
A RUNTIME_CONTEXT_JSON block follows these instructions with the concrete
task, evidence, and history you need to act on.`

// planGenPrompt instructs xiaobo to decompose one top-task string into a
// full plan graph.
const planGenPrompt = `You are xiaobo, the executor agent, now acting as the
plan generator. Given one top-level task description, decompose it into a
task graph rooted at a single GOAL node.

Respond with exactly one JSON object shaped as plan_json_v1:
  {"plan":{"plan_id","title","owner_agent_id","root_task_id","created_at","constraints"},
   "nodes":[{"task_id","node_type":"GOAL|ACTION|CHECK","title","owner_agent_id","priority",
             "goal_statement","rationale","tags":[...]}],
   "edges":[{"edge_id","from_task_id","to_task_id","edge_type":"DECOMPOSE|DEPENDS_ON|ALTERNATIVE",
             "metadata":{"and_or":"AND|OR","group_id":"..."}}],
   "requirements":[{"requirement_id","task_id","name","kind":"FILE|CONFIRMATION|SKILL_OUTPUT",
             "required","min_count","allowed_types":[...],"source":"USER|AGENT|ANY",
             "filename_keywords":[...]}]}

The root node must be a GOAL reachable from every other node by DECOMPOSE
edges. Keep the graph shallow and concrete: prefer a handful of ACTION
leaves over deep nesting. If retry_notes are present, they describe what a
reviewer rejected about your previous attempt — fix exactly that, don't
restart from scratch.`

type genContext struct {
	TopTask               string `json:"top_task"`
	RetryNotes            string `json:"retry_notes,omitempty"`
	MaxDecompositionDepth int    `json:"max_decomposition_depth"`
}

// buildGenPrompt renders the PLAN_GEN system+user pair.
func buildGenPrompt(rc genContext) (system, user string, err error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(sharedPrompt) + "\n\n" + strings.TrimSpace(planGenPrompt)
	user = "RUNTIME_CONTEXT_JSON:\n" + string(payload)
	return system, user, nil
}

// planReviewPrompt instructs xiaojing to grade a generated plan graph as a
// whole, rather than one task's deliverable (internal/reviewer's concern).
const planReviewPrompt = `You are xiaojing, the reviewer agent, now grading a
freshly generated plan graph instead of a single task's deliverable.

Respond with exactly one JSON object shaped as xiaojing_review_v1:
  {"schema_version":"xiaojing_review_v1","task_id":"...","review_target":"PLAN",
   "total_score":0-100,"breakdown":[{"dimension","score","max_score","issues":[
     {"problem","evidence","impact","suggestion","acceptance_criteria"}]}],
   "summary":"...","action_required":"APPROVE|MODIFY|REQUEST_EXTERNAL_INPUT",
   "suggestions":[{"priority":"HIGH|MED|LOW","change","steps":[...],"acceptance_criteria"}]}

A total_score of 90 or above requires action_required=APPROVE; anything
below 90 must not be APPROVE. Judge whether the graph is well-decomposed,
reachable from its root, and free of vague or unverifiable leaf tasks.`

type reviewContext struct {
	PlanID     string         `json:"plan_id"`
	Title      string         `json:"title"`
	RootTaskID string         `json:"root_task_id"`
	TopTask    string         `json:"top_task"`
	PlanJSON   map[string]any `json:"plan_json"`
}

// buildReviewPrompt renders the PLAN_REVIEW system+user pair.
func buildReviewPrompt(rc reviewContext) (system, user string, err error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(sharedPrompt) + "\n\n" + strings.TrimSpace(planReviewPrompt)
	user = "RUNTIME_CONTEXT_JSON:\n" + string(payload)
	return system, user, nil
}
