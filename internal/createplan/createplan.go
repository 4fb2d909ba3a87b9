package createplan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/llmclient"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

// reviewTargetPlan is the review_target literal for a whole-plan review,
// following contracts.NormalizeXiaojingReview's own PLAN_REVIEW→PLAN alias.
const reviewTargetPlan = "PLAN"

// maxReviewRetries bounds the inner MAX_REVIEW loop (§4.9 step 2): retries
// of the reviewer call alone when its output is structurally invalid, never
// regenerating the plan itself.
const maxReviewRetries = 3

// maxNotesChars caps the remediation note threaded back into the next
// PLAN_GEN attempt (§4.9 step 2/edge case 6): never the raw reviewer JSON.
const maxNotesChars = 500

// CreatePlan runs the generate→review→retry sub-workflow end to end.
type CreatePlan struct {
	store     *store.Store
	workspace *workspace.Workspace
	llm       *llmclient.Client
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

func New(s *store.Store, ws *workspace.Workspace, llm *llmclient.Client, cfg *config.Config, logger *zap.Logger) *CreatePlan {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreatePlan{store: s, workspace: ws, llm: llm, cfg: cfg, logger: logger, now: time.Now}
}

// Run decomposes topTask into a plan graph, iterating generate→review until
// one round is approved or the attempt budget is spent. On exhaustion it
// returns a *model.EngineError carrying model.CodePlanNotApproved and
// leaves no plan committed — only the discardable PLAN_GEN stub rows from
// rejected rounds remain, which internal/doctor's structural sweep ignores
// since nothing references them from a DECOMPOSE-reachable graph the CLI
// surfaces.
func (c *CreatePlan) Run(ctx context.Context, topTask string) (*model.Plan, error) {
	retryNotes := ""
	for attempt := 1; attempt <= c.cfg.MaxTaskAttempts; attempt++ {
		entities, planJSON, err := c.generate(ctx, topTask, retryNotes, attempt)
		if err != nil {
			c.logger.Warn("plan_gen attempt failed to parse/validate", zap.Int("attempt", attempt), zap.Error(err))
			retryNotes = truncateNotes(fmt.Sprintf("Attempt %d was rejected: %s", attempt, err.Error()))
			continue
		}

		approved, notes, err := c.review(ctx, topTask, entities, planJSON)
		if err != nil {
			return nil, err
		}
		if approved {
			if err := c.commit(ctx, entities, planJSON); err != nil {
				return nil, fmt.Errorf("commit approved plan: %w", err)
			}
			if err := c.store.AppendEvent(ctx, nil, model.TaskEvent{
				EventID: uuid.NewString(), PlanID: entities.Plan.PlanID, EventType: "PLAN_APPROVED",
				Payload:   map[string]any{"attempt": attempt},
				CreatedAt: c.now().UTC(),
			}); err != nil {
				return nil, fmt.Errorf("append plan approved event: %w", err)
			}
			return &entities.Plan, nil
		}
		retryNotes = notes
	}

	return nil, model.NewEngineError(model.CodePlanNotApproved,
		"plan generation did not reach an approved graph within the attempt budget", nil)
}

// generate runs one PLAN_GEN attempt: invoke the executor role, normalize
// and validate the result as plan_json_v1, and on success persist the stub
// plans row so the LlmCall row has something to back-fill plan_id onto.
func (c *CreatePlan) generate(ctx context.Context, topTask, retryNotes string, attempt int) (*contracts.PlanEntities, map[string]any, error) {
	system, user, err := buildGenPrompt(genContext{
		TopTask: topTask, RetryNotes: retryNotes, MaxDecompositionDepth: c.cfg.MaxDecompositionDepth,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build plan_gen prompt: %w", err)
	}

	now := c.now().UTC()
	res, err := c.llm.Call(ctx, llmclient.CallParams{
		Agent:        model.AgentExecutor,
		Scope:        model.ScopePlanGen,
		SystemPrompt: system,
		UserPrompt:   user,
		Timeout:      c.cfg.LLM.Timeout(),
		Attempt:      attempt,
		RetryReason:  retryNotes,
		Normalize:    func(obj map[string]any) map[string]any { return contracts.NormalizePlanJSON(obj, topTask, now) },
		Validate:     contracts.ValidatePlanJSON,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("plan_gen llm call: %w", err)
	}
	if res.ErrorCode != nil {
		hint := "the generated plan could not be used"
		if res.ValidatorError != nil {
			hint = *res.ValidatorError
		}
		return nil, nil, fmt.Errorf("%s: %s", *res.ErrorCode, hint)
	}

	entities, err := contracts.ToPlanEntities(res.Normalized, now)
	if err != nil {
		return nil, nil, fmt.Errorf("convert plan entities: %w", err)
	}

	if err := c.store.UpsertPlan(ctx, nil, entities.Plan); err != nil {
		return nil, nil, fmt.Errorf("persist stub plan: %w", err)
	}
	if err := c.store.UpdateLlmCallPlanID(ctx, nil, res.LlmCallID, entities.Plan.PlanID); err != nil {
		return nil, nil, fmt.Errorf("backfill llm call plan_id: %w", err)
	}
	return entities, res.Normalized, nil
}

// review runs the PLAN_REVIEW step (§4.9 step 2), retrying the reviewer
// call alone up to maxReviewRetries on a structurally invalid response
// before giving up on this round entirely.
func (c *CreatePlan) review(ctx context.Context, topTask string, entities *contracts.PlanEntities, planJSON map[string]any) (approved bool, retryNotes string, err error) {
	system, user, err := buildReviewPrompt(reviewContext{
		PlanID: entities.Plan.PlanID, Title: entities.Plan.Title, RootTaskID: entities.Plan.RootTaskID,
		TopTask: topTask, PlanJSON: planJSON,
	})
	if err != nil {
		return false, "", fmt.Errorf("build plan_review prompt: %w", err)
	}

	planID := entities.Plan.PlanID
	var res *llmclient.Result
	for attempt := 1; attempt <= maxReviewRetries; attempt++ {
		res, err = c.llm.Call(ctx, llmclient.CallParams{
			PlanID:        &planID,
			Agent:         model.AgentReviewer,
			Scope:         model.ScopePlanReview,
			SystemPrompt:  system,
			UserPrompt:    user,
			Timeout:       c.cfg.LLM.Timeout(),
			ReviewAttempt: attempt,
			Normalize: func(obj map[string]any) map[string]any {
				return contracts.NormalizeXiaojingReview(obj, entities.Plan.RootTaskID, reviewTargetPlan)
			},
			Validate: func(obj map[string]any) error {
				return contracts.ValidateXiaojingReview(obj, reviewTargetPlan)
			},
		})
		if err != nil {
			return false, "", fmt.Errorf("plan_review llm call: %w", err)
		}
		if res.ErrorCode == nil {
			break
		}
		c.logger.Warn("plan review did not parse, retrying", zap.String("plan_id", planID), zap.Int("attempt", attempt))
	}
	if res.ErrorCode != nil {
		return false, "", model.NewEngineError(model.CodePlanInvalid, "reviewer could not produce a structurally valid plan review", nil)
	}

	score, _ := res.Normalized["total_score"].(int)
	action, _ := res.Normalized["action_required"].(string)
	summary, _ := res.Normalized["summary"].(string)

	if err := c.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, EventType: "PLAN_REVIEWED",
		Payload:   map[string]any{"total_score": score, "action_required": action, "llm_call_id": res.LlmCallID},
		CreatedAt: c.now().UTC(),
	}); err != nil {
		return false, "", fmt.Errorf("append plan reviewed event: %w", err)
	}

	if action == string(model.ActionApprove) && score >= c.cfg.PlanReviewPassScore {
		return true, "", nil
	}
	return false, distillRetryNotes(summary, res.Normalized), nil
}

// commit materializes the approved plan graph into the store and writes
// the normalized plan_json to disk for audit.
func (c *CreatePlan) commit(ctx context.Context, entities *contracts.PlanEntities, planJSON map[string]any) error {
	raw, err := json.MarshalIndent(planJSON, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan json: %w", err)
	}
	if err := workspace.WriteFile(c.workspace.PlanPath(entities.Plan.PlanID), raw, 0o644); err != nil {
		return fmt.Errorf("write plan to disk: %w", err)
	}

	return c.store.Tx(ctx, func(ctx context.Context, q store.Querier) error {
		if err := c.store.UpsertPlan(ctx, q, entities.Plan); err != nil {
			return fmt.Errorf("upsert plan: %w", err)
		}
		for _, n := range entities.Nodes {
			if err := c.store.UpsertTaskNode(ctx, q, n); err != nil {
				return fmt.Errorf("upsert task node %s: %w", n.TaskID, err)
			}
		}
		for _, e := range entities.Edges {
			if err := c.store.InsertTaskEdge(ctx, q, e); err != nil {
				return fmt.Errorf("insert task edge %s: %w", e.EdgeID, err)
			}
		}
		for _, r := range entities.Requirements {
			if err := c.store.InsertRequirement(ctx, q, r); err != nil {
				return fmt.Errorf("insert requirement %s: %w", r.RequirementID, err)
			}
		}
		return nil
	})
}

// distillRetryNotes turns a rejected review into a short, human-authored
// remediation note — never the raw reviewer JSON (§4.9 edge case 6).
func distillRetryNotes(summary string, obj map[string]any) string {
	var b strings.Builder
	if s := strings.TrimSpace(summary); s != "" {
		b.WriteString(s)
	}
	if suggestions, ok := obj["suggestions"].([]any); ok {
		for _, s := range suggestions {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			change, _ := sm["change"].(string)
			change = strings.TrimSpace(change)
			if change == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(change)
		}
	}
	return truncateNotes(b.String())
}

func truncateNotes(s string) string {
	if len(s) > maxNotesChars {
		return s[:maxNotesChars]
	}
	return s
}
