package reviewer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/llmclient"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/workspace"
)

// RunCheckNode reviews a dedicated CHECK node: unlike Run, which judges one
// ACTION task's own artifact, a CHECK node gates on every DEPENDS_ON
// predecessor's approved output taken together. Rejection is charged
// against the predecessor task picked by gatherCheckSources, not against
// the CHECK node itself, which has no attempt_count budget of its own — the
// node is simply reset to PENDING so readiness re-blocks it on the
// now-non-DONE predecessor.
func (r *Reviewer) RunCheckNode(ctx context.Context, check model.TaskNode) error {
	if check.NodeType != model.NodeCheck {
		return fmt.Errorf("reviewer: task %s is not a CHECK node", check.TaskID)
	}

	sources, target, err := r.gatherCheckSources(ctx, check)
	if err != nil {
		return fmt.Errorf("gather check sources: %w", err)
	}
	if len(sources) == 0 {
		// Readiness only marks a CHECK node READY once its DEPENDS_ON
		// predecessors are DONE, so this indicates a predecessor's
		// approved artifact was removed out from under us; leave the
		// node for the next readiness sweep to sort out.
		r.logger.Warn("check node has no reviewable predecessor artifacts", zap.String("task_id", check.TaskID))
		return nil
	}

	plan, err := r.store.GetPlan(ctx, check.PlanID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	rootTitle := ""
	if root, err := r.store.GetTaskNode(ctx, plan.RootTaskID); err == nil {
		rootTitle = root.Title
	}
	acceptance := ""
	if check.AcceptanceCriteria != nil {
		acceptance = *check.AcceptanceCriteria
	}

	system, user, err := BuildCheckPrompt(CheckRuntimeContext{
		Plan: planContext{PlanID: plan.PlanID, Title: plan.Title, RootTitle: rootTitle},
		Check: taskContext{
			TaskID: check.TaskID, Title: check.Title, Status: string(check.Status),
			AttemptCount: check.AttemptCount, AcceptanceCriteria: acceptance,
		},
		Sources: sources,
	})
	if err != nil {
		return fmt.Errorf("build check prompt: %w", err)
	}

	var res *llmclient.Result
	taskID := check.TaskID
	for attempt := 1; attempt <= maxUnparseableRetries; attempt++ {
		res, err = r.llm.Call(ctx, llmclient.CallParams{
			PlanID:        &check.PlanID,
			TaskID:        &taskID,
			Agent:         model.AgentReviewer,
			Scope:         model.ScopeTaskCheck,
			SystemPrompt:  system,
			UserPrompt:    user,
			Timeout:       r.cfg.LLM.Timeout(),
			ReviewAttempt: attempt,
			Normalize: func(obj map[string]any) map[string]any {
				return contracts.NormalizeXiaojingReview(obj, check.TaskID, reviewTargetNode)
			},
			Validate: func(obj map[string]any) error {
				return contracts.ValidateXiaojingReview(obj, reviewTargetNode)
			},
		})
		if err != nil {
			return fmt.Errorf("reviewer check llm call: %w", err)
		}
		if res.ErrorCode == nil {
			break
		}
		r.logger.Warn("reviewer check call did not parse, retrying",
			zap.String("task_id", check.TaskID), zap.Int("attempt", attempt), zap.String("code", string(*res.ErrorCode)))
	}

	if res.ErrorCode != nil {
		return r.store.AppendEvent(ctx, nil, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: check.PlanID, TaskID: &check.TaskID, EventType: "REVIEW_UNPARSEABLE",
			Payload: map[string]any{
				"error_code": string(*res.ErrorCode), "attempts": maxUnparseableRetries, "llm_call_id": res.LlmCallID,
			},
			CreatedAt: r.now().UTC(),
		})
	}

	return r.applyCheckDecision(ctx, check, target, res.Normalized, res.LlmCallID)
}

// gatherCheckSources loads every DEPENDS_ON predecessor's approved (falling
// back to active) artifact as review material, and names the predecessor a
// rejection should be charged against: the first predecessor carrying an
// artifact, in DEPENDS_ON edge order. A richer scoring pass (preferring
// "final"-tagged predecessors) is not worth the complexity here — one
// CHECK node almost always has a single DEPENDS_ON predecessor in practice.
func (r *Reviewer) gatherCheckSources(ctx context.Context, check model.TaskNode) ([]checkSourceContext, *model.TaskNode, error) {
	edges, err := r.store.ListEdgesByType(ctx, check.PlanID, model.EdgeDependsOn)
	if err != nil {
		return nil, nil, fmt.Errorf("list depends_on edges: %w", err)
	}

	var sources []checkSourceContext
	var target *model.TaskNode
	for _, e := range edges {
		if e.ToTaskID != check.TaskID {
			continue
		}
		pred, err := r.store.GetTaskNode(ctx, e.FromTaskID)
		if err != nil {
			continue
		}
		if pred.NodeType != model.NodeAction {
			continue
		}
		artifactID := pred.ApprovedArtifactID
		if artifactID == nil {
			artifactID = pred.ActiveArtifactID
		}
		if artifactID == nil {
			continue
		}
		artifact, err := r.store.GetArtifact(ctx, *artifactID)
		if err != nil {
			continue
		}
		content, truncated, err := readArtifact(artifact.Path, r.cfg.Guardrails.MaxEvidenceSnippetChars)
		if err != nil {
			continue
		}
		sources = append(sources, checkSourceContext{
			TaskID: pred.TaskID, TaskTitle: pred.Title,
			Artifact: artifactContext{
				ArtifactID: *artifactID, Name: artifact.Name, Format: string(artifact.Format),
				Version: artifact.Version, Content: content, Truncated: truncated,
			},
		})
		if target == nil {
			p := *pred
			target = &p
		}
	}
	return sources, target, nil
}

func (r *Reviewer) applyCheckDecision(ctx context.Context, check model.TaskNode, target *model.TaskNode, obj map[string]any, llmCallID string) error {
	var reviewedArtifactID string
	if target != nil {
		if target.ApprovedArtifactID != nil {
			reviewedArtifactID = *target.ApprovedArtifactID
		} else if target.ActiveArtifactID != nil {
			reviewedArtifactID = *target.ActiveArtifactID
		}
	}

	review := toReview(reviewedArtifactID, obj)
	review.TargetTaskID = check.TaskID
	review.ReviewID = uuid.NewString()
	review.ReviewerAgent = model.AgentReviewer
	now := r.now().UTC()
	review.CreatedAt = now
	nowStr := now.Format(time.RFC3339Nano)

	if err := r.store.InsertReview(ctx, nil, review); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	approve := review.ActionRequired == model.ActionApprove && review.TotalScore >= r.cfg.PlanReviewPassScore

	verdictPath := r.workspace.ReviewVerdictPath(check.TaskID, review.ReviewID, approve)
	if err := workspace.WriteFile(verdictPath, []byte(renderVerdict(check, review)), 0o644); err != nil {
		return fmt.Errorf("write review verdict: %w", err)
	}

	if err := r.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: check.PlanID, TaskID: &check.TaskID, EventType: "REVIEW_CREATED",
		Payload: map[string]any{
			"review_id": review.ReviewID, "reviewed_artifact_id": reviewedArtifactID,
			"total_score": review.TotalScore, "action_required": string(review.ActionRequired), "llm_call_id": llmCallID,
		},
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append review event: %w", err)
	}

	if target == nil {
		if approve {
			return r.setStatus(ctx, check, model.StatusDone, nil, nowStr, llmCallID)
		}
		return r.setStatus(ctx, check, model.StatusBlocked, waitingReason(model.WaitingExternal), nowStr, llmCallID)
	}
	if approve {
		return r.setStatus(ctx, check, model.StatusDone, nil, nowStr, llmCallID)
	}

	// Rejected: the gate node carries no attempt budget of its own, so the
	// escalation (attempt_count, MAX_ATTEMPTS_EXCEEDED) is charged against
	// the predecessor ACTION task, and the gate resets to PENDING so
	// readiness re-blocks it once that predecessor is no longer DONE.
	attempts, err := r.store.IncrementAttempt(ctx, nil, target.TaskID, nowStr)
	if err != nil {
		return fmt.Errorf("increment attempt on target %s: %w", target.TaskID, err)
	}
	if err := r.setStatus(ctx, check, model.StatusPending, nil, nowStr, llmCallID); err != nil {
		return fmt.Errorf("reset check node: %w", err)
	}
	if attempts >= r.cfg.MaxTaskAttempts {
		if err := r.setStatus(ctx, *target, model.StatusBlocked, waitingReason(model.WaitingExternal), nowStr, llmCallID); err != nil {
			return err
		}
		return r.store.AppendEvent(ctx, nil, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: check.PlanID, TaskID: &target.TaskID, EventType: "TASK_ERROR",
			Payload: map[string]any{
				"error_code": string(model.CodeMaxAttemptsExceeded), "source_check": check.TaskID,
				"attempt_count": attempts, "llm_call_id": llmCallID,
			},
			CreatedAt: now,
		})
	}
	return r.setStatus(ctx, *target, model.StatusToBeModify, nil, nowStr, llmCallID)
}
