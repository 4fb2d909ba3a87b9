package reviewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/llmclient"
	"github.com/dagrunner/planengine/internal/metrics"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

// reviewTargetNode is the review_target literal xiaojing is instructed to
// echo for a single-task check, following original_source/core/
// contracts_v2.py's normalize_xiaojing_review(..., review_target="NODE")
// rather than the Scope enum's ScopeTaskCheck name (a distinct field: Scope
// tags what the LlmCall was for, review_target is a field inside the
// reviewer's own JSON payload).
const reviewTargetNode = "NODE"

// maxUnparseableRetries bounds the total number of reviewer calls one Run
// makes (the first call included) while each result carries an error code
// such as LLM_UNPARSEABLE/LLM_TIMEOUT/LLM_REFUSAL, before giving up for this
// tick. A reviewer-side parse failure is xiaojing's problem,
// not xiaobo's: it must never fail the executor task or spend one of its
// attempt_count slots, so the retry stays local to this loop instead of
// going through internal/executor's applyErrorCode path.
const maxUnparseableRetries = 3

// Reviewer runs the Reviewer Phase for one READY_TO_CHECK ACTION task per
// call.
type Reviewer struct {
	store     *store.Store
	workspace *workspace.Workspace
	llm       *llmclient.Client
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// New builds a Reviewer. met may be nil, in which case Run/RunCheckNode
// record no metrics.
func New(s *store.Store, ws *workspace.Workspace, llm *llmclient.Client, cfg *config.Config, logger *zap.Logger, met *metrics.Collector) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{store: s, workspace: ws, llm: llm, cfg: cfg, logger: logger, metrics: met, now: time.Now}
}

// Run reviews task's currently active artifact. The artifact id is locked
// at the top of this call (§4.8's version-lock): if the executor produces a
// newer artifact while the review is in flight, this call still judges the
// version it locked onto, and the DONE transition at the bottom re-checks
// against the live active_artifact_id before closing the task out.
func (r *Reviewer) Run(ctx context.Context, task model.TaskNode) error {
	if task.NodeType != model.NodeAction {
		return fmt.Errorf("reviewer: task %s is not an ACTION node", task.TaskID)
	}
	if task.ActiveArtifactID == nil {
		return fmt.Errorf("reviewer: task %s has no active artifact to review", task.TaskID)
	}
	reviewedArtifactID := *task.ActiveArtifactID

	plan, err := r.store.GetPlan(ctx, task.PlanID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	artifact, err := r.store.GetArtifact(ctx, reviewedArtifactID)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	rootTitle := ""
	if root, err := r.store.GetTaskNode(ctx, plan.RootTaskID); err == nil {
		rootTitle = root.Title
	}

	content, truncated, err := readArtifact(artifact.Path, r.cfg.Guardrails.MaxEvidenceSnippetChars)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	acceptance := ""
	if task.AcceptanceCriteria != nil {
		acceptance = *task.AcceptanceCriteria
	}

	system, user, err := BuildPrompt(RuntimeContext{
		Plan: planContext{PlanID: plan.PlanID, Title: plan.Title, RootTitle: rootTitle},
		Task: taskContext{
			TaskID: task.TaskID, Title: task.Title, Status: string(task.Status),
			AttemptCount: task.AttemptCount, AcceptanceCriteria: acceptance,
		},
		Artifact: artifactContext{
			ArtifactID: reviewedArtifactID, Name: artifact.Name, Format: string(artifact.Format),
			Version: artifact.Version, Content: content, Truncated: truncated,
		},
	})
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	var res *llmclient.Result
	taskID := task.TaskID
	for attempt := 1; attempt <= maxUnparseableRetries; attempt++ {
		res, err = r.llm.Call(ctx, llmclient.CallParams{
			PlanID:        &task.PlanID,
			TaskID:        &taskID,
			Agent:         model.AgentReviewer,
			Scope:         model.ScopeTaskCheck,
			SystemPrompt:  system,
			UserPrompt:    user,
			Timeout:       r.cfg.LLM.Timeout(),
			ReviewAttempt: attempt,
			Normalize: func(obj map[string]any) map[string]any {
				return contracts.NormalizeXiaojingReview(obj, task.TaskID, reviewTargetNode)
			},
			Validate: func(obj map[string]any) error {
				return contracts.ValidateXiaojingReview(obj, reviewTargetNode)
			},
		})
		if err != nil {
			return fmt.Errorf("reviewer llm call: %w", err)
		}
		if res.ErrorCode == nil {
			break
		}
		r.logger.Warn("reviewer call did not parse, retrying",
			zap.String("task_id", task.TaskID), zap.Int("attempt", attempt), zap.String("code", string(*res.ErrorCode)))
	}

	if res.ErrorCode != nil {
		return r.store.AppendEvent(ctx, nil, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "REVIEW_UNPARSEABLE",
			Payload: map[string]any{
				"error_code": string(*res.ErrorCode), "attempts": maxUnparseableRetries, "llm_call_id": res.LlmCallID,
			},
			CreatedAt: r.now().UTC(),
		})
	}

	return r.applyDecision(ctx, task, reviewedArtifactID, res.Normalized, res.LlmCallID)
}

func (r *Reviewer) applyDecision(ctx context.Context, task model.TaskNode, reviewedArtifactID string, obj map[string]any, llmCallID string) error {
	review := toReview(reviewedArtifactID, obj)
	review.ReviewID = uuid.NewString()
	review.ReviewerAgent = model.AgentReviewer
	now := r.now().UTC()
	review.CreatedAt = now
	nowStr := now.Format(time.RFC3339Nano)

	if err := r.store.InsertReview(ctx, nil, review); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	// §9 open question: a score exactly at the pass threshold with
	// action_required=MODIFY is ambiguous in the source.
	// contracts.NormalizeXiaojingReview derives action_required from
	// total_score (>= 90 becomes APPROVE, below 90 is never APPROVE), so that
	// pairing does not reach here; the task is approved only when
	// action_required is APPROVE and total_score also meets
	// cfg.PlanReviewPassScore.
	approve := review.ActionRequired == model.ActionApprove && review.TotalScore >= r.cfg.PlanReviewPassScore

	verdictPath := r.workspace.ReviewVerdictPath(task.TaskID, review.ReviewID, approve)
	if err := workspace.WriteFile(verdictPath, []byte(renderVerdict(task, review)), 0o644); err != nil {
		return fmt.Errorf("write review verdict: %w", err)
	}

	if err := r.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "REVIEW_CREATED",
		Payload: map[string]any{
			"review_id": review.ReviewID, "reviewed_artifact_id": reviewedArtifactID,
			"total_score": review.TotalScore, "action_required": string(review.ActionRequired), "llm_call_id": llmCallID,
		},
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append review event: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordReview(string(review.ActionRequired))
	}

	switch {
	case review.ActionRequired == model.ActionRequestExternal:
		return r.setStatus(ctx, task, model.StatusBlocked, waitingReason(model.WaitingExternal), nowStr, llmCallID)

	case approve:
		if err := r.store.SetApprovedArtifact(ctx, nil, task.TaskID, reviewedArtifactID, nowStr); err != nil {
			return fmt.Errorf("set approved artifact: %w", err)
		}
		current, err := r.store.GetTaskNode(ctx, task.TaskID)
		if err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		if current.ActiveArtifactID != nil && *current.ActiveArtifactID == reviewedArtifactID {
			return r.setStatus(ctx, task, model.StatusDone, nil, nowStr, llmCallID)
		}
		// The executor produced a newer artifact while this review was in
		// flight; leave the task READY_TO_CHECK so it gets picked up again
		// against the artifact that is now active (§4.8 race handling).
		return nil

	default: // MODIFY, or a structurally-APPROVE result below the configured pass score.
		attempts, err := r.store.IncrementAttempt(ctx, nil, task.TaskID, nowStr)
		if err != nil {
			return fmt.Errorf("increment attempt: %w", err)
		}
		if attempts >= r.cfg.MaxTaskAttempts {
			if err := r.setStatus(ctx, task, model.StatusBlocked, waitingReason(model.WaitingExternal), nowStr, llmCallID); err != nil {
				return err
			}
			return r.store.AppendEvent(ctx, nil, model.TaskEvent{
				EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "TASK_ERROR",
				Payload: map[string]any{
					"error_code": string(model.CodeMaxAttemptsExceeded), "attempt_count": attempts, "llm_call_id": llmCallID,
				},
				CreatedAt: now,
			})
		}
		return r.setStatus(ctx, task, model.StatusToBeModify, nil, nowStr, llmCallID)
	}
}

func waitingReason(r model.BlockedReason) *model.BlockedReason { return &r }

func (r *Reviewer) setStatus(ctx context.Context, task model.TaskNode, status model.TaskStatus, reason *model.BlockedReason, nowStr, llmCallID string) error {
	if err := r.store.SetTaskStatus(ctx, nil, task.TaskID, status, reason, nowStr); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordTaskStatusTransition(string(task.Status), string(status))
	}
	var reasonStr any
	if reason != nil {
		reasonStr = string(*reason)
	}
	return r.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "STATUS_CHANGED",
		Payload:   map[string]any{"status": string(status), "blocked_reason": reasonStr, "llm_call_id": llmCallID},
		CreatedAt: r.now().UTC(),
	})
}

func renderVerdict(task model.TaskNode, review model.Review) string {
	var b strings.Builder
	verdict := "REJECTED"
	if review.ActionRequired == model.ActionApprove {
		verdict = "APPROVED"
	}
	fmt.Fprintf(&b, "# %s: %s\n\n", verdict, task.Title)
	fmt.Fprintf(&b, "Score: %d/100\nAction: %s\n\n%s\n", review.TotalScore, review.ActionRequired, review.Summary)
	for _, d := range review.Breakdown {
		fmt.Fprintf(&b, "\n## %s (%d/%d)\n", d.Dimension, d.Score, d.MaxScore)
		for _, issue := range d.Issues {
			fmt.Fprintf(&b, "- %s\n  evidence: %s\n  impact: %s\n  suggestion: %s\n  acceptance: %s\n",
				issue.Problem, issue.Evidence, issue.Impact, issue.Suggestion, issue.AcceptanceCriteria)
		}
	}
	if len(review.Suggestions) > 0 {
		b.WriteString("\n## Suggestions\n")
		for _, s := range review.Suggestions {
			fmt.Fprintf(&b, "- [%s] %s\n", s.Priority, s.Change)
		}
	}
	return b.String()
}
