package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/llmclient"
	"github.com/dagrunner/planengine/internal/metrics"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

// Executor runs the Executor Phase for one scheduled task per call.
type Executor struct {
	store     *store.Store
	workspace *workspace.Workspace
	llm       *llmclient.Client
	cfg       *config.Config
	extractor TextExtractor
	logger    *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// New builds an Executor. met may be nil, in which case Run records no
// metrics.
func New(s *store.Store, ws *workspace.Workspace, llm *llmclient.Client, cfg *config.Config, logger *zap.Logger, met *metrics.Collector) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:     s,
		workspace: ws,
		llm:       llm,
		cfg:       cfg,
		extractor: PlainTextExtractor{},
		logger:    logger,
		metrics:   met,
		now:       time.Now,
	}
}

// Run executes one attempt on task: build the prompt, call the LM, apply
// the result_type state machine (§4.7).
func (e *Executor) Run(ctx context.Context, task model.TaskNode) error {
	plan, err := e.store.GetPlan(ctx, task.PlanID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	rc, err := e.buildRuntimeContext(ctx, *plan, task)
	if err != nil {
		return fmt.Errorf("build runtime context: %w", err)
	}
	system, user, err := BuildPrompt(*rc)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	retryReason := ""
	if task.Status == model.StatusToBeModify {
		retryReason = "reviewer requested modifications"
	}
	taskID := task.TaskID

	res, err := e.llm.Call(ctx, llmclient.CallParams{
		PlanID:       &task.PlanID,
		TaskID:       &taskID,
		Agent:        model.AgentExecutor,
		Scope:        model.ScopeTaskAction,
		SystemPrompt: system,
		UserPrompt:   user,
		Timeout:      e.cfg.LLM.Timeout(),
		Attempt:      task.AttemptCount,
		RetryReason:  retryReason,
		Normalize:    func(obj map[string]any) map[string]any { return contracts.NormalizeXiaoboAction(obj, task.TaskID) },
		Validate:     contracts.ValidateXiaoboAction,
	})
	if err != nil {
		return fmt.Errorf("executor llm call: %w", err)
	}

	if res.ErrorCode != nil {
		hint := "the executor's response could not be used"
		if res.ValidatorError != nil {
			hint = *res.ValidatorError
		}
		return e.applyErrorCode(ctx, task, *res.ErrorCode, hint, res.LlmCallID)
	}

	resultType, _ := res.Normalized["result_type"].(string)
	switch model.ResultType(resultType) {
	case model.ResultArtifact:
		return e.handleArtifact(ctx, task, res.Normalized, res.LlmCallID)
	case model.ResultNeedsInput:
		return e.handleNeedsInput(ctx, task, res.Normalized, res.LlmCallID)
	case model.ResultNoop:
		return e.handleNoop(ctx, task, res.LlmCallID)
	case model.ResultError:
		return e.handleReportedError(ctx, task, res.Normalized, res.LlmCallID)
	default:
		return e.applyErrorCode(ctx, task, model.CodeLLMUnparseable, "unrecognized result_type: "+resultType, res.LlmCallID)
	}
}

func (e *Executor) buildRuntimeContext(ctx context.Context, plan model.Plan, task model.TaskNode) (*RuntimeContext, error) {
	rootTitle := ""
	if root, err := e.store.GetTaskNode(ctx, plan.RootTaskID); err == nil {
		rootTitle = root.Title
	}

	reqs, err := e.store.ListRequirementsForTask(ctx, task.TaskID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	var reqCtx []requirementContext
	var evCtx []evidenceContext
	for _, r := range reqs {
		reqCtx = append(reqCtx, requirementContext{
			RequirementID: r.RequirementID, Name: r.Name, Kind: string(r.Kind),
			Required: r.Required, MinCount: r.MinCount, AllowedTypes: r.AllowedTypes, Source: string(r.Source),
		})
		evidence, err := e.store.ListEvidenceForRequirement(ctx, r.RequirementID)
		if err != nil {
			return nil, fmt.Errorf("list evidence for %s: %w", r.RequirementID, err)
		}
		for _, ev := range evidence {
			ec := evidenceContext{
				EvidenceID: ev.EvidenceID, RequirementID: ev.RequirementID, RequirementName: r.Name,
				Path: ev.RefPath, SHA256: ev.RefID,
			}
			if ev.EvidenceType == model.KindFile && ev.RefPath != "" {
				if snippet, _, err := e.extractor.Extract(ev.RefPath, e.cfg.Guardrails.MaxEvidenceSnippetChars); err == nil {
					ec.Snippet = snippet
				}
			}
			evCtx = append(evCtx, ec)
		}
	}

	suggestions := ""
	if task.Status == model.StatusToBeModify {
		if review, err := e.store.GetLatestReview(ctx, task.TaskID); err == nil {
			suggestions = renderSuggestions(review.Suggestions)
		}
	}

	upstream, err := e.collectUpstreamArtifacts(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}

	return &RuntimeContext{
		Plan: planContext{PlanID: plan.PlanID, Title: plan.Title, RootTitle: rootTitle},
		Task: taskContext{
			TaskID: task.TaskID, Title: task.Title, Status: string(task.Status),
			AttemptCount: task.AttemptCount, Priority: task.Priority,
		},
		Requirements:      reqCtx,
		Evidence:          evCtx,
		Suggestions:       suggestions,
		UpstreamArtifacts: upstream,
	}, nil
}

func (e *Executor) collectUpstreamArtifacts(ctx context.Context, taskID string) ([]upstreamArtifactContext, error) {
	task, err := e.store.GetTaskNode(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	deps, err := e.store.ListEdgesByType(ctx, task.PlanID, model.EdgeDependsOn)
	if err != nil {
		return nil, fmt.Errorf("list depends_on edges: %w", err)
	}
	var out []upstreamArtifactContext
	for _, edge := range deps {
		if edge.ToTaskID != taskID {
			continue
		}
		upstreamTask, err := e.store.GetTaskNode(ctx, edge.FromTaskID)
		if err != nil {
			continue
		}
		if upstreamTask.ApprovedArtifactID == nil {
			continue
		}
		artifact, err := e.store.GetArtifact(ctx, *upstreamTask.ApprovedArtifactID)
		if err != nil {
			continue
		}
		content, truncated, err := e.extractor.Extract(artifact.Path, e.cfg.Guardrails.MaxEvidenceSnippetChars)
		if err != nil {
			continue
		}
		out = append(out, upstreamArtifactContext{
			TaskID: upstreamTask.TaskID, Title: upstreamTask.Title,
			Name: artifact.Name, Format: string(artifact.Format), Content: content, Truncated: truncated,
		})
	}
	return out, nil
}

func renderSuggestions(suggestions []model.Suggestion) string {
	var b strings.Builder
	for _, s := range suggestions {
		fmt.Fprintf(&b, "[%s] %s", s.Priority, s.Change)
		if s.AcceptanceCriteria != "" {
			fmt.Fprintf(&b, " (acceptance: %s)", s.AcceptanceCriteria)
		}
		b.WriteString("\n")
		for _, step := range s.Steps {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
	}
	return strings.TrimSpace(b.String())
}

func (e *Executor) handleArtifact(ctx context.Context, task model.TaskNode, obj map[string]any, llmCallID string) error {
	art, _ := obj["artifact"].(map[string]any)
	name, _ := art["name"].(string)
	format, _ := art["format"].(string)
	content, _ := art["content"].(string)

	artifactID := uuid.NewString()
	version, err := e.store.NextArtifactVersion(ctx, nil, task.TaskID)
	if err != nil {
		return fmt.Errorf("next artifact version: %w", err)
	}
	filename := name
	if !strings.Contains(filename, ".") {
		filename = name + "." + format
	}
	if format == string(model.FormatJSON) {
		content = stampArtifactProvenance(content, task.TaskID, artifactID, version)
	}
	path := e.workspace.ArtifactPath(task.TaskID, artifactID, filename)
	if err := workspace.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write artifact file: %w", err)
	}
	sum, err := workspace.SHA256File(path)
	if err != nil {
		return fmt.Errorf("hash artifact file: %w", err)
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)
	err = e.store.Tx(ctx, func(ctx context.Context, q store.Querier) error {
		if err := e.store.InsertArtifact(ctx, q, model.Artifact{
			ArtifactID: artifactID, TaskID: task.TaskID, Name: name, Path: path,
			Format: model.ArtifactFormat(format), Version: version, SHA256: sum, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		if err := e.store.SetActiveArtifact(ctx, q, task.TaskID, artifactID, nowStr); err != nil {
			return fmt.Errorf("set active artifact: %w", err)
		}
		if err := e.store.SetTaskStatus(ctx, q, task.TaskID, model.StatusReadyToCheck, nil, nowStr); err != nil {
			return fmt.Errorf("set task status: %w", err)
		}
		return e.store.AppendEvent(ctx, q, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "ARTIFACT_PRODUCED",
			Payload: map[string]any{
				"artifact_id": artifactID, "version": version, "format": format, "sha256": sum, "llm_call_id": llmCallID,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordTaskStatusTransition(string(task.Status), string(model.StatusReadyToCheck))
	}
	return nil
}

// stampArtifactProvenance injects _provenance fields into a JSON artifact's
// body without disturbing the LM-authored key order or whitespace the way a
// full unmarshal/marshal round-trip would. Falls back to the untouched
// content if xiaobo produced something that isn't valid JSON at all — that
// gets caught by the review step, not silently swallowed here.
func stampArtifactProvenance(content, taskID, artifactID string, version int) string {
	if !json.Valid([]byte(content)) {
		return content
	}
	out := content
	for _, set := range []struct {
		path string
		val  any
	}{
		{"_provenance.task_id", taskID},
		{"_provenance.artifact_id", artifactID},
		{"_provenance.version", version},
	} {
		updated, err := sjson.Set(out, set.path, set.val)
		if err != nil {
			return content
		}
		out = updated
	}
	return out
}

func (e *Executor) handleNeedsInput(ctx context.Context, task model.TaskNode, obj map[string]any, llmCallID string) error {
	needs, _ := obj["needs_input"].(map[string]any)
	docsRaw, _ := needs["required_docs"].([]any)

	var b strings.Builder
	fmt.Fprintf(&b, "# Missing inputs for %s\n\n", task.Title)
	var names []string
	for _, d := range docsRaw {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		name, _ := doc["name"].(string)
		desc, _ := doc["description"].(string)
		names = append(names, name)
		fmt.Fprintf(&b, "## %s\n\n%s\n\nSuggested path: `%s`\n\n", name, desc, e.workspace.RequirementInputDir(name))
	}
	if err := workspace.WriteFile(e.workspace.RequiredDocsPath(task.TaskID), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write required_docs: %w", err)
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)
	reason := model.WaitingInput
	if err := e.store.SetTaskStatus(ctx, nil, task.TaskID, model.StatusBlocked, &reason, nowStr); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordTaskStatusTransition(string(task.Status), string(model.StatusBlocked))
	}
	return e.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "NEEDS_INPUT_RECORDED",
		Payload:   map[string]any{"required_docs": names, "llm_call_id": llmCallID},
		CreatedAt: now,
	})
}

func (e *Executor) handleNoop(ctx context.Context, task model.TaskNode, llmCallID string) error {
	return e.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "TASK_NOOP",
		Payload:   map[string]any{"llm_call_id": llmCallID},
		CreatedAt: e.now().UTC(),
	})
}

func (e *Executor) handleReportedError(ctx context.Context, task model.TaskNode, obj map[string]any, llmCallID string) error {
	errObj, _ := obj["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	message, _ := errObj["message"].(string)
	return e.applyErrorCode(ctx, task, model.ErrorCode(code), message, llmCallID)
}

// applyErrorCode is the §7 taxonomy applied to task: bump attempt_count if
// the code calls for it, transition status, and escalate to
// MAX_ATTEMPTS_EXCEEDED if the cap is reached.
func (e *Executor) applyErrorCode(ctx context.Context, task model.TaskNode, code model.ErrorCode, hint, llmCallID string) error {
	outcome := outcomeFor(code)
	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	attempts := task.AttemptCount
	if outcome.IncrementAttempt {
		n, err := e.store.IncrementAttempt(ctx, nil, task.TaskID, nowStr)
		if err != nil {
			return fmt.Errorf("increment attempt: %w", err)
		}
		attempts = n
	}

	status, reason, escalated := outcome.Status, outcome.BlockedReason, false
	if outcome.IncrementAttempt && attempts >= e.cfg.MaxTaskAttempts {
		status = model.StatusBlocked
		waiting := model.WaitingExternal
		reason = &waiting
		escalated = true
	}

	if err := e.store.SetTaskStatus(ctx, nil, task.TaskID, status, reason, nowStr); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordTaskStatusTransition(string(task.Status), string(status))
	}

	finalCode := code
	if escalated {
		finalCode = model.CodeMaxAttemptsExceeded
	}
	return e.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: task.PlanID, TaskID: &task.TaskID, EventType: "TASK_ERROR",
		Payload: map[string]any{
			"error_code": string(finalCode), "original_code": string(code), "hint": hint,
			"attempt_count": attempts, "llm_call_id": llmCallID,
		},
		CreatedAt: now,
	})
}
