package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planengine.db")
	s, err := store.Init(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRootCmd_RegistersEverySubcommand(t *testing.T) {
	cmd := rootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"create-plan", "run", "status", "errors", "doctor", "repair-db",
		"export", "reset-db", "reset-failed", "llm-calls", "contract-audit",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestFilterErrorEvents_KeepsOnlyTaskErrorNewestFirstWithinLimit(t *testing.T) {
	taskID := "a"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []model.TaskEvent{
		{EventType: "STATUS_CHANGED", CreatedAt: base},
		{EventType: "TASK_ERROR", TaskID: &taskID, CreatedAt: base.Add(time.Minute), Payload: map[string]any{"n": 1}},
		{EventType: "TASK_ERROR", TaskID: &taskID, CreatedAt: base.Add(2 * time.Minute), Payload: map[string]any{"n": 2}},
	}

	out := filterErrorEvents(events, 1)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Payload["n"])
	assert.Equal(t, "a", out[0].TaskID)
}

func TestTruncateString_TruncatesAndAppendsEllipsis(t *testing.T) {
	assert.Equal(t, "hello", truncateString("hello", 10))
	assert.Equal(t, "he...", truncateString("hello", 2))
	assert.Equal(t, "hello", truncateString("hello", 0))
}

func TestCurrentPlanID_ReturnsExplicitWithoutTouchingStore(t *testing.T) {
	s := newTestStore(t)
	id, err := currentPlanID(context.Background(), s, "explicit-id")
	require.NoError(t, err)
	assert.Equal(t, "explicit-id", id)
}

func TestCurrentPlanID_FallsBackToMostRecentlyCreatedPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "older", Title: "T1", OwnerAgent: model.AgentExecutor, RootTaskID: "r1", CreatedAt: now,
	}))
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "newer", Title: "T2", OwnerAgent: model.AgentExecutor, RootTaskID: "r2", CreatedAt: now.Add(time.Hour),
	}))

	id, err := currentPlanID(ctx, s, "")
	require.NoError(t, err)
	assert.Equal(t, "newer", id)
}

func TestExitCodeFor_MapsPlanNotApprovedToThreeAndEverythingElseToOne(t *testing.T) {
	assert.Equal(t, 3, exitCodeFor(&model.EngineError{Code: model.CodePlanNotApproved}))
	assert.Equal(t, 1, exitCodeFor(&model.EngineError{Code: model.CodePlanTimeout}))
}

func TestRenderStatusYAML_IncludesPlanAndTaskFields(t *testing.T) {
	plan := &model.Plan{PlanID: "p1", Title: "Ship it", RootTaskID: "root"}
	reason := model.WaitingInput
	nodes := []model.TaskNode{
		{TaskID: "a", NodeType: model.NodeAction, OwnerAgent: model.AgentExecutor, Status: model.StatusBlocked, BlockedReason: &reason, Title: "Do it"},
	}
	var buf bytes.Buffer
	require.NoError(t, renderStatusYAML(&buf, plan, nodes))
	out := buf.String()
	assert.Contains(t, out, "plan_id: p1")
	assert.Contains(t, out, "task_id: a")
	assert.Contains(t, out, "blocked_reason: WAITING_INPUT")
}

func TestRepairMissingRootTask_RepointsToFirstGoalNodeWhenRootMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "p1", Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "missing-root", CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "goal-1", PlanID: "p1", NodeType: model.NodeGoal, Title: "Goal",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	a := &app{store: s}
	n, err := repairMissingRootTask(ctx, a, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	plan, err := s.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "goal-1", plan.RootTaskID)
}

func TestRepairMissingRootTask_NoopWhenRootAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "p1", Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "root", CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root", PlanID: "p1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	a := &app{store: s}
	n, err := repairMissingRootTask(ctx, a, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRepairMissingDecomposeEdges_ReconnectsOrphanedNodeToRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "p1", Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "root", CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root", PlanID: "p1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "orphan", PlanID: "p1", NodeType: model.NodeAction, Title: "Orphan",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	a := &app{store: s}
	n, err := repairMissingDecomposeEdges(ctx, a, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	edges, err := s.ListEdgesByType(ctx, "p1", model.EdgeDecompose)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "root", edges[0].FromTaskID)
	assert.Equal(t, "orphan", edges[0].ToTaskID)
}

func TestDrifted_FalseWhenNormalizationStillMatches(t *testing.T) {
	taskID := "a"
	parsed := map[string]any{
		"schema_version": "xiaobo_action_v1", "task_id": "a", "result_type": "NOOP", "reason": "nothing to do",
	}
	normalized := contracts.NormalizeXiaoboAction(parsed, "a")
	call := model.LlmCall{Scope: model.ScopeTaskAction, TaskID: &taskID, ParsedJSON: parsed, NormalizedJSON: normalized}
	assert.False(t, drifted(call))
}

func TestDrifted_TrueWhenStoredNormalizationNoLongerMatchesLiveNormalizer(t *testing.T) {
	taskID := "a"
	parsed := map[string]any{
		"schema_version": "xiaobo_action_v1", "task_id": "a", "result_type": "NOOP", "reason": "nothing to do",
	}
	call := model.LlmCall{
		Scope: model.ScopeTaskAction, TaskID: &taskID, ParsedJSON: parsed,
		NormalizedJSON: map[string]any{"task_id": "a", "result_type": "something-stale"},
	}
	assert.True(t, drifted(call))
}

func TestDrifted_FalseForPlanScopesWithUnrecomputableContext(t *testing.T) {
	taskID := "a"
	call := model.LlmCall{
		Scope: model.ScopePlanGen, TaskID: &taskID,
		ParsedJSON: map[string]any{"a": 1}, NormalizedJSON: map[string]any{"b": 2},
	}
	assert.False(t, drifted(call))
}
