package store

import (
	"context"
	"testing"
	"time"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_AppliesMigrationsAndPings(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestPlan_UpsertAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	plan := model.Plan{
		PlanID: "plan-1", Title: "Ship it", OwnerAgent: model.AgentExecutor,
		RootTaskID: "root-1", CreatedAt: now, Priority: 2,
	}
	require.NoError(t, s.UpsertPlan(ctx, nil, plan))

	got, err := s.GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "Ship it", got.Title)
	assert.Equal(t, model.AgentExecutor, got.OwnerAgent)
	assert.Equal(t, 2, got.Priority)
}

func TestPlan_GetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPlan(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPlan_LatestPlanIDPicksMostRecentlyCreated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "plan-old", Title: "Old", OwnerAgent: model.AgentExecutor, RootTaskID: "r1", CreatedAt: older,
	}))
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: "plan-new", Title: "New", OwnerAgent: model.AgentExecutor, RootTaskID: "r2", CreatedAt: newer,
	}))

	id, err := s.LatestPlanID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plan-new", id)
}

func mustSeedPlan(t *testing.T, s *Store, planID, rootTaskID string) {
	t.Helper()
	require.NoError(t, s.UpsertPlan(context.Background(), nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: rootTaskID, CreatedAt: time.Now().UTC(),
	}))
}

func TestTaskNode_UpsertAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")

	now := time.Now().UTC()
	node := model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertTaskNode(ctx, nil, node))

	got, err := s.GetTaskNode(ctx, "root-1")
	require.NoError(t, err)
	assert.Equal(t, model.NodeGoal, got.NodeType)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.True(t, got.ActiveBranch)
}

func TestTaskNode_UpsertRejectsInvalidStatusForNodeType(t *testing.T) {
	s := newTestStore(t)
	mustSeedPlan(t, s, "plan-1", "root-1")

	now := time.Now().UTC()
	node := model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusReadyToCheck, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}
	err := s.UpsertTaskNode(context.Background(), nil, node)
	assert.ErrorIs(t, err, model.ErrStatusNodeTypeMismatch)
}

func TestTaskNode_IncrementAttemptIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")
	now := time.Now().UTC()
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	nowStr := now.Format(time.RFC3339Nano)
	n1, err := s.IncrementAttempt(ctx, nil, "root-1", nowStr)
	require.NoError(t, err)
	n2, err := s.IncrementAttempt(ctx, nil, "root-1", nowStr)
	require.NoError(t, err)
	assert.Equal(t, 1, n1)
	assert.Equal(t, 2, n2)
}

func TestTaskNode_ResetAttemptCountZeroes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")
	now := time.Now().UTC()
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	nowStr := now.Format(time.RFC3339Nano)
	_, err := s.IncrementAttempt(ctx, nil, "root-1", nowStr)
	require.NoError(t, err)
	require.NoError(t, s.ResetAttemptCount(ctx, nil, "root-1", nowStr))

	got, err := s.GetTaskNode(ctx, "root-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestTaskEdge_InsertAndListForPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")
	now := time.Now().UTC()
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "a", PlanID: "plan-1", NodeType: model.NodeAction, Title: "A",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	andOr := model.AndOrAnd
	require.NoError(t, s.InsertTaskEdge(ctx, nil, model.TaskEdge{
		EdgeID: "e1", PlanID: "plan-1", FromTaskID: "root-1", ToTaskID: "a", EdgeType: model.EdgeDecompose, AndOr: &andOr,
	}))

	edges, err := s.ListTaskEdges(ctx, "plan-1")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeDecompose, edges[0].EdgeType)
	require.NotNil(t, edges[0].AndOr)
	assert.Equal(t, model.AndOrAnd, *edges[0].AndOr)
}

func TestRequirementAndEvidence_CountRespectsMinCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")
	now := time.Now().UTC()
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertRequirement(ctx, nil, model.InputRequirement{
		RequirementID: "req-1", TaskID: "root-1", Name: "contract", Kind: model.KindFile,
		Required: true, MinCount: 2, AllowedTypes: []string{"pdf"}, Source: model.SourceUser,
	}))

	count, err := s.EvidenceCount(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	inserted, err := s.InsertEvidence(ctx, nil, model.Evidence{
		EvidenceID: "ev-1", RequirementID: "req-1", EvidenceType: model.KindFile,
		RefID: "sha-abc", RefPath: "/inputs/contract/x.pdf", AddedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Invariant 8: re-binding the same (requirement, ref) is a no-op.
	insertedAgain, err := s.InsertEvidence(ctx, nil, model.Evidence{
		EvidenceID: "ev-2", RequirementID: "req-1", EvidenceType: model.KindFile,
		RefID: "sha-abc", RefPath: "/inputs/contract/x.pdf", AddedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, insertedAgain)

	count, err = s.EvidenceCount(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_TxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSeedPlan(t, s, "plan-1", "root-1")
	now := time.Now().UTC()

	err := s.Tx(ctx, func(ctx context.Context, q Querier) error {
		if err := s.UpsertTaskNode(ctx, q, model.TaskNode{
			TaskID: "root-1", PlanID: "plan-1", NodeType: model.NodeGoal, Title: "Root",
			OwnerAgent: model.AgentExecutor, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	_, getErr := s.GetTaskNode(ctx, "root-1")
	assert.ErrorIs(t, getErr, model.ErrNotFound)
}
