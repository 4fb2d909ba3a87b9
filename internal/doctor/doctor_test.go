package doctor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planengine.db")
	s, err := store.Init(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func seedMinimalPlan(t *testing.T, s *store.Store, planID, rootID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: rootID, CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: rootID, PlanID: planID, NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "a", PlanID: planID, NodeType: model.NodeAction, Title: "A",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	andOr := model.AndOrAnd
	require.NoError(t, s.InsertTaskEdge(ctx, nil, model.TaskEdge{
		EdgeID: "e1", PlanID: planID, FromTaskID: rootID, ToTaskID: "a", EdgeType: model.EdgeDecompose, AndOr: &andOr,
	}))
}

func TestRun_PassesOnFreshlyMigratedDatabaseWithoutPlan(t *testing.T) {
	s, dbPath := newTestStore(t)
	d := New(s, config.Default(), dbPath, nil)

	r, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, r.Passed)
	assert.Empty(t, r.Failures())
}

func TestRun_PassesWithWellFormedV1Plan(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedMinimalPlan(t, s, "plan-1", "root")
	d := New(s, config.Default(), dbPath, nil)

	planID := "plan-1"
	r, err := d.Run(context.Background(), &planID)
	require.NoError(t, err)
	assert.True(t, r.Passed)
}

func TestRun_FailsAndAggregatesErrorsWhenMigrationVersionWrong(t *testing.T) {
	s, dbPath := newTestStore(t)
	d := New(s, config.Default(), dbPath, nil)
	d.versionFn = func(string) (uint, bool, error) { return 99, false, nil }

	r, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, r.Passed)

	var found bool
	for _, c := range r.Failures() {
		if c.Code == "DB_MIGRATION_VERSION" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_FailsWhenMigrationDirty(t *testing.T) {
	s, dbPath := newTestStore(t)
	d := New(s, config.Default(), dbPath, nil)
	d.versionFn = func(string) (uint, bool, error) { return 1, true, nil }

	r, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	var found bool
	for _, c := range r.Failures() {
		if c.Code == "DB_MIGRATION_VERSION" {
			found = true
			assert.Contains(t, c.Message, "dirty")
		}
	}
	assert.True(t, found)
}

func TestRun_FailsOnPlanWithNoTaskNodes(t *testing.T) {
	s, dbPath := newTestStore(t)
	require.NoError(t, s.UpsertPlan(context.Background(), nil, model.Plan{
		PlanID: "empty", Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "root", CreatedAt: time.Now().UTC(),
	}))
	d := New(s, config.Default(), dbPath, nil)

	planID := "empty"
	r, err := d.Run(context.Background(), &planID)
	require.Error(t, err)
	assert.False(t, r.Passed)
}

func TestRun_V2ModeFlagsMissingDeliverableMetadata(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedMinimalPlan(t, s, "plan-1", "root")
	cfg := config.Default()
	cfg.WorkflowMode = model.ModeV2
	d := New(s, cfg, dbPath, nil)

	planID := "plan-1"
	r, err := d.Run(context.Background(), &planID)
	require.Error(t, err)
	assert.False(t, r.Passed)

	var found bool
	for _, c := range r.Failures() {
		if c.Code == "PLAN_V2_DELIVERABLE_METADATA" {
			found = true
		}
	}
	assert.True(t, found)
}
