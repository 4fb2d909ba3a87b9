package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/matcher"
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

func seedRoot(t *testing.T, s *store.Store, planID, rootID string, status model.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: rootID, CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: rootID, PlanID: planID, NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: status, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func TestIsPlanDone_TrueWhenRootStatusIsDone(t *testing.T) {
	s := newTestStore(t)
	seedRoot(t, s, "p1", "root", model.StatusDone)
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	done, err := e.isPlanDone(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestIsPlanDone_FalseWhenRootStatusIsNotDone(t *testing.T) {
	s := newTestStore(t)
	seedRoot(t, s, "p1", "root", model.StatusPending)
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	done, err := e.isPlanDone(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestIsPlanBlockedWaitingUser_TrueWhenOnlyBlockedTaskWaitsOnHuman(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoot(t, s, "p1", "root", model.StatusPending)
	now := time.Now().UTC()
	reason := model.WaitingInput
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "a", PlanID: "p1", NodeType: model.NodeAction, Title: "A",
		OwnerAgent: model.AgentExecutor, Status: model.StatusBlocked, BlockedReason: &reason,
		ActiveBranch: true, CreatedAt: now, UpdatedAt: now,
	}))
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	blocked, err := e.isPlanBlockedWaitingUser(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestIsPlanBlockedWaitingUser_FalseWhenAnotherTaskIsStillRunnable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoot(t, s, "p1", "root", model.StatusPending)
	now := time.Now().UTC()
	reason := model.WaitingInput
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "a", PlanID: "p1", NodeType: model.NodeAction, Title: "A",
		OwnerAgent: model.AgentExecutor, Status: model.StatusBlocked, BlockedReason: &reason,
		ActiveBranch: true, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "b", PlanID: "p1", NodeType: model.NodeAction, Title: "B",
		OwnerAgent: model.AgentExecutor, Status: model.StatusReady,
		ActiveBranch: true, CreatedAt: now, UpdatedAt: now,
	}))
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	blocked, err := e.isPlanBlockedWaitingUser(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsPlanBlockedWaitingUser_FalseWhenBlockedTaskIsInactiveBranch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoot(t, s, "p1", "root", model.StatusPending)
	now := time.Now().UTC()
	reason := model.WaitingInput
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "a", PlanID: "p1", NodeType: model.NodeAction, Title: "A",
		OwnerAgent: model.AgentExecutor, Status: model.StatusBlocked, BlockedReason: &reason,
		ActiveBranch: false, CreatedAt: now, UpdatedAt: now,
	}))
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	blocked, err := e.isPlanBlockedWaitingUser(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestFuseErr_RecordsEventAndReturnsEngineError(t *testing.T) {
	s := newTestStore(t)
	seedRoot(t, s, "p1", "root", model.StatusPending)
	e := &Engine{store: s, logger: zap.NewNop(), now: time.Now}

	err := e.fuseErr(context.Background(), "p1", model.CodePlanTimeout, "over budget")
	require.Error(t, err)
	ee, ok := model.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, model.CodePlanTimeout, ee.Code)
}

func TestSleep_ReturnsImmediatelyOnWatcherEvent(t *testing.T) {
	w := &matcher.Watcher{Events: make(chan struct{}, 1)}
	w.Events <- struct{}{}
	e := &Engine{logger: zap.NewNop(), now: time.Now, watcher: w}

	start := time.Now()
	e.sleep(context.Background(), time.Minute)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleep_ReturnsImmediatelyOnContextCancel(t *testing.T) {
	e := &Engine{logger: zap.NewNop(), now: time.Now}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	e.sleep(ctx, time.Minute)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleep_ZeroDurationReturnsImmediately(t *testing.T) {
	e := &Engine{logger: zap.NewNop(), now: time.Now}
	start := time.Now()
	e.sleep(context.Background(), 0)
	assert.Less(t, time.Since(start), time.Second)
}
