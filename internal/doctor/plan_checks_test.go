package doctor

import (
	"context"
	"testing"
	"time"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPlan_PassesOnWellFormedPlan(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedMinimalPlan(t, s, "plan-1", "root")
	d := New(s, config.Default(), dbPath, nil)
	r := NewReport()

	d.checkPlan(context.Background(), r, "plan-1")
	assert.True(t, r.Passed)
	for _, c := range r.Checks {
		assert.True(t, c.OK, c.Code)
	}
}

func TestCheckRootIsGoal_FailsWithNoGoalNode(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	nodes := []model.TaskNode{{TaskID: "a", NodeType: model.NodeAction}}

	d.checkRootIsGoal(r, nodes)
	assert.False(t, r.Passed)
}

func TestCheckRootIsGoal_FailsWithMultipleGoalNodes(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	nodes := []model.TaskNode{
		{TaskID: "g1", NodeType: model.NodeGoal},
		{TaskID: "g2", NodeType: model.NodeGoal},
	}

	d.checkRootIsGoal(r, nodes)
	assert.False(t, r.Passed)
}

func TestCheckHasAction_FailsWithNoActionNode(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	nodes := []model.TaskNode{{TaskID: "g1", NodeType: model.NodeGoal}}

	d.checkHasAction(r, nodes)
	assert.False(t, r.Passed)
}

func TestCheckNoOrphanEdges_FailsWhenEdgeReferencesMissingNode(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	byID := map[string]model.TaskNode{"root": {TaskID: "root"}}
	edges := []model.TaskEdge{{EdgeID: "e1", FromTaskID: "root", ToTaskID: "missing"}}

	d.checkNoOrphanEdges(r, byID, edges)
	assert.False(t, r.Passed)
}

func TestCheckDecomposeReachability_FailsWhenNodeIsolated(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	nodes := []model.TaskNode{
		{TaskID: "root", NodeType: model.NodeGoal},
		{TaskID: "orphan", NodeType: model.NodeAction},
	}
	var edges []model.TaskEdge

	d.checkDecomposeReachability(r, nodes, edges)
	assert.False(t, r.Passed)
	require.Len(t, r.Checks, 1)
	assert.Contains(t, r.Checks[0].Message, "orphan")
}

func TestCheckStatusLegality_FailsOnMismatchedStatus(t *testing.T) {
	d := &Doctor{}
	r := NewReport()
	now := time.Now().UTC()
	nodes := []model.TaskNode{
		{TaskID: "g1", NodeType: model.NodeGoal, Status: model.StatusReadyToCheck, CreatedAt: now, UpdatedAt: now},
	}

	d.checkStatusLegality(r, nodes)
	assert.False(t, r.Passed)
}
