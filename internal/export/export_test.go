package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planengine.db")
	s, err := store.Init(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPlanWithOneDoneAction(t *testing.T, s *store.Store, ws *workspace.Workspace, planID string, approved bool) (taskID, artifactID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	taskID = "a"
	artifactID = "art-1"

	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "root", CreatedAt: now,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "root", PlanID: planID, NodeType: model.NodeGoal, Title: "Root",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	node := model.TaskNode{
		TaskID: taskID, PlanID: planID, NodeType: model.NodeAction, Title: "Write the report",
		OwnerAgent: model.AgentExecutor, Status: model.StatusDone, ActiveBranch: true,
		ActiveArtifactID: &artifactID, CreatedAt: now, UpdatedAt: now,
	}
	if approved {
		node.ApprovedArtifactID = &artifactID
	}
	require.NoError(t, s.UpsertTaskNode(ctx, nil, node))

	path := filepath.Join(ws.ArtifactDir(taskID, artifactID), "report.md")
	require.NoError(t, workspace.WriteFile(path, []byte("# Report\n"), 0o644))
	sum, err := workspace.SHA256File(path)
	require.NoError(t, err)
	require.NoError(t, s.InsertArtifact(ctx, nil, model.Artifact{
		ArtifactID: artifactID, TaskID: taskID, Name: "report", Path: path,
		Format: model.FormatMD, Version: 1, SHA256: sum, CreatedAt: now,
	}))
	return taskID, artifactID
}

func TestRun_ExportsApprovedArtifactAndWritesAllThreeFiles(t *testing.T) {
	s := newTestStore(t)
	ws := workspace.New(t.TempDir())
	planID := "p1"
	taskID, artifactID := seedPlanWithOneDoneAction(t, s, ws, planID, true)

	ex := New(s, ws, nil)
	manifest, err := ex.Run(context.Background(), planID, true)
	require.NoError(t, err)
	require.Len(t, manifest.Items, 1)
	assert.Equal(t, taskID, manifest.Items[0].TaskID)
	assert.Equal(t, artifactID, manifest.Items[0].ApprovedArtifactID)
	assert.Empty(t, manifest.Skipped)

	require.Len(t, manifest.Items[0].Files, 1)
	_, err = os.Stat(manifest.Items[0].Files[0].DestPath)
	require.NoError(t, err)

	for _, path := range []string{ws.ManifestPath(planID), ws.PlanMetaPath(planID), ws.FinalPath(planID)} {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}

	var meta PlanMeta
	data, err := os.ReadFile(ws.PlanMetaPath(planID))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, 1, meta.DoneTasks)
}

func TestRun_ApprovedOnlySkipsActionsWithoutApprovedArtifact(t *testing.T) {
	s := newTestStore(t)
	ws := workspace.New(t.TempDir())
	planID := "p1"
	taskID, _ := seedPlanWithOneDoneAction(t, s, ws, planID, false)

	ex := New(s, ws, nil)
	manifest, err := ex.Run(context.Background(), planID, true)
	require.NoError(t, err)
	assert.Empty(t, manifest.Items)
	assert.Equal(t, []string{taskID}, manifest.Skipped)
}

func TestRun_FallsBackToActiveArtifactWhenApprovedOnlyFalse(t *testing.T) {
	s := newTestStore(t)
	ws := workspace.New(t.TempDir())
	planID := "p1"
	_, artifactID := seedPlanWithOneDoneAction(t, s, ws, planID, false)

	ex := New(s, ws, nil)
	manifest, err := ex.Run(context.Background(), planID, false)
	require.NoError(t, err)
	require.Len(t, manifest.Items, 1)
	assert.Equal(t, artifactID, manifest.Items[0].ApprovedArtifactID)
}

func TestRun_IncludesReviewSummaryWhenAPairedCheckHasAReview(t *testing.T) {
	s := newTestStore(t)
	ws := workspace.New(t.TempDir())
	planID := "p1"
	taskID, artifactID := seedPlanWithOneDoneAction(t, s, ws, planID, true)

	ctx := context.Background()
	now := time.Now().UTC()
	checkTaskID := "check-a"
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: checkTaskID, PlanID: planID, NodeType: model.NodeCheck, Title: "Check A",
		OwnerAgent: model.AgentReviewer, Status: model.StatusDone, ActiveBranch: true,
		ReviewTargetTaskID: &taskID, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertReview(ctx, nil, model.Review{
		ReviewID: "rev-1", TargetTaskID: checkTaskID, ReviewedArtifactID: artifactID,
		ReviewerAgent: model.AgentReviewer, TotalScore: 95, ActionRequired: model.ActionApprove,
		Summary: "good", CreatedAt: now,
	}))

	ex := New(s, ws, nil)
	manifest, err := ex.Run(ctx, planID, true)
	require.NoError(t, err)
	require.Len(t, manifest.Items, 1)
	require.NotNil(t, manifest.Items[0].Review)
	assert.Equal(t, 95, manifest.Items[0].Review.Score)
	assert.Equal(t, string(model.ActionApprove), manifest.Items[0].Review.Verdict)
}

func TestSlugify_LowercasesAndCollapsesNonAlnumRuns(t *testing.T) {
	assert.Equal(t, "write-the-report", slugify("Write   the Report!!"))
	assert.Equal(t, "task", slugify("!!!"))
}

func TestSlugify_TruncatesLongTitles(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "a"
	}
	assert.Len(t, slugify(long), 40)
}

func TestShortID_TruncatesToEightCharsOnly(t *testing.T) {
	assert.Equal(t, "12345678", shortID("123456789012"))
	assert.Equal(t, "abc", shortID("abc"))
}
