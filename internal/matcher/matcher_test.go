package matcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planengine.db")
	s, err := store.Init(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTaskAndRequirement(t *testing.T, s *store.Store, planID, taskID, reqID, name string, keywords []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: taskID,
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: taskID, PlanID: planID, NodeType: model.NodeAction, Title: taskID,
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
	}))
	require.NoError(t, s.InsertRequirement(ctx, nil, model.InputRequirement{
		RequirementID: reqID, TaskID: taskID, Name: name, Kind: model.KindFile,
		Required: true, MinCount: 1, Source: model.SourceUser, FilenameKeywords: keywords,
	}))
}

func TestScoreMatch_DirectoryNameMatchScoresHighest(t *testing.T) {
	req := model.InputRequirement{Name: "contract", AllowedTypes: []string{"pdf"}}
	score, reasons := scoreMatch(req, "/inputs/contract/file.pdf", "/inputs", false)
	assert.GreaterOrEqual(t, score, 100)
	assert.Contains(t, reasons, "dir_map:+100")
}

func TestScoreMatch_FilenameKeywordsAccumulate(t *testing.T) {
	req := model.InputRequirement{Name: "invoice", FilenameKeywords: []string{"march", "2026"}}
	score, _ := scoreMatch(req, "/inputs/misc/march_2026_invoice.pdf", "/inputs", false)
	assert.GreaterOrEqual(t, score, 80)
}

func TestScoreMatch_NameInFilenameOnlyWhenAllowed(t *testing.T) {
	req := model.InputRequirement{Name: "contract"}
	withFlag, _ := scoreMatch(req, "/inputs/misc/contract_final.pdf", "/inputs", true)
	withoutFlag, _ := scoreMatch(req, "/inputs/misc/contract_final.pdf", "/inputs", false)
	assert.Greater(t, withFlag, withoutFlag)
}

func TestScoreMatch_SourceUserAddsBonus(t *testing.T) {
	req := model.InputRequirement{Name: "x", Source: model.SourceUser}
	score, reasons := scoreMatch(req, "/inputs/misc/y.pdf", "/inputs", false)
	assert.Contains(t, reasons, "source_user:+10")
	_ = score
}

func TestScoreMatch_TypeMatchAddsBonus(t *testing.T) {
	req := model.InputRequirement{Name: "x", AllowedTypes: []string{"pdf", "docx"}}
	score, reasons := scoreMatch(req, "/inputs/misc/y.pdf", "/inputs", false)
	assert.Contains(t, reasons, "type:+10")
	_ = score
}

func TestContainsFold_CaseInsensitive(t *testing.T) {
	assert.True(t, containsFold([]string{"PDF", "docx"}, "pdf"))
	assert.False(t, containsFold([]string{"pdf"}, "xlsx"))
}

func TestAllowedExtensions_NormalizesAndDedupes(t *testing.T) {
	reqs := []model.InputRequirement{
		{AllowedTypes: []string{".PDF", "docx", " .PDF "}},
		{AllowedTypes: []string{"txt"}},
	}
	got := allowedExtensions(reqs)
	assert.True(t, got["pdf"])
	assert.True(t, got["docx"])
	assert.True(t, got["txt"])
	assert.Len(t, got, 3)
}

func TestUnderAny_DetectsPathWithinDirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(sub), 0o755))
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0o644))
	assert.True(t, underAny(sub, []string{dir}))
	assert.False(t, underAny("/tmp/elsewhere/file.txt", []string{dir}))
}

func TestWalkBudgeted_FiltersByExtensionAndCapsFileCount(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.txt", "d.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	files, skipped, err := walkBudgeted(dir, map[string]bool{"pdf": true}, true, Budget{MaxFiles: 2, MaxTotalBytes: 0})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, 1, skipped)
}

func TestWalkBudgeted_UnbudgetedIgnoresCaps(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	files, skipped, err := walkBudgeted(dir, nil, false, Budget{MaxFiles: 1})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, 0, skipped)
}

func TestSha256File_StableForSameContent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))
	sum1, err := sha256File(p)
	require.NoError(t, err)
	sum2, err := sha256File(p)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
	assert.Len(t, sum1, 64)
}

func TestBindOneFile_BindsUpToTopTwoNonTiedCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	planID := "p1"
	seedTaskAndRequirement(t, s, planID, "task-contract", "req-contract", "contract", nil)
	require.NoError(t, s.InsertRequirement(ctx, nil, model.InputRequirement{
		RequirementID: "req-invoice", TaskID: "task-contract", Name: "invoice", Kind: model.KindFile,
		Required: true, MinCount: 1, AllowedTypes: []string{"pdf"}, Source: model.SourceUser,
		FilenameKeywords: []string{"invoice"},
	}))

	dir := t.TempDir()
	sub := filepath.Join(dir, "contract")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	path := filepath.Join(sub, "invoice_doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	reqs, err := s.ListRequirementsForPlan(ctx, planID)
	require.NoError(t, err)

	m := New(s, nil)
	n, err := m.bindOneFile(ctx, planID, dir, path, reqs, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	evContract, err := s.ListEvidenceForRequirement(ctx, "req-contract")
	require.NoError(t, err)
	assert.Len(t, evContract, 1)

	evInvoice, err := s.ListEvidenceForRequirement(ctx, "req-invoice")
	require.NoError(t, err)
	assert.Len(t, evInvoice, 1)
}

func TestBindOneFile_TiedTopScoreEmitsConflictAndBindsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	planID := "p1"
	require.NoError(t, s.UpsertPlan(ctx, nil, model.Plan{
		PlanID: planID, Title: "T", OwnerAgent: model.AgentExecutor, RootTaskID: "task-a",
	}))
	require.NoError(t, s.UpsertTaskNode(ctx, nil, model.TaskNode{
		TaskID: "task-a", PlanID: planID, NodeType: model.NodeAction, Title: "task-a",
		OwnerAgent: model.AgentExecutor, Status: model.StatusPending, ActiveBranch: true,
	}))
	require.NoError(t, s.InsertRequirement(ctx, nil, model.InputRequirement{
		RequirementID: "req-a", TaskID: "task-a", Name: "widget-a", Kind: model.KindFile,
		Required: true, MinCount: 1, AllowedTypes: []string{"txt"}, Source: model.SourceUser,
		FilenameKeywords: []string{"widget"},
	}))
	require.NoError(t, s.InsertRequirement(ctx, nil, model.InputRequirement{
		RequirementID: "req-b", TaskID: "task-a", Name: "widget-b", Kind: model.KindFile,
		Required: true, MinCount: 1, AllowedTypes: []string{"txt"}, Source: model.SourceUser,
		FilenameKeywords: []string{"widget"},
	}))

	dir := t.TempDir()
	path := filepath.Join(dir, "widget_report.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	reqs, err := s.ListRequirementsForPlan(ctx, planID)
	require.NoError(t, err)

	m := New(s, nil)
	n, err := m.bindOneFile(ctx, planID, dir, path, reqs, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	evA, err := s.ListEvidenceForRequirement(ctx, "req-a")
	require.NoError(t, err)
	assert.Empty(t, evA)
}

func TestBindOneFile_SingleQualifyingCandidateBindsOnlyOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	planID := "p1"
	seedTaskAndRequirement(t, s, planID, "task-a", "req-a", "contract", nil)

	dir := t.TempDir()
	sub := filepath.Join(dir, "contract")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	path := filepath.Join(sub, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	reqs, err := s.ListRequirementsForPlan(ctx, planID)
	require.NoError(t, err)

	m := New(s, nil)
	n, err := m.bindOneFile(ctx, planID, dir, path, reqs, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
