package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_PathHelpersStayRootedAndScoped(t *testing.T) {
	w := New("/data/ws")
	assert.Equal(t, "/data/ws", w.Root())
	assert.Equal(t, "/data/ws/inputs", w.InputsDir())
	assert.Equal(t, "/data/ws/inputs/contract", w.RequirementInputDir("contract"))
	assert.Equal(t, "/data/ws/artifacts/task-1/art-1", w.ArtifactDir("task-1", "art-1"))
	assert.Equal(t, "/data/ws/artifacts/task-1/art-1/report.md", w.ArtifactPath("task-1", "art-1", "report.md"))
	assert.Equal(t, "/data/ws/reviews/check-1/rev-1", w.ReviewDir("check-1", "rev-1"))
	assert.Equal(t, "/data/ws/reviews/check-1/rev-1/APPROVED.md", w.ReviewVerdictPath("check-1", "rev-1", true))
	assert.Equal(t, "/data/ws/reviews/check-1/rev-1/REJECTED.md", w.ReviewVerdictPath("check-1", "rev-1", false))
	assert.Equal(t, "/data/ws/plans/plan-1/plan.json", w.PlanPath("plan-1"))
	assert.Equal(t, "/data/ws/required_docs/task-1.md", w.RequiredDocsPath("task-1"))
	assert.Equal(t, "/data/ws/deliverables/plan-1", w.DeliverablesDir("plan-1"))
	assert.Equal(t, "/data/ws/deliverables/plan-1/bundle/slug_abcd1234", w.BundleDir("plan-1", "slug", "abcd1234"))
	assert.Equal(t, "/data/ws/deliverables/plan-1/manifest.json", w.ManifestPath("plan-1"))
	assert.Equal(t, "/data/ws/deliverables/plan-1/final.json", w.FinalPath("plan-1"))
	assert.Equal(t, "/data/ws/deliverables/plan-1/plan_meta.json", w.PlanMetaPath("plan-1"))
	assert.Equal(t, "/data/ws/required_docs/plan-1/blocked_summary.md", w.BlockedSummaryPath("plan-1"))
}

func TestWriteFile_CreatesParentDirsAndIsReadableAfterRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "file.txt")
	require.NoError(t, WriteFile(path, []byte("hello"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFile_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, WriteFile(path, []byte("v1"), 0o644))
	require.NoError(t, WriteFile(path, []byte("v2"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestSHA256File_MatchesKnownDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := SHA256File(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestSHA256File_ErrorsOnMissingFile(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
