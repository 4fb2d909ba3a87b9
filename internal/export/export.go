package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

type Exporter struct {
	store     *store.Store
	workspace *workspace.Workspace
	logger    *zap.Logger
}

func New(s *store.Store, ws *workspace.Workspace, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: s, workspace: ws, logger: logger}
}

// Run bundles every ACTION task's deliverable for planID and writes
// manifest.json, final.json, and plan_meta.json under the plan's
// deliverables directory. With approvedOnly set (the default per §6), only
// ACTION tasks carrying an ApprovedArtifactID are exported; without it,
// ActiveArtifactID is used as a fallback so an in-progress plan can still be
// previewed.
func (e *Exporter) Run(ctx context.Context, planID string, approvedOnly bool) (*Manifest, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	nodes, err := e.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list task nodes: %w", err)
	}

	checkByAction := make(map[string]model.TaskNode)
	for _, n := range nodes {
		if n.NodeType == model.NodeCheck && n.ReviewTargetTaskID != nil {
			checkByAction[*n.ReviewTargetTaskID] = n
		}
	}

	manifest := &Manifest{PlanID: planID, ApprovedOnly: approvedOnly}
	meta := PlanMeta{PlanID: plan.PlanID, Title: plan.Title, RootTaskID: plan.RootTaskID, TotalTasks: len(nodes)}

	for _, n := range nodes {
		if n.NodeType != model.NodeAction {
			continue
		}
		switch n.Status {
		case model.StatusDone:
			meta.DoneTasks++
		case model.StatusFailed:
			meta.FailedTasks++
		}

		artifactID := n.ApprovedArtifactID
		if !approvedOnly && artifactID == nil {
			artifactID = n.ActiveArtifactID
		}
		if artifactID == nil {
			manifest.Skipped = append(manifest.Skipped, n.TaskID)
			continue
		}

		item, err := e.bundleItem(ctx, planID, n, *artifactID, checkByAction)
		if err != nil {
			return nil, fmt.Errorf("bundle task %s: %w", n.TaskID, err)
		}
		manifest.Items = append(manifest.Items, *item)
	}

	if err := e.writeJSON(e.workspace.ManifestPath(planID), manifest); err != nil {
		return nil, err
	}
	if err := e.writeJSON(e.workspace.PlanMetaPath(planID), meta); err != nil {
		return nil, err
	}
	if err := e.writeJSON(e.workspace.FinalPath(planID), Final{Plan: meta, Items: manifest.Items}); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (e *Exporter) bundleItem(ctx context.Context, planID string, n model.TaskNode, artifactID string, checkByAction map[string]model.TaskNode) (*ManifestItem, error) {
	artifact, err := e.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
	}

	bundleDir := e.workspace.BundleDir(planID, slugify(n.Title), shortID(n.TaskID))
	destPath := filepath.Join(bundleDir, filepath.Base(artifact.Path))
	sha, err := copyAndHash(artifact.Path, destPath)
	if err != nil {
		return nil, fmt.Errorf("copy artifact %s: %w", artifact.Path, err)
	}

	item := &ManifestItem{
		TaskID:             n.TaskID,
		TaskTitle:          n.Title,
		ApprovedArtifactID: artifactID,
		Files:              []ManifestFile{{DestPath: destPath, SourcePath: artifact.Path, SHA256: sha}},
	}
	if n.DeliverableSpec != nil {
		item.DeliverableSummary = *n.DeliverableSpec
	}

	if check, ok := checkByAction[n.TaskID]; ok {
		review, err := e.store.GetLatestReview(ctx, check.TaskID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("load review for check %s: %w", check.TaskID, err)
		}
		if review != nil {
			item.Review = &ManifestReview{
				CheckTaskID: check.TaskID,
				ReviewID:    review.ReviewID,
				Verdict:     string(review.ActionRequired),
				Score:       review.TotalScore,
			}
		}
	}
	return item, nil
}

func (e *Exporter) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := workspace.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func copyAndHash(src, dest string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	if err := workspace.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	sha, err := workspace.SHA256File(dest)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", dest, err)
	}
	return sha, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify renders a task title into the short, filesystem-safe fragment
// BundleDir uses to keep bundle directories human-readable.
func slugify(title string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "task"
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

func shortID(taskID string) string {
	if len(taskID) > 8 {
		return taskID[:8]
	}
	return taskID
}
