// Package matcher scans an inputs directory tree and deterministically
// binds discovered files to InputRequirement rows as Evidence. Grounded on
// original_source/core/matcher.py.
package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
)

// matchThreshold is the minimum score (§4.4) a requirement must reach
// against a file before it is considered a candidate binding.
const matchThreshold = 60

// Budget caps how much of a baseline_inputs/ tree a single scan will walk,
// so an oversized drop-folder can't stall the engine tick.
type Budget struct {
	MaxFiles      int
	MaxTotalBytes int64
}

// DefaultBudget mirrors config.BASELINE_SCAN_MAX_FILES/BASELINE_SCAN_MAX_TOTAL_BYTES.
var DefaultBudget = Budget{MaxFiles: 2000, MaxTotalBytes: 200 * 1024 * 1024}

type Matcher struct {
	store  *store.Store
	logger *zap.Logger
}

func New(s *store.Store, logger *zap.Logger) *Matcher {
	return &Matcher{store: s, logger: logger}
}

type scoredCandidate struct {
	score   int
	req     model.InputRequirement
	reasons []string
}

// ScanInputsAndBindEvidence walks inputsDirs, hashes every file that matches
// at least one requirement's allowed_types, and binds it to the top 2
// highest-scoring requirements as Evidence, provided the top score isn't
// itself tied across requirements. A baseline_inputs/ directory
// (matched by base name) is subject to Budget and additionally allowed to
// match on requirement-name-in-filename; any other dir only matches on
// directory-name-equals-requirement, filename keywords, type, and source.
// Returns the number of new Evidence rows bound.
func (m *Matcher) ScanInputsAndBindEvidence(ctx context.Context, planID string, inputsDirs []string, budget Budget) (int, error) {
	reqs, err := m.store.ListRequirementsForPlan(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("load requirements: %w", err)
	}
	if len(reqs) == 0 {
		return 0, nil
	}
	allowedExts := allowedExtensions(reqs)

	bound := 0
	for _, dir := range inputsDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		isBaseline := strings.EqualFold(filepath.Base(dir), "baseline_inputs")

		files, skipped, err := walkBudgeted(dir, allowedExts, isBaseline, budget)
		if err != nil {
			return bound, fmt.Errorf("walk %s: %w", dir, err)
		}
		if isBaseline && skipped > 0 {
			if err := m.emitBaselineSkipped(ctx, planID, dir, len(files), skipped, budget); err != nil {
				return bound, err
			}
		}

		for _, path := range files {
			n, err := m.bindOneFile(ctx, planID, dir, path, reqs, isBaseline)
			if err != nil {
				return bound, err
			}
			bound += n
		}
	}
	return bound, nil
}

func (m *Matcher) bindOneFile(ctx context.Context, planID, inputsDir, path string, reqs []model.InputRequirement, allowNameInFilename bool) (int, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, nil
	}
	mtime := st.ModTime().UTC()
	size := st.Size()

	existing, err := m.store.GetInputFileByPath(ctx, planID, path)
	var sum string
	if err == nil && existing.MtimeUTC.Equal(mtime) && existing.SizeBytes == size {
		sum = existing.SHA256
	} else if err != nil && err != model.ErrNotFound {
		return 0, fmt.Errorf("lookup input file: %w", err)
	} else {
		sum, err = sha256File(path)
		if err != nil {
			return 0, fmt.Errorf("hash %s: %w", path, err)
		}
	}

	now := time.Now().UTC()
	if err := m.store.UpsertInputFile(ctx, nil, model.InputFile{
		InputFileID: uuid.NewString(), PlanID: planID, Path: path, SHA256: sum,
		SizeBytes: size, MtimeUTC: mtime, FirstSeenAt: now, LastSeenAt: now,
	}); err != nil {
		return 0, fmt.Errorf("upsert input file: %w", err)
	}

	var candidates []scoredCandidate
	for _, req := range reqs {
		score, reasons := scoreMatch(req, path, inputsDir, allowNameInFilename)
		if score >= matchThreshold {
			candidates = append(candidates, scoredCandidate{score: score, req: req, reasons: reasons})
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	top := candidates[0].score
	var tied []scoredCandidate
	for _, c := range candidates {
		if c.score == top {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		return 0, m.emitConflict(ctx, planID, path, sum, top, tied)
	}

	top2 := candidates
	if len(top2) > 2 {
		top2 = top2[:2]
	}
	bound := 0
	for _, c := range top2 {
		inserted, err := m.store.InsertEvidence(ctx, nil, model.Evidence{
			EvidenceID: uuid.NewString(), RequirementID: c.req.RequirementID,
			EvidenceType: model.KindFile, RefID: sum, RefPath: path, AddedAt: now,
		})
		if err != nil {
			return bound, fmt.Errorf("insert evidence: %w", err)
		}
		if !inserted {
			continue
		}
		if err := m.store.AppendEvent(ctx, nil, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: planID, TaskID: &c.req.TaskID, EventType: "EVIDENCE_ADDED",
			Payload: map[string]any{
				"requirement_id": c.req.RequirementID, "requirement_name": c.req.Name,
				"file": path, "sha256": sum, "match_score": c.score, "match_reasons": c.reasons,
				"inputs_dir": inputsDir,
			},
			CreatedAt: now,
		}); err != nil {
			return bound, fmt.Errorf("emit evidence_added: %w", err)
		}
		bound++
	}
	return bound, nil
}

func (m *Matcher) emitConflict(ctx context.Context, planID, path, sum string, score int, tied []scoredCandidate) error {
	tiedPayload := make([]map[string]any, 0, len(tied))
	for _, t := range tied {
		tiedPayload = append(tiedPayload, map[string]any{"requirement_id": t.req.RequirementID, "name": t.req.Name})
	}
	taskID := tied[0].req.TaskID
	return m.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, TaskID: &taskID, EventType: "EVIDENCE_CONFLICT",
		Payload: map[string]any{
			"file": path, "sha256": sum, "score": score, "tied_requirements": tiedPayload,
			"suggestion": "Place the file under workspace/inputs/<requirement_name>/ to disambiguate.",
		},
		CreatedAt: time.Now().UTC(),
	})
}

func (m *Matcher) emitBaselineSkipped(ctx context.Context, planID, dir string, kept, skipped int, budget Budget) error {
	return m.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, EventType: "BASELINE_INPUTS_SKIPPED",
		Payload: map[string]any{
			"baseline_dir": dir, "kept_files": kept, "skipped_files": skipped,
			"max_files": budget.MaxFiles, "max_total_bytes": budget.MaxTotalBytes,
			"hint": "baseline_inputs is large; consider moving project-specific files to workspace/inputs/<requirement_name>/ or curating baseline_inputs.",
		},
		CreatedAt: time.Now().UTC(),
	})
}

// DetectRemovedInputFiles marks any previously-seen, not-yet-removed path
// under inputsDirs that no longer exists on disk, and emits FILE_REMOVED.
func (m *Matcher) DetectRemovedInputFiles(ctx context.Context, planID string, inputsDirs []string) (int, error) {
	active, err := m.store.ListActiveInputFiles(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("list active input files: %w", err)
	}
	removed := 0
	for _, f := range active {
		if !underAny(f.Path, inputsDirs) {
			continue
		}
		if _, err := os.Stat(f.Path); err == nil {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if err := m.store.MarkInputFileRemoved(ctx, nil, f.InputFileID, now); err != nil {
			return removed, fmt.Errorf("mark removed: %w", err)
		}
		if err := m.store.AppendEvent(ctx, nil, model.TaskEvent{
			EventID: uuid.NewString(), PlanID: planID, EventType: "FILE_REMOVED",
			Payload:   map[string]any{"path": f.Path, "sha256": f.SHA256},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return removed, fmt.Errorf("emit file_removed: %w", err)
		}
		removed++
	}
	return removed, nil
}

func underAny(path string, dirs []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, d := range dirs {
		dAbs, err := filepath.Abs(d)
		if err != nil {
			dAbs = d
		}
		if rel, err := filepath.Rel(dAbs, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

func scoreMatch(req model.InputRequirement, path, inputsDir string, allowNameInFilename bool) (int, []string) {
	score := 0
	var reasons []string

	if rel, err := filepath.Rel(inputsDir, path); err == nil {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) > 0 && strings.EqualFold(parts[0], req.Name) {
			score += 100
			reasons = append(reasons, "dir_map:+100")
		}
	}

	filename := strings.ToLower(filepath.Base(path))
	if allowNameInFilename && req.Name != "" && strings.Contains(filename, strings.ToLower(req.Name)) {
		score += 70
		reasons = append(reasons, "name_in_filename:+70")
	}

	hit := 0
	for _, kw := range req.FilenameKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(filename, strings.ToLower(kw)) {
			hit++
		}
	}
	if hit > 0 {
		add := hit * 40
		if add > 80 {
			add = 80
		}
		score += add
		if score > 200 {
			score = 200
		}
		reasons = append(reasons, fmt.Sprintf("filename_keywords:%d:+%d", hit, add))
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext != "" && containsFold(req.AllowedTypes, ext) {
		score += 10
		reasons = append(reasons, "type:+10")
	}

	if req.Source == model.SourceUser {
		score += 10
		reasons = append(reasons, "source_user:+10")
	}

	return score, reasons
}

func containsFold(items []string, v string) bool {
	for _, it := range items {
		if strings.EqualFold(it, v) {
			return true
		}
	}
	return false
}

func allowedExtensions(reqs []model.InputRequirement) map[string]bool {
	out := map[string]bool{}
	for _, r := range reqs {
		for _, t := range r.AllowedTypes {
			t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
			if t != "" {
				out[t] = true
			}
		}
	}
	return out
}

func walkBudgeted(dir string, allowedExts map[string]bool, budgeted bool, budget Budget) (files []string, skipped int, err error) {
	var totalBytes int64
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if len(allowedExts) > 0 && ext != "" && !allowedExts[ext] {
			return nil
		}
		if budgeted {
			if budget.MaxFiles > 0 && len(files) >= budget.MaxFiles {
				skipped++
				return nil
			}
			info, infoErr := d.Info()
			var sz int64
			if infoErr == nil {
				sz = info.Size()
			}
			if budget.MaxTotalBytes > 0 && totalBytes+sz > budget.MaxTotalBytes {
				skipped++
				return nil
			}
			totalBytes += sz
		}
		files = append(files, path)
		return nil
	})
	return files, skipped, err
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
