package store

import (
	"context"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) InsertRequirement(ctx context.Context, q Querier, r model.InputRequirement) error {
	required := 0
	if r.Required {
		required = 1
	}
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO input_requirements(requirement_id, task_id, name, kind, required, min_count, allowed_types, source, filename_keywords)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(requirement_id) DO NOTHING
	`, r.RequirementID, r.TaskID, r.Name, string(r.Kind), required, r.MinCount, toJSONList(r.AllowedTypes), string(r.Source), toJSONList(r.FilenameKeywords))
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (s *Store) ListRequirementsForPlan(ctx context.Context, planID string) ([]model.InputRequirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.requirement_id, r.task_id, r.name, r.kind, r.required, r.min_count, r.allowed_types, r.source, r.filename_keywords
		FROM input_requirements r
		JOIN task_nodes n ON n.task_id = r.task_id
		WHERE n.plan_id = ?
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()
	var out []model.InputRequirement
	for rows.Next() {
		var r model.InputRequirement
		var required int
		var allowedTypes, keywords string
		if err := rows.Scan(&r.RequirementID, &r.TaskID, &r.Name, &r.Kind, &required, &r.MinCount, &allowedTypes, &r.Source, &keywords); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.Required = required != 0
		r.AllowedTypes = fromJSONList(allowedTypes)
		r.FilenameKeywords = fromJSONList(keywords)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRequirementsForTask(ctx context.Context, taskID string) ([]model.InputRequirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requirement_id, task_id, name, kind, required, min_count, allowed_types, source, filename_keywords
		FROM input_requirements WHERE task_id = ?
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list requirements for task: %w", err)
	}
	defer rows.Close()
	var out []model.InputRequirement
	for rows.Next() {
		var r model.InputRequirement
		var required int
		var allowedTypes, keywords string
		if err := rows.Scan(&r.RequirementID, &r.TaskID, &r.Name, &r.Kind, &required, &r.MinCount, &allowedTypes, &r.Source, &keywords); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.Required = required != 0
		r.AllowedTypes = fromJSONList(allowedTypes)
		r.FilenameKeywords = fromJSONList(keywords)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EvidenceCount returns how many Evidence rows satisfy requirementID, for
// readiness's min_count check.
func (s *Store) EvidenceCount(ctx context.Context, requirementID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM evidences WHERE requirement_id = ?`, requirementID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}
