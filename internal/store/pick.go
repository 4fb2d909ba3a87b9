package store

import (
	"context"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// PickExecutorTasks returns the top candidates for the executor agent:
// active ACTION nodes owned by it in TO_BE_MODIFY or READY, TO_BE_MODIFY
// first, then priority desc, attempt_count asc, created_at asc (§4.6).
func (s *Store) PickExecutorTasks(ctx context.Context, planID string, owner model.Agent, limit int) ([]model.TaskNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskNodeColumns+` FROM task_nodes
		WHERE plan_id = ? AND active_branch = 1 AND owner_agent = ? AND node_type = 'ACTION'
		  AND status IN ('TO_BE_MODIFY', 'READY')
		ORDER BY
		  CASE status WHEN 'TO_BE_MODIFY' THEN 0 ELSE 1 END,
		  priority DESC,
		  attempt_count ASC,
		  created_at ASC
		LIMIT ?
	`, planID, string(owner), limit)
	if err != nil {
		return nil, fmt.Errorf("pick executor tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskNodes(rows)
}

// PickReviewerTasks returns active ACTION nodes ready for review
// (READY_TO_CHECK), priority desc, attempt_count asc, created_at asc.
func (s *Store) PickReviewerTasks(ctx context.Context, planID string, limit int) ([]model.TaskNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskNodeColumns+` FROM task_nodes
		WHERE plan_id = ? AND active_branch = 1 AND status = 'READY_TO_CHECK'
		ORDER BY priority DESC, attempt_count ASC, created_at ASC
		LIMIT ?
	`, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("pick reviewer tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskNodes(rows)
}

// PickReviewerCheckNodes returns active CHECK nodes owned by the reviewer
// agent in READY status, for dedicated review-gate nodes.
func (s *Store) PickReviewerCheckNodes(ctx context.Context, planID string, owner model.Agent, limit int) ([]model.TaskNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskNodeColumns+` FROM task_nodes
		WHERE plan_id = ? AND active_branch = 1 AND node_type = 'CHECK' AND owner_agent = ? AND status = 'READY'
		ORDER BY priority DESC, attempt_count ASC, created_at ASC
		LIMIT ?
	`, planID, string(owner), limit)
	if err != nil {
		return nil, fmt.Errorf("pick reviewer check nodes: %w", err)
	}
	defer rows.Close()
	return scanTaskNodes(rows)
}

func scanTaskNodes(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.TaskNode, error) {
	var out []model.TaskNode
	for rows.Next() {
		n, err := scanTaskNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
