package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) UpsertTaskNode(ctx context.Context, q Querier, n model.TaskNode) error {
	if err := model.ValidStatusForNodeType(n.Status, n.NodeType); err != nil {
		return err
	}
	activeBranch := 0
	if n.ActiveBranch {
		activeBranch = 1
	}
	var blockedReason any
	if n.BlockedReason != nil {
		blockedReason = string(*n.BlockedReason)
	}
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO task_nodes(
			task_id, plan_id, node_type, title, owner_agent, priority, status, blocked_reason,
			attempt_count, active_artifact_id, approved_artifact_id, active_branch, created_at, updated_at,
			estimated_person_days, deliverable_spec, acceptance_criteria, review_target_task_id
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(task_id) DO UPDATE SET
			node_type=excluded.node_type, title=excluded.title, owner_agent=excluded.owner_agent,
			priority=excluded.priority, status=excluded.status, blocked_reason=excluded.blocked_reason,
			attempt_count=excluded.attempt_count, active_artifact_id=excluded.active_artifact_id,
			approved_artifact_id=excluded.approved_artifact_id, active_branch=excluded.active_branch,
			updated_at=excluded.updated_at, estimated_person_days=excluded.estimated_person_days,
			deliverable_spec=excluded.deliverable_spec, acceptance_criteria=excluded.acceptance_criteria,
			review_target_task_id=excluded.review_target_task_id
	`, n.TaskID, n.PlanID, string(n.NodeType), n.Title, string(n.OwnerAgent), n.Priority, string(n.Status),
		blockedReason, n.AttemptCount, nullableString(n.ActiveArtifactID), nullableString(n.ApprovedArtifactID),
		activeBranch, formatTime(n.CreatedAt), formatTime(n.UpdatedAt),
		n.EstimatedPersonDays, nullableString(n.DeliverableSpec), nullableString(n.AcceptanceCriteria),
		nullableString(n.ReviewTargetTaskID))
	if err != nil {
		return fmt.Errorf("upsert task node %s: %w", n.TaskID, err)
	}
	return nil
}

const taskNodeColumns = `task_id, plan_id, node_type, title, owner_agent, priority, status, blocked_reason,
	attempt_count, active_artifact_id, approved_artifact_id, active_branch, created_at, updated_at,
	estimated_person_days, deliverable_spec, acceptance_criteria, review_target_task_id`

func scanTaskNode(row interface{ Scan(...any) error }) (*model.TaskNode, error) {
	var n model.TaskNode
	var blockedReason, activeArtifact, approvedArtifact, deliverableSpec, acceptanceCriteria, reviewTarget sql.NullString
	var estimated sql.NullFloat64
	var activeBranch int
	var created, updated string
	if err := row.Scan(&n.TaskID, &n.PlanID, &n.NodeType, &n.Title, &n.OwnerAgent, &n.Priority, &n.Status,
		&blockedReason, &n.AttemptCount, &activeArtifact, &approvedArtifact, &activeBranch, &created, &updated,
		&estimated, &deliverableSpec, &acceptanceCriteria, &reviewTarget); err != nil {
		return nil, err
	}
	if blockedReason.Valid {
		br := model.BlockedReason(blockedReason.String)
		n.BlockedReason = &br
	}
	if activeArtifact.Valid {
		n.ActiveArtifactID = &activeArtifact.String
	}
	if approvedArtifact.Valid {
		n.ApprovedArtifactID = &approvedArtifact.String
	}
	if deliverableSpec.Valid {
		n.DeliverableSpec = &deliverableSpec.String
	}
	if acceptanceCriteria.Valid {
		n.AcceptanceCriteria = &acceptanceCriteria.String
	}
	if reviewTarget.Valid {
		n.ReviewTargetTaskID = &reviewTarget.String
	}
	if estimated.Valid {
		n.EstimatedPersonDays = &estimated.Float64
	}
	n.ActiveBranch = activeBranch != 0
	ct, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	ut, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	n.CreatedAt, n.UpdatedAt = ct, ut
	return &n, nil
}

func (s *Store) GetTaskNode(ctx context.Context, taskID string) (*model.TaskNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskNodeColumns+` FROM task_nodes WHERE task_id = ?`, taskID)
	n, err := scanTaskNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task node: %w", err)
	}
	return n, nil
}

func (s *Store) ListTaskNodes(ctx context.Context, planID string) ([]model.TaskNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskNodeColumns+` FROM task_nodes WHERE plan_id = ? ORDER BY created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("list task nodes: %w", err)
	}
	defer rows.Close()
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

// SetTaskStatus writes status/blocked_reason and bumps updated_at. Callers
// are responsible for emitting the STATUS_CHANGED event (readiness/executor/
// reviewer do this so the event payload can include the transition reason).
func (s *Store) SetTaskStatus(ctx context.Context, q Querier, taskID string, status model.TaskStatus, reason *model.BlockedReason, now string) error {
	var r any
	if reason != nil {
		r = string(*reason)
	}
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET status=?, blocked_reason=?, updated_at=? WHERE task_id=?`,
		string(status), r, now, taskID)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

func (s *Store) SetActiveBranch(ctx context.Context, q Querier, taskID string, active bool, now string) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET active_branch=?, updated_at=? WHERE task_id=?`, v, now, taskID)
	if err != nil {
		return fmt.Errorf("set active branch: %w", err)
	}
	return nil
}

// IncrementAttempt enforces invariant 7: attempt_count only increases.
func (s *Store) IncrementAttempt(ctx context.Context, q Querier, taskID string, now string) (int, error) {
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET attempt_count = attempt_count + 1, updated_at=? WHERE task_id=?`, now, taskID)
	if err != nil {
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	row := s.q(q).QueryRowContext(ctx, `SELECT attempt_count FROM task_nodes WHERE task_id=?`, taskID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("read attempt count: %w", err)
	}
	return n, nil
}

// ResetAttemptCount zeroes attempt_count, the one exception to invariant
// 7's monotonic rule — reserved for the operator-driven reset-failed CLI
// command, never called from the tick loop itself.
func (s *Store) ResetAttemptCount(ctx context.Context, q Querier, taskID, now string) error {
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET attempt_count = 0, updated_at=? WHERE task_id=?`, now, taskID)
	if err != nil {
		return fmt.Errorf("reset attempt count: %w", err)
	}
	return nil
}

func (s *Store) SetActiveArtifact(ctx context.Context, q Querier, taskID, artifactID, now string) error {
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET active_artifact_id=?, updated_at=? WHERE task_id=?`, artifactID, now, taskID)
	if err != nil {
		return fmt.Errorf("set active artifact: %w", err)
	}
	return nil
}

func (s *Store) SetApprovedArtifact(ctx context.Context, q Querier, taskID, artifactID, now string) error {
	_, err := s.q(q).ExecContext(ctx, `UPDATE task_nodes SET approved_artifact_id=?, updated_at=? WHERE task_id=?`, artifactID, now, taskID)
	if err != nil {
		return fmt.Errorf("set approved artifact: %w", err)
	}
	return nil
}
