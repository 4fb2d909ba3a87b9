package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) InsertTaskEdge(ctx context.Context, q Querier, e model.TaskEdge) error {
	var andOr, groupID any
	if e.AndOr != nil {
		andOr = string(*e.AndOr)
	}
	if e.GroupID != nil {
		groupID = *e.GroupID
	}
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO task_edges(edge_id, plan_id, from_task_id, to_task_id, edge_type, and_or, group_id)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(edge_id) DO NOTHING
	`, e.EdgeID, e.PlanID, e.FromTaskID, e.ToTaskID, string(e.EdgeType), andOr, groupID)
	if err != nil {
		return fmt.Errorf("insert task edge: %w", err)
	}
	return nil
}

func scanEdge(row interface{ Scan(...any) error }) (*model.TaskEdge, error) {
	var e model.TaskEdge
	var andOr, groupID sql.NullString
	if err := row.Scan(&e.EdgeID, &e.PlanID, &e.FromTaskID, &e.ToTaskID, &e.EdgeType, &andOr, &groupID); err != nil {
		return nil, err
	}
	if andOr.Valid {
		v := model.AndOr(andOr.String)
		e.AndOr = &v
	}
	if groupID.Valid {
		e.GroupID = &groupID.String
	}
	return &e, nil
}

const edgeColumns = `edge_id, plan_id, from_task_id, to_task_id, edge_type, and_or, group_id`

func (s *Store) ListTaskEdges(ctx context.Context, planID string) ([]model.TaskEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM task_edges WHERE plan_id = ?`, planID)
	if err != nil {
		return nil, fmt.Errorf("list task edges: %w", err)
	}
	defer rows.Close()
	var out []model.TaskEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task edge: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) ListEdgesByType(ctx context.Context, planID string, edgeType model.EdgeType) ([]model.TaskEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM task_edges WHERE plan_id = ? AND edge_type = ?`, planID, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("list edges by type: %w", err)
	}
	defer rows.Close()
	var out []model.TaskEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
