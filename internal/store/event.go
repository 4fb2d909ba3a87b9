package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// AppendEvent writes one entry to the append-only task_events journal.
// Callers never update or delete an event row.
func (s *Store) AppendEvent(ctx context.Context, q Querier, e model.TaskEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.q(q).ExecContext(ctx, `
		INSERT INTO task_events(event_id, plan_id, task_id, event_type, payload, created_at)
		VALUES(?,?,?,?,?,?)
	`, e.EventID, e.PlanID, nullableString(e.TaskID), e.EventType, string(payload), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEventsForPlan(ctx context.Context, planID string, since *string) ([]model.TaskEvent, error) {
	query := `SELECT event_id, plan_id, task_id, event_type, payload, created_at FROM task_events WHERE plan_id = ?`
	args := []any{planID}
	if since != nil {
		query += ` AND event_id > ?`
		args = append(args, *since)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListEventsForTask(ctx context.Context, taskID string) ([]model.TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, plan_id, task_id, event_type, payload, created_at
		FROM task_events WHERE task_id = ? ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list events for task: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.TaskEvent, error) {
	var out []model.TaskEvent
	for rows.Next() {
		var e model.TaskEvent
		var taskID sql.NullString
		var payload, created string
		if err := rows.Scan(&e.EventID, &e.PlanID, &taskID, &e.EventType, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}
