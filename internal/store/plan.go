package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// UpsertPlan writes the plan row. Plans are created once at import and
// never mutated afterward; callers should only call this during plan
// import, never from the main loop.
func (s *Store) UpsertPlan(ctx context.Context, q Querier, p model.Plan) error {
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO plans(plan_id, title, owner_agent, root_task_id, created_at, deadline, priority)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			title=excluded.title, owner_agent=excluded.owner_agent,
			root_task_id=excluded.root_task_id, deadline=excluded.deadline, priority=excluded.priority
	`, p.PlanID, p.Title, string(p.OwnerAgent), p.RootTaskID, formatTime(p.CreatedAt), nullableTime(p.Deadline), p.Priority)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, title, owner_agent, root_task_id, created_at, deadline, priority
		FROM plans WHERE plan_id = ?
	`, planID)
	var p model.Plan
	var created string
	var deadline sql.NullString
	if err := row.Scan(&p.PlanID, &p.Title, &p.OwnerAgent, &p.RootTaskID, &created, &deadline, &p.Priority); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse plan.created_at: %w", err)
	}
	p.CreatedAt = t
	if deadline.Valid {
		dt, err := parseTime(deadline.String)
		if err == nil {
			p.Deadline = &dt
		}
	}
	return &p, nil
}

// LatestPlanID returns the most recently created plan, the fallback every
// CLI command uses when an operator doesn't pass --plan-id explicitly.
func (s *Store) LatestPlanID(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT plan_id FROM plans ORDER BY created_at DESC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrNotFound
		}
		return "", fmt.Errorf("latest plan id: %w", err)
	}
	return id, nil
}
