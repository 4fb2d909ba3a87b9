package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// InsertSkillRun is idempotent on idempotency_key: a retried skill
// invocation with the same key returns the prior run instead of duplicating it.
func (s *Store) InsertSkillRun(ctx context.Context, q Querier, r model.SkillRun) (*model.SkillRun, error) {
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO skill_runs(skill_run_id, skill_name, task_id, input_hashes, params_json, status, outputs_json, idempotency_key, created_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`, r.SkillRunID, r.SkillName, r.TaskID, toJSONList(r.InputHashes), toJSON(r.Params), r.Status, toJSON(r.Outputs), r.IdempotencyKey, formatTime(r.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert skill run: %w", err)
	}
	return s.GetSkillRunByKey(ctx, r.IdempotencyKey)
}

func scanSkillRun(row interface{ Scan(...any) error }) (*model.SkillRun, error) {
	var r model.SkillRun
	var hashes, params, outputs, created string
	if err := row.Scan(&r.SkillRunID, &r.SkillName, &r.TaskID, &hashes, &params, &r.Status, &outputs, &r.IdempotencyKey, &created); err != nil {
		return nil, err
	}
	r.InputHashes = fromJSONList(hashes)
	r.Params = fromJSONMap(params)
	r.Outputs = fromJSONMap(outputs)
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t
	return &r, nil
}

const skillRunColumns = `skill_run_id, skill_name, task_id, input_hashes, params_json, status, outputs_json, idempotency_key, created_at`

func (s *Store) GetSkillRunByKey(ctx context.Context, idempotencyKey string) (*model.SkillRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillRunColumns+` FROM skill_runs WHERE idempotency_key = ?`, idempotencyKey)
	r, err := scanSkillRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill run: %w", err)
	}
	return r, nil
}

func (s *Store) ListSkillRunsForTask(ctx context.Context, taskID string) ([]model.SkillRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+skillRunColumns+` FROM skill_runs WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list skill runs: %w", err)
	}
	defer rows.Close()
	var out []model.SkillRun
	for rows.Next() {
		r, err := scanSkillRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
