package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) InsertReview(ctx context.Context, q Querier, r model.Review) error {
	breakdown, err := json.Marshal(r.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	suggestions, err := json.Marshal(r.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	_, err = s.q(q).ExecContext(ctx, `
		INSERT INTO reviews(review_id, target_task_id, reviewed_artifact_id, reviewer_agent, total_score,
			breakdown_json, suggestions_json, summary, action_required, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)
	`, r.ReviewID, r.TargetTaskID, r.ReviewedArtifactID, string(r.ReviewerAgent), r.TotalScore,
		string(breakdown), string(suggestions), r.Summary, string(r.ActionRequired), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func scanReview(row interface{ Scan(...any) error }) (*model.Review, error) {
	var r model.Review
	var breakdown, suggestions, created string
	if err := row.Scan(&r.ReviewID, &r.TargetTaskID, &r.ReviewedArtifactID, &r.ReviewerAgent, &r.TotalScore,
		&breakdown, &suggestions, &r.Summary, &r.ActionRequired, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(breakdown), &r.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &r.Suggestions); err != nil {
		return nil, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t
	return &r, nil
}

const reviewColumns = `review_id, target_task_id, reviewed_artifact_id, reviewer_agent, total_score,
	breakdown_json, suggestions_json, summary, action_required, created_at`

func (s *Store) GetLatestReview(ctx context.Context, targetTaskID string) (*model.Review, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE target_task_id = ? ORDER BY created_at DESC LIMIT 1
	`, targetTaskID)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest review: %w", err)
	}
	return r, nil
}

func (s *Store) ListReviewsForTask(ctx context.Context, targetTaskID string) ([]model.Review, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE target_task_id = ? ORDER BY created_at`, targetTaskID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	var out []model.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
