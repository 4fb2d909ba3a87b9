package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) InsertArtifact(ctx context.Context, q Querier, a model.Artifact) error {
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO artifacts(artifact_id, task_id, name, path, format, version, sha256, created_at)
		VALUES(?,?,?,?,?,?,?,?)
	`, a.ArtifactID, a.TaskID, a.Name, a.Path, string(a.Format), a.Version, a.SHA256, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, artifactID string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, task_id, name, path, format, version, sha256, created_at
		FROM artifacts WHERE artifact_id = ?
	`, artifactID)
	var a model.Artifact
	var created string
	if err := row.Scan(&a.ArtifactID, &a.TaskID, &a.Name, &a.Path, &a.Format, &a.Version, &a.SHA256, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = t
	return &a, nil
}

// NextArtifactVersion returns len(existing versions)+1 for taskID, so
// artifact versions are stable monotone integers per task.
func (s *Store) NextArtifactVersion(ctx context.Context, q Querier, taskID string) (int, error) {
	row := s.q(q).QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE task_id = ?`, taskID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n + 1, nil
}

func (s *Store) ListArtifactsForTask(ctx context.Context, taskID string) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, task_id, name, path, format, version, sha256, created_at
		FROM artifacts WHERE task_id = ? ORDER BY version
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []model.Artifact
	for rows.Next() {
		var a model.Artifact
		var created string
		if err := rows.Scan(&a.ArtifactID, &a.TaskID, &a.Name, &a.Path, &a.Format, &a.Version, &a.SHA256, &created); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		a.CreatedAt = t
		out = append(out, a)
	}
	return out, rows.Err()
}
