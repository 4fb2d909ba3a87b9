package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// UpsertInputFile records one observation of a path during a matcher scan,
// refreshing last_seen_at and clearing any prior removed_at. Paths that have
// since vanished are found by the matcher's DetectRemovedInputFiles, which stats every row
// ListActiveInputFiles returns.
func (s *Store) UpsertInputFile(ctx context.Context, q Querier, f model.InputFile) error {
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO input_files(input_file_id, plan_id, path, sha256, size_bytes, mtime_utc, first_seen_at, last_seen_at, removed_at)
		VALUES(?,?,?,?,?,?,?,?,NULL)
		ON CONFLICT(plan_id, path, sha256) DO UPDATE SET
			last_seen_at=excluded.last_seen_at, mtime_utc=excluded.mtime_utc, removed_at=NULL
	`, f.InputFileID, f.PlanID, f.Path, f.SHA256, f.SizeBytes, formatTime(f.MtimeUTC), formatTime(f.FirstSeenAt), formatTime(f.LastSeenAt))
	if err != nil {
		return fmt.Errorf("upsert input file: %w", err)
	}
	return nil
}

// MarkInputFileRemoved is how the matcher records FILE_REMOVED: a path that
// was previously seen but is absent from the current baseline scan.
func (s *Store) MarkInputFileRemoved(ctx context.Context, q Querier, inputFileID, now string) error {
	_, err := s.q(q).ExecContext(ctx, `UPDATE input_files SET removed_at=? WHERE input_file_id=? AND removed_at IS NULL`, now, inputFileID)
	if err != nil {
		return fmt.Errorf("mark input file removed: %w", err)
	}
	return nil
}

func scanInputFile(row interface{ Scan(...any) error }) (*model.InputFile, error) {
	var f model.InputFile
	var mtime, firstSeen, lastSeen string
	var removed sql.NullString
	if err := row.Scan(&f.InputFileID, &f.PlanID, &f.Path, &f.SHA256, &f.SizeBytes, &mtime, &firstSeen, &lastSeen, &removed); err != nil {
		return nil, err
	}
	var err error
	if f.MtimeUTC, err = parseTime(mtime); err != nil {
		return nil, err
	}
	if f.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if f.LastSeenAt, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if removed.Valid {
		t, err := parseTime(removed.String)
		if err != nil {
			return nil, err
		}
		f.RemovedAt = &t
	}
	return &f, nil
}

const inputFileColumns = `input_file_id, plan_id, path, sha256, size_bytes, mtime_utc, first_seen_at, last_seen_at, removed_at`

func (s *Store) ListActiveInputFiles(ctx context.Context, planID string) ([]model.InputFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+inputFileColumns+` FROM input_files WHERE plan_id = ? AND removed_at IS NULL`, planID)
	if err != nil {
		return nil, fmt.Errorf("list active input files: %w", err)
	}
	defer rows.Close()
	var out []model.InputFile
	for rows.Next() {
		f, err := scanInputFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan input file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *Store) GetInputFileByPath(ctx context.Context, planID, path string) (*model.InputFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+inputFileColumns+` FROM input_files WHERE plan_id = ? AND path = ? AND removed_at IS NULL
	`, planID, path)
	f, err := scanInputFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get input file: %w", err)
	}
	return f, nil
}
