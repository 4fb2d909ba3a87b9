package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dagrunner/planengine/internal/model"
)

// InsertEvidence is idempotent on (requirement_id, ref_id) per invariant 8:
// a duplicate bind is a no-op, reported via the bool return.
func (s *Store) InsertEvidence(ctx context.Context, q Querier, e model.Evidence) (inserted bool, err error) {
	_, err = s.q(q).ExecContext(ctx, `
		INSERT INTO evidences(evidence_id, requirement_id, evidence_type, ref_id, ref_path, added_at)
		VALUES(?,?,?,?,?,?)
	`, e.EvidenceID, e.RequirementID, string(e.EvidenceType), e.RefID, e.RefPath, formatTime(e.AddedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, fmt.Errorf("insert evidence: %w", err)
	}
	return true, nil
}

func (s *Store) ListEvidenceForRequirement(ctx context.Context, requirementID string) ([]model.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT evidence_id, requirement_id, evidence_type, ref_id, ref_path, added_at
		FROM evidences WHERE requirement_id = ? ORDER BY added_at
	`, requirementID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()
	var out []model.Evidence
	for rows.Next() {
		var e model.Evidence
		var added string
		if err := rows.Scan(&e.EvidenceID, &e.RequirementID, &e.EvidenceType, &e.RefID, &e.RefPath, &added); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		t, err := parseTime(added)
		if err != nil {
			return nil, err
		}
		e.AddedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}
