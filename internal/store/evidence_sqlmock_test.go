package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/model"
)

// These two tests assert the exact SQL InsertEvidence issues without a live
// SQLite engine, per §4.1's idempotent-insert contract: a plain INSERT that
// relies on the schema's UNIQUE(requirement_id, ref_id) index to reject a
// duplicate bind, rather than an explicit existence check beforehand.

func TestInsertEvidence_IssuesExactInsertSQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := &Store{db: mockDB, logger: zap.NewNop()}
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := model.Evidence{
		EvidenceID: "ev-1", RequirementID: "req-1", EvidenceType: model.KindFile,
		RefID: "sha256sum", RefPath: "/inputs/a.pdf", AddedAt: now,
	}

	mock.ExpectExec("INSERT INTO evidences\\(evidence_id, requirement_id, evidence_type, ref_id, ref_path, added_at\\)").
		WithArgs(e.EvidenceID, e.RequirementID, string(e.EvidenceType), e.RefID, e.RefPath, formatTime(now)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := s.InsertEvidence(ctx, nil, e)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvidence_UniqueConstraintFailureReportsNotInsertedWithoutError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := &Store{db: mockDB, logger: zap.NewNop()}
	ctx := context.Background()
	e := model.Evidence{
		EvidenceID: "ev-2", RequirementID: "req-1", EvidenceType: model.KindFile,
		RefID: "sha256sum", RefPath: "/inputs/a.pdf", AddedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO evidences").
		WithArgs(e.EvidenceID, e.RequirementID, string(e.EvidenceType), e.RefID, e.RefPath, sqlmock.AnyArg()).
		WillReturnError(errors.New("UNIQUE constraint failed: evidences.requirement_id, evidences.ref_id"))

	inserted, err := s.InsertEvidence(ctx, nil, e)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
