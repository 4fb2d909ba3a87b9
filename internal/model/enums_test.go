package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatusForNodeType_RejectsReadyToCheckOnNonAction(t *testing.T) {
	err := ValidStatusForNodeType(StatusReadyToCheck, NodeGoal)
	assert.ErrorIs(t, err, ErrStatusNodeTypeMismatch)
}

func TestValidStatusForNodeType_AcceptsReadyToCheckOnAction(t *testing.T) {
	assert.NoError(t, ValidStatusForNodeType(StatusReadyToCheck, NodeAction))
}

func TestValidStatusForNodeType_RejectsUnknownStatus(t *testing.T) {
	err := ValidStatusForNodeType(TaskStatus("NOT_A_STATUS"), NodeAction)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestValidStatusForNodeType_RejectsUnknownNodeType(t *testing.T) {
	err := ValidStatusForNodeType(StatusPending, NodeType("NOT_A_TYPE"))
	assert.ErrorIs(t, err, ErrInvalidNodeType)
}

func TestTaskStatus_Terminalish(t *testing.T) {
	assert.True(t, StatusDone.Terminalish())
	assert.True(t, StatusAbandoned.Terminalish())
	assert.True(t, StatusReadyToCheck.Terminalish())
	assert.False(t, StatusPending.Terminalish())
	assert.False(t, StatusFailed.Terminalish())
}

func TestNodeType_Valid(t *testing.T) {
	assert.True(t, NodeGoal.Valid())
	assert.False(t, NodeType("BOGUS").Valid())
}

func TestEdgeType_Valid(t *testing.T) {
	assert.True(t, EdgeDependsOn.Valid())
	assert.False(t, EdgeType("BOGUS").Valid())
}

func TestBlockedReason_Valid(t *testing.T) {
	assert.True(t, WaitingInput.Valid())
	assert.False(t, BlockedReason("BOGUS").Valid())
}

func TestReviewAction_Valid(t *testing.T) {
	assert.True(t, ActionApprove.Valid())
	assert.False(t, ReviewAction("BOGUS").Valid())
}

func TestResultType_Valid(t *testing.T) {
	assert.True(t, ResultArtifact.Valid())
	assert.False(t, ResultType("BOGUS").Valid())
}

func TestArtifactFormat_Valid(t *testing.T) {
	assert.True(t, FormatJSON.Valid())
	assert.False(t, ArtifactFormat("exe").Valid())
}
