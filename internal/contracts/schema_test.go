package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAgainstSchema_AcceptsWellShapedAction(t *testing.T) {
	obj := map[string]any{
		"schema_version": "xiaobo_action_v1", "task_id": "t-1", "result_type": "NOOP",
	}
	require.NoError(t, validateAgainstSchema("xiaobo_action_v1.json", obj))
}

func TestValidateAgainstSchema_RejectsWrongConstSchemaVersion(t *testing.T) {
	obj := map[string]any{
		"schema_version": "wrong_v1", "task_id": "t-1", "result_type": "NOOP",
	}
	assert.Error(t, validateAgainstSchema("xiaobo_action_v1.json", obj))
}

func TestValidateAgainstSchema_RejectsOutOfRangeScore(t *testing.T) {
	obj := map[string]any{
		"schema_version": "xiaojing_review_v1", "task_id": "t-1", "review_target": "NODE",
		"total_score": 150, "action_required": "APPROVE",
	}
	assert.Error(t, validateAgainstSchema("xiaojing_review_v1.json", obj))
}

func TestValidateAgainstSchema_RoundTripsNativeIntScore(t *testing.T) {
	// total_score arrives as a native Go int from coerceInt, not the
	// float64 encoding/json.Unmarshal would produce; validateAgainstSchema
	// must round-trip through JSON before handing the value to the schema.
	obj := map[string]any{
		"schema_version": "xiaojing_review_v1", "task_id": "t-1", "review_target": "NODE",
		"total_score": 80, "action_required": "APPROVE",
	}
	require.NoError(t, validateAgainstSchema("xiaojing_review_v1.json", obj))
}

func TestValidateAgainstSchema_UnknownSchemaNameErrors(t *testing.T) {
	assert.Error(t, validateAgainstSchema("nonexistent.json", map[string]any{}))
}
