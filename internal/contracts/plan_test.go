package contracts

import (
	"testing"
	"time"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlanJSON_MinimalGoalOnly(t *testing.T) {
	raw := map[string]any{
		"plan": map[string]any{"title": "Ship the thing"},
	}
	got := NormalizePlanJSON(raw, "Ship the thing", time.Now())
	require.NoError(t, ValidatePlanJSON(got))

	nodes, _ := asSlice(got["nodes"])
	require.Len(t, nodes, 1)
	root, _ := asMap(nodes[0])
	assert.Equal(t, "GOAL", root["node_type"])
}

func TestNormalizePlanJSON_SynthesizesRootDecomposeWhenEdgesMissing(t *testing.T) {
	raw := map[string]any{
		"plan": map[string]any{"title": "Ship the thing"},
		"nodes": []any{
			map[string]any{"task_id": "a", "node_type": "ACTION", "title": "Do A"},
			map[string]any{"task_id": "b", "node_type": "ACTION", "title": "Do B"},
		},
	}
	got := NormalizePlanJSON(raw, "Ship the thing", time.Now())
	require.NoError(t, ValidatePlanJSON(got))

	edges, _ := asSlice(got["edges"])
	assert.NotEmpty(t, edges)
	for _, v := range edges {
		e, _ := asMap(v)
		assert.Equal(t, "DECOMPOSE", e["edge_type"])
	}
}

func TestNormalizePlanJSON_AliasesEdgeAndNodeKeys(t *testing.T) {
	raw := map[string]any{
		"plan": map[string]any{"name": "Aliased plan"},
		"tasks": []any{
			map[string]any{"id": "root-alias", "type": "GOAL", "name": "Root"},
			map[string]any{"id": "child-alias", "kind": "ACTION", "label": "Child"},
		},
		"links": []any{
			map[string]any{"from": "root-alias", "to": "child-alias", "relation": "DECOMPOSITION"},
		},
	}
	got := NormalizePlanJSON(raw, "Aliased plan", time.Now())
	require.NoError(t, ValidatePlanJSON(got))

	edges, _ := asSlice(got["edges"])
	require.Len(t, edges, 1)
	e, _ := asMap(edges[0])
	assert.Equal(t, "DECOMPOSE", e["edge_type"])
}

func TestNormalizePlanJSON_RewritesStartEndNodes(t *testing.T) {
	raw := map[string]any{
		"plan": map[string]any{"title": "Start/End"},
		"nodes": []any{
			map[string]any{"task_id": "START", "node_type": "ACTION", "title": "start"},
			map[string]any{"task_id": "a", "node_type": "ACTION", "title": "A"},
			map[string]any{"task_id": "END", "node_type": "ACTION", "title": "end"},
		},
		"edges": []any{
			map[string]any{"from": "START", "to": "a"},
			map[string]any{"from": "a", "to": "END"},
		},
	}
	got := NormalizePlanJSON(raw, "Start/End", time.Now())
	require.NoError(t, ValidatePlanJSON(got))

	nodes, _ := asSlice(got["nodes"])
	for _, v := range nodes {
		n, _ := asMap(v)
		title, _ := asString(n["title"])
		assert.NotEqual(t, "start", title)
		assert.NotEqual(t, "end", title)
	}
}

func basePlan(rootTaskID string) map[string]any {
	return map[string]any{
		"plan_id": "plan-1", "title": "T", "root_task_id": rootTaskID, "owner_agent_id": "xiaobo",
	}
}

func TestValidatePlanJSON_RejectsMissingRootNode(t *testing.T) {
	planJSON := map[string]any{
		"plan":  basePlan("missing-root"),
		"nodes": []any{},
		"edges": []any{},
	}
	err := ValidatePlanJSON(planJSON)
	assert.ErrorIs(t, err, model.ErrRootUnreachable)
}

func TestValidatePlanJSON_RejectsRootNotGoal(t *testing.T) {
	planJSON := map[string]any{
		"plan": basePlan("root"),
		"nodes": []any{
			map[string]any{"task_id": "root", "node_type": "ACTION", "title": "Root"},
		},
		"edges": []any{},
	}
	err := ValidatePlanJSON(planJSON)
	assert.ErrorIs(t, err, model.ErrRootNotGoal)
}

func TestValidatePlanJSON_RejectsOrphanEdge(t *testing.T) {
	planJSON := map[string]any{
		"plan": basePlan("root"),
		"nodes": []any{
			map[string]any{"task_id": "root", "node_type": "GOAL", "title": "Root"},
		},
		"edges": []any{
			map[string]any{"edge_id": "e1", "from_task_id": "root", "to_task_id": "ghost", "edge_type": "DECOMPOSE"},
		},
	}
	err := ValidatePlanJSON(planJSON)
	assert.ErrorIs(t, err, model.ErrOrphanEdge)
}

func TestValidatePlanJSON_RejectsUnreachableNode(t *testing.T) {
	planJSON := map[string]any{
		"plan": basePlan("root"),
		"nodes": []any{
			map[string]any{"task_id": "root", "node_type": "GOAL", "title": "Root"},
			map[string]any{"task_id": "orphan", "node_type": "ACTION", "title": "Orphan"},
		},
		"edges": []any{},
	}
	err := ValidatePlanJSON(planJSON)
	assert.ErrorIs(t, err, model.ErrRootUnreachable)
}

func TestValidatePlanJSON_RejectsDependsOnCycle(t *testing.T) {
	planJSON := map[string]any{
		"plan": basePlan("root"),
		"nodes": []any{
			map[string]any{"task_id": "root", "node_type": "GOAL", "title": "Root"},
			map[string]any{"task_id": "a", "node_type": "ACTION", "title": "A"},
			map[string]any{"task_id": "b", "node_type": "ACTION", "title": "B"},
		},
		"edges": []any{
			map[string]any{"edge_id": "e1", "from_task_id": "root", "to_task_id": "a", "edge_type": "DECOMPOSE"},
			map[string]any{"edge_id": "e2", "from_task_id": "root", "to_task_id": "b", "edge_type": "DECOMPOSE"},
			map[string]any{"edge_id": "e3", "from_task_id": "a", "to_task_id": "b", "edge_type": "DEPENDS_ON"},
			map[string]any{"edge_id": "e4", "from_task_id": "b", "to_task_id": "a", "edge_type": "DEPENDS_ON"},
		},
	}
	err := ValidatePlanJSON(planJSON)
	assert.ErrorIs(t, err, model.ErrCyclicDependsOn)
}

func TestValidatePlanJSON_AcceptsWellFormedPlan(t *testing.T) {
	planJSON := map[string]any{
		"plan": basePlan("root"),
		"nodes": []any{
			map[string]any{"task_id": "root", "node_type": "GOAL", "title": "Root"},
			map[string]any{"task_id": "a", "node_type": "ACTION", "title": "A"},
			map[string]any{"task_id": "b", "node_type": "ACTION", "title": "B"},
		},
		"edges": []any{
			map[string]any{"edge_id": "e1", "from_task_id": "root", "to_task_id": "a", "edge_type": "DECOMPOSE"},
			map[string]any{"edge_id": "e2", "from_task_id": "root", "to_task_id": "b", "edge_type": "DECOMPOSE"},
			map[string]any{"edge_id": "e3", "from_task_id": "a", "to_task_id": "b", "edge_type": "DEPENDS_ON"},
		},
	}
	assert.NoError(t, ValidatePlanJSON(planJSON))
}
