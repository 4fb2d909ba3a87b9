package doctor

import (
	"context"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// checkPlan runs the structural sweep of §4.10 over one plan's graph: a
// single reachable GOAL root, at least one ACTION leaf, no orphan edges, and
// status/node_type legality for every node.
func (d *Doctor) checkPlan(ctx context.Context, r *Report, planID string) {
	nodes, err := d.store.ListTaskNodes(ctx, planID)
	if err != nil {
		r.fail("PLAN_LOAD", fmt.Sprintf("could not load task nodes for plan %s: %v", planID, err))
		return
	}
	if len(nodes) == 0 {
		r.fail("PLAN_LOAD", fmt.Sprintf("plan %s has no task nodes", planID))
		return
	}
	edges, err := d.store.ListTaskEdges(ctx, planID)
	if err != nil {
		r.fail("PLAN_LOAD", fmt.Sprintf("could not load task edges for plan %s: %v", planID, err))
		return
	}

	byID := make(map[string]model.TaskNode, len(nodes))
	for _, n := range nodes {
		byID[n.TaskID] = n
	}

	d.checkRootIsGoal(r, nodes)
	d.checkHasAction(r, nodes)
	d.checkNoOrphanEdges(r, byID, edges)
	d.checkDecomposeReachability(r, nodes, edges)
	d.checkStatusLegality(r, nodes)

	if d.cfg.WorkflowMode == model.ModeV2 {
		d.checkV2Invariants(r, nodes)
	}
}

func (d *Doctor) checkRootIsGoal(r *Report, nodes []model.TaskNode) {
	var roots []model.TaskNode
	for _, n := range nodes {
		if n.NodeType == model.NodeGoal {
			roots = append(roots, n)
		}
	}
	if len(roots) == 0 {
		r.fail("PLAN_ROOT_GOAL", "plan has no GOAL node")
		return
	}
	if len(roots) > 1 {
		r.fail("PLAN_ROOT_GOAL", fmt.Sprintf("plan has %d GOAL nodes, expected exactly 1", len(roots)))
		return
	}
	r.ok("PLAN_ROOT_GOAL", "plan has exactly one GOAL node")
}

func (d *Doctor) checkHasAction(r *Report, nodes []model.TaskNode) {
	for _, n := range nodes {
		if n.NodeType == model.NodeAction {
			r.ok("PLAN_HAS_ACTION", "plan has at least one ACTION node")
			return
		}
	}
	r.fail("PLAN_HAS_ACTION", "plan has no ACTION node; nothing for the executor to do")
}

func (d *Doctor) checkNoOrphanEdges(r *Report, byID map[string]model.TaskNode, edges []model.TaskEdge) {
	var orphans []string
	for _, e := range edges {
		if _, ok := byID[e.FromTaskID]; !ok {
			orphans = append(orphans, e.EdgeID)
			continue
		}
		if _, ok := byID[e.ToTaskID]; !ok {
			orphans = append(orphans, e.EdgeID)
		}
	}
	if len(orphans) > 0 {
		r.fail("PLAN_NO_ORPHAN_EDGES", fmt.Sprintf("edges reference missing nodes: %v", orphans))
		return
	}
	r.ok("PLAN_NO_ORPHAN_EDGES", "every edge references an existing node on both ends")
}

// checkDecomposeReachability verifies every node is reachable from the GOAL
// root by DECOMPOSE edges (the same BFS contracts.ValidatePlanJSON runs at
// creation time, re-run here in case rows were hand-edited afterward).
func (d *Doctor) checkDecomposeReachability(r *Report, nodes []model.TaskNode, edges []model.TaskEdge) {
	var root string
	for _, n := range nodes {
		if n.NodeType == model.NodeGoal {
			root = n.TaskID
			break
		}
	}
	if root == "" {
		r.fail("PLAN_DECOMPOSE_REACHABLE", "no GOAL root to reach from")
		return
	}

	adj := make(map[string][]string)
	for _, e := range edges {
		if e.EdgeType == model.EdgeDecompose {
			adj[e.FromTaskID] = append(adj[e.FromTaskID], e.ToTaskID)
		}
	}

	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, n := range nodes {
		if !seen[n.TaskID] {
			unreachable = append(unreachable, n.TaskID)
		}
	}
	if len(unreachable) > 0 {
		r.fail("PLAN_DECOMPOSE_REACHABLE", fmt.Sprintf("nodes unreachable from root by DECOMPOSE edges: %v", unreachable))
		return
	}
	r.ok("PLAN_DECOMPOSE_REACHABLE", "every node is reachable from the root by DECOMPOSE edges")
}

func (d *Doctor) checkStatusLegality(r *Report, nodes []model.TaskNode) {
	var bad []string
	for _, n := range nodes {
		if err := model.ValidStatusForNodeType(n.Status, n.NodeType); err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", n.TaskID, err))
		}
	}
	if len(bad) > 0 {
		r.fail("PLAN_STATUS_LEGALITY", fmt.Sprintf("status/node_type mismatches: %v", bad))
		return
	}
	r.ok("PLAN_STATUS_LEGALITY", "every node's status is legal for its node_type")
}
