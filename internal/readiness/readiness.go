// Package readiness recomputes task_nodes.status and active_branch after
// any event that could change what's runnable: evidence bound, a task
// finished, a plan imported. Grounded on original_source/core/readiness.py.
package readiness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
)

// FailedAutoResetReady controls whether a FAILED task is swept back to READY
// once its deps/requirements are satisfied again, mirroring
// config.FAILED_AUTO_RESET_READY. The engine leaves this false by default
// (§4.6): a FAILED task only leaves FAILED via explicit operator action.
var FailedAutoResetReady = false

type Recomputer struct {
	store *store.Store
}

func New(s *store.Store) *Recomputer { return &Recomputer{store: s} }

// Recompute runs one full readiness sweep over planID and returns how many
// task_nodes changed status. The engine's single-writer connection (§5)
// makes the sweep effectively atomic without an explicit surrounding
// transaction. Grounded on recompute_readiness_for_plan.
func (r *Recomputer) Recompute(ctx context.Context, planID string) (int, error) {
	nodes, err := r.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("list task nodes: %w", err)
	}
	edges, err := r.store.ListTaskEdges(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("list task edges: %w", err)
	}
	nodeByID := map[string]*model.TaskNode{}
	for i := range nodes {
		nodeByID[nodes[i].TaskID] = &nodes[i]
	}

	if err := r.applyAlternativeSelection(ctx, planID, nodeByID, edges); err != nil {
		return 0, err
	}
	if err := r.propagateInactive(ctx, planID, nodeByID, edges); err != nil {
		return 0, err
	}

	n := 0
	for _, node := range nodeByID {
		if !node.ActiveBranch {
			continue
		}
		switch node.Status {
		case model.StatusDone, model.StatusAbandoned, model.StatusInProgress, model.StatusReadyToCheck:
			continue
		}
		if node.Status == model.StatusFailed && !FailedAutoResetReady {
			continue
		}
		if node.Status == model.StatusToBeModify {
			continue
		}

		depsOK, err := r.depsSatisfied(ctx, planID, node.TaskID, edges, nodeByID)
		if err != nil {
			return 0, err
		}
		reqOK, missing, err := r.requirementsSatisfied(ctx, node.TaskID)
		if err != nil {
			return 0, err
		}

		switch {
		case depsOK && reqOK:
			if node.Status != model.StatusReady {
				if err := r.setStatus(ctx, planID, node.TaskID, model.StatusReady, nil); err != nil {
					return 0, err
				}
				node.Status = model.StatusReady
				n++
			}
		default:
			if node.Status == model.StatusReady {
				if err := r.setStatus(ctx, planID, node.TaskID, model.StatusPending, nil); err != nil {
					return 0, err
				}
				node.Status = model.StatusPending
				n++
			}
			if depsOK && !reqOK && node.Status == model.StatusPending {
				reason := model.WaitingInput
				if err := r.setStatus(ctx, planID, node.TaskID, model.StatusBlocked, &reason); err != nil {
					return 0, err
				}
				node.Status = model.StatusBlocked
				node.BlockedReason = &reason
				n++
			}
			if node.Status == model.StatusBlocked && node.BlockedReason != nil && *node.BlockedReason == model.WaitingInput && reqOK {
				if err := r.setStatus(ctx, planID, node.TaskID, model.StatusReady, nil); err != nil {
					return 0, err
				}
				node.Status = model.StatusReady
				n++
			}
			if !reqOK {
				if err := r.store.AppendEvent(ctx, nil, model.TaskEvent{
					EventID: uuid.NewString(), PlanID: planID, TaskID: &node.TaskID, EventType: "WAITING_INPUT",
					Payload: map[string]any{"missing_requirements": missing}, CreatedAt: time.Now().UTC(),
				}); err != nil {
					return 0, fmt.Errorf("emit waiting_input: %w", err)
				}
			}
		}
	}

	if err := r.aggregateGoals(ctx, planID, nodeByID, edges, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Recomputer) depsSatisfied(ctx context.Context, planID, taskID string, edges []model.TaskEdge, nodeByID map[string]*model.TaskNode) (bool, error) {
	for _, e := range edges {
		if e.EdgeType != model.EdgeDependsOn || e.ToTaskID != taskID {
			continue
		}
		dep, ok := nodeByID[e.FromTaskID]
		if !ok || dep.Status != model.StatusDone {
			return false, nil
		}
	}
	return true, nil
}

func (r *Recomputer) requirementsSatisfied(ctx context.Context, taskID string) (bool, []map[string]any, error) {
	reqs, err := r.store.ListRequirementsForTask(ctx, taskID)
	if err != nil {
		return false, nil, fmt.Errorf("list requirements for task: %w", err)
	}
	var missing []map[string]any
	for _, req := range reqs {
		if !req.Required {
			continue
		}
		count, err := r.store.EvidenceCount(ctx, req.RequirementID)
		if err != nil {
			return false, nil, fmt.Errorf("evidence count: %w", err)
		}
		if count < req.MinCount {
			missing = append(missing, map[string]any{
				"requirement_id": req.RequirementID, "name": req.Name,
				"min_count": req.MinCount, "have_count": count,
			})
		}
	}
	return len(missing) == 0, missing, nil
}

func (r *Recomputer) setStatus(ctx context.Context, planID, taskID string, status model.TaskStatus, reason *model.BlockedReason) error {
	now := time.Now().UTC()
	if err := r.store.SetTaskStatus(ctx, nil, taskID, status, reason, now.Format("2006-01-02T15:04:05.999999999Z07:00")); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	var reasonStr any
	if reason != nil {
		reasonStr = string(*reason)
	}
	return r.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, TaskID: &taskID, EventType: "STATUS_CHANGED",
		Payload: map[string]any{"status": string(status), "blocked_reason": reasonStr}, CreatedAt: now,
	})
}

func (r *Recomputer) setActiveBranch(ctx context.Context, planID, taskID string, active bool, reason string) error {
	now := time.Now().UTC()
	if err := r.store.SetActiveBranch(ctx, nil, taskID, active, now.Format("2006-01-02T15:04:05.999999999Z07:00")); err != nil {
		return fmt.Errorf("set active branch: %w", err)
	}
	return r.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, TaskID: &taskID, EventType: "BRANCH_CHANGED",
		Payload: map[string]any{"active_branch": active, "reason": reason}, CreatedAt: now,
	})
}

type altGroupKey struct {
	parentID string
	groupID  string
}

func (r *Recomputer) applyAlternativeSelection(ctx context.Context, planID string, nodeByID map[string]*model.TaskNode, edges []model.TaskEdge) error {
	groups := map[altGroupKey][]string{}
	for _, e := range edges {
		if e.EdgeType != model.EdgeAlternative || e.GroupID == nil {
			continue
		}
		key := altGroupKey{parentID: e.FromTaskID, groupID: *e.GroupID}
		groups[key] = append(groups[key], e.ToTaskID)
	}
	if len(groups) == 0 {
		return nil
	}

	keys := make([]altGroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].parentID != keys[j].parentID {
			return keys[i].parentID < keys[j].parentID
		}
		return keys[i].groupID < keys[j].groupID
	})

	for _, key := range keys {
		childIDs := groups[key]
		var doneChildren []string
		for _, cid := range childIDs {
			if n, ok := nodeByID[cid]; ok && n.Status == model.StatusDone {
				doneChildren = append(doneChildren, cid)
			}
		}
		if len(doneChildren) > 0 {
			winner := doneChildren[0]
			for _, cid := range childIDs {
				n, ok := nodeByID[cid]
				if !ok {
					continue
				}
				if cid == winner {
					if !n.ActiveBranch {
						if err := r.setActiveBranch(ctx, planID, cid, true, "alternative_winner:"+key.groupID); err != nil {
							return err
						}
						n.ActiveBranch = true
					}
					continue
				}
				if n.ActiveBranch {
					if err := r.setActiveBranch(ctx, planID, cid, false, "alternative_loser:"+key.groupID); err != nil {
						return err
					}
					n.ActiveBranch = false
				}
				if n.Status != model.StatusDone && n.Status != model.StatusAbandoned {
					if err := r.setStatus(ctx, planID, cid, model.StatusAbandoned, nil); err != nil {
						return err
					}
					n.Status = model.StatusAbandoned
				}
			}
			continue
		}

		var active []string
		for _, cid := range childIDs {
			if n, ok := nodeByID[cid]; ok && n.ActiveBranch && n.Status != model.StatusAbandoned {
				active = append(active, cid)
			}
		}
		var keep string
		if len(active) == 1 {
			keep = active[0]
			n := nodeByID[keep]
			if n.Status == model.StatusFailed || (n.Status == model.StatusBlocked && n.BlockedReason != nil && *n.BlockedReason == model.WaitingExternal) {
				keep = ""
			}
		}

		type candidate struct {
			priority int
			attempts int
			taskID   string
		}
		var candidates []candidate
		for _, cid := range childIDs {
			n, ok := nodeByID[cid]
			if !ok || n.Status == model.StatusAbandoned {
				continue
			}
			candidates = append(candidates, candidate{priority: n.Priority, attempts: n.AttemptCount, taskID: cid})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].priority != candidates[j].priority {
				return candidates[i].priority > candidates[j].priority
			}
			if candidates[i].attempts != candidates[j].attempts {
				return candidates[i].attempts < candidates[j].attempts
			}
			return candidates[i].taskID > candidates[j].taskID
		})

		chosen := keep
		if chosen == "" && len(candidates) > 0 {
			chosen = candidates[0].taskID
		}
		if chosen == "" {
			continue
		}

		for _, cid := range childIDs {
			n, ok := nodeByID[cid]
			if !ok {
				continue
			}
			target := cid == chosen
			if n.ActiveBranch != target {
				if err := r.setActiveBranch(ctx, planID, cid, target, "alternative_select:"+key.groupID); err != nil {
					return err
				}
				n.ActiveBranch = target
			}
		}
	}
	return nil
}

// propagateInactive pushes active_branch=false down DECOMPOSE/DEPENDS_ON
// edges until the graph reaches a fixed point.
func (r *Recomputer) propagateInactive(ctx context.Context, planID string, nodeByID map[string]*model.TaskNode, edges []model.TaskEdge) error {
	changed := true
	for changed {
		changed = false
		for _, e := range edges {
			if e.EdgeType != model.EdgeDecompose && e.EdgeType != model.EdgeDependsOn {
				continue
			}
			from, ok1 := nodeByID[e.FromTaskID]
			to, ok2 := nodeByID[e.ToTaskID]
			if !ok1 || !ok2 {
				continue
			}
			if !from.ActiveBranch && to.ActiveBranch {
				if err := r.setActiveBranch(ctx, planID, to.TaskID, false, "propagate_inactive:"+string(e.EdgeType)); err != nil {
					return err
				}
				to.ActiveBranch = false
				changed = true
			}
		}
	}
	return nil
}

func (r *Recomputer) aggregateGoals(ctx context.Context, planID string, nodeByID map[string]*model.TaskNode, edges []model.TaskEdge, changed *int) error {
	childrenOf := map[string][]model.TaskEdge{}
	for _, e := range edges {
		if e.EdgeType == model.EdgeDecompose {
			childrenOf[e.FromTaskID] = append(childrenOf[e.FromTaskID], e)
		}
	}
	for _, node := range nodeByID {
		if node.NodeType != model.NodeGoal || node.Status == model.StatusDone || !node.ActiveBranch {
			continue
		}
		children := childrenOf[node.TaskID]
		if len(children) == 0 {
			continue
		}
		andOr := model.AndOrAnd
		for _, c := range children {
			if c.AndOr != nil && (*c.AndOr == model.AndOrAnd || *c.AndOr == model.AndOrOr) {
				andOr = *c.AndOr
				break
			}
		}
		doneCount, activeCount := 0, 0
		for _, c := range children {
			child, ok := nodeByID[c.ToTaskID]
			if !ok || !child.ActiveBranch {
				continue
			}
			activeCount++
			if child.Status == model.StatusDone {
				doneCount++
			}
		}
		complete := false
		if andOr == model.AndOrAnd {
			complete = activeCount > 0 && doneCount == activeCount
		} else {
			complete = doneCount >= 1
		}
		if complete {
			if err := r.setStatus(ctx, planID, node.TaskID, model.StatusDone, nil); err != nil {
				return err
			}
			node.Status = model.StatusDone
			*changed++
		}
	}
	return nil
}
