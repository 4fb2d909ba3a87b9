package contracts

import (
	"fmt"
	"time"

	"github.com/dagrunner/planengine/internal/model"
)

// PlanEntities is the typed view of a normalized plan_json_v1 payload, ready
// for Store.UpsertPlan/UpsertTaskNode/InsertTaskEdge/InsertRequirement.
type PlanEntities struct {
	Plan         model.Plan
	Nodes        []model.TaskNode
	Edges        []model.TaskEdge
	Requirements []model.InputRequirement
}

// ToPlanEntities converts a normalized (and already ValidatePlanJSON-passed)
// plan_json map into typed entities.
func ToPlanEntities(planJSON map[string]any, now time.Time) (*PlanEntities, error) {
	plan, ok := asMap(planJSON["plan"])
	if !ok {
		return nil, fmt.Errorf("plan must be object")
	}
	createdAt, err := time.Parse(time.RFC3339, nonEmptyString(plan["created_at"]))
	if err != nil {
		createdAt = now.UTC()
	}
	var deadline *time.Time
	if constraints, ok := asMap(plan["constraints"]); ok {
		if d, ok := asString(constraints["deadline"]); ok && d != "" {
			if t, err := time.Parse(time.RFC3339, d); err == nil {
				deadline = &t
			}
		}
	}
	priority := 0
	if constraints, ok := asMap(plan["constraints"]); ok {
		if p := constraints["priority"]; p != nil {
			switch p {
			case "HIGH":
				priority = 2
			case "MED", "MEDIUM":
				priority = 1
			case "LOW":
				priority = 0
			default:
				priority = coerceInt(p, 0)
			}
		}
	}

	out := &PlanEntities{
		Plan: model.Plan{
			PlanID:     plan["plan_id"].(string),
			Title:      plan["title"].(string),
			OwnerAgent: model.Agent(plan["owner_agent_id"].(string)),
			RootTaskID: plan["root_task_id"].(string),
			CreatedAt:  createdAt,
			Deadline:   deadline,
			Priority:   priority,
		},
	}

	nodesRaw, _ := asSlice(planJSON["nodes"])
	for _, v := range nodesRaw {
		n, _ := asMap(v)
		node := model.TaskNode{
			TaskID:     n["task_id"].(string),
			PlanID:     out.Plan.PlanID,
			NodeType:   model.NodeType(n["node_type"].(string)),
			Title:      n["title"].(string),
			OwnerAgent: model.Agent(nonEmptyString(n["owner_agent_id"])),
			Priority:   coerceInt(n["priority"], 0),
			Status:     model.StatusPending,
			ActiveBranch: true,
			CreatedAt:  now.UTC(),
			UpdatedAt:  now.UTC(),
		}
		out.Nodes = append(out.Nodes, node)
	}

	edgesRaw, _ := asSlice(planJSON["edges"])
	for _, v := range edgesRaw {
		e, _ := asMap(v)
		edge := model.TaskEdge{
			EdgeID:     e["edge_id"].(string),
			PlanID:     out.Plan.PlanID,
			FromTaskID: e["from_task_id"].(string),
			ToTaskID:   e["to_task_id"].(string),
			EdgeType:   model.EdgeType(e["edge_type"].(string)),
		}
		if meta, ok := asMap(e["metadata"]); ok {
			if ao, ok := asString(meta["and_or"]); ok && ao != "" {
				v := model.AndOr(ao)
				edge.AndOr = &v
			}
			if gid, ok := asString(meta["group_id"]); ok && gid != "" {
				edge.GroupID = &gid
			}
		}
		out.Edges = append(out.Edges, edge)
	}

	reqsRaw, _ := asSlice(planJSON["requirements"])
	for _, v := range reqsRaw {
		r, _ := asMap(v)
		req := model.InputRequirement{
			RequirementID: r["requirement_id"].(string),
			TaskID:        r["task_id"].(string),
			Name:          r["name"].(string),
			Kind:          model.RequirementKind(r["kind"].(string)),
			Required:      r["required"].(bool),
			MinCount:      r["min_count"].(int),
			Source:        model.RequirementSource(r["source"].(string)),
		}
		if at, ok := r["allowed_types"].([]string); ok {
			req.AllowedTypes = at
		}
		if fk, ok := r["filename_keywords"].([]string); ok {
			req.FilenameKeywords = fk
		}
		out.Requirements = append(out.Requirements, req)
	}

	return out, nil
}
