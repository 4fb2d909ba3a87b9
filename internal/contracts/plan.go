package contracts

import (
	"fmt"
	"strings"
	"time"

	"github.com/dagrunner/planengine/internal/model"
)

var edgeTypeAliases = map[string]string{
	"DEPEND": "DEPENDS_ON", "DEPENDS": "DEPENDS_ON", "DEPEND_ON": "DEPENDS_ON",
	"DEPENDS-ON": "DEPENDS_ON", "DEPENDS ON": "DEPENDS_ON", "REQUIRES": "DEPENDS_ON",
	"PREREQ": "DEPENDS_ON", "PREREQUISITE": "DEPENDS_ON",
	"DECOMPOSITION": "DECOMPOSE", "BREAKDOWN": "DECOMPOSE", "CHILD_OF": "DECOMPOSE",
	"ALT": "ALTERNATIVE", "ALTERNATE": "ALTERNATIVE",
}

var requirementKindAliases = map[string]string{
	"FILES": "FILE", "DOC": "FILE", "DOCS": "FILE", "DOCUMENT": "FILE", "DOCUMENTS": "FILE",
	"CONFIRM": "CONFIRMATION",
	"SKILL": "SKILL_OUTPUT", "SKILL_RESULT": "SKILL_OUTPUT", "SKILL_ARTIFACT": "SKILL_OUTPUT",
}

// NormalizePlanJSON repairs a raw plan_json payload into the strict
// plan_json_v1 shape validated by ValidatePlanJSON: it accepts flat or
// nested plan fields, aliases node/edge/requirement key names, maps
// non-UUID ids to stable UUIDs, rewrites synthetic START/END nodes, and
// synthesizes a root DECOMPOSE tree when the model omitted edges entirely.
// Grounded on normalize_plan_json.
func NormalizePlanJSON(planJSON map[string]any, topTask string, now time.Time) map[string]any {
	if planJSON == nil {
		return map[string]any{"plan": map[string]any{}, "nodes": []any{}, "edges": []any{}, "requirements": []any{}}
	}

	plan, ok := asMap(planJSON["plan"])
	if !ok {
		plan = map[string]any{}
		normalizeKeyAliases(plan, map[string][]string{
			"plan_id": {"id"}, "title": {"name"}, "owner_agent_id": {"owner", "agent"},
			"root_task_id": {"root", "root_id"}, "created_at": {"ts", "created", "createdAt"},
			"constraints": {"constraints_json", "constraint"},
		}, true)
		normalizeKeyAliases(plan, map[string][]string{
			"plan_id": {"plan_id", "planId"}, "title": {"title"}, "owner_agent_id": {"owner_agent_id"},
			"root_task_id": {"root_task_id"}, "created_at": {"created_at"}, "constraints": {"constraints"},
		}, true)
		for k, v := range planJSON {
			if _, exists := plan[k]; !exists {
				if k == "plan_id" || k == "title" || k == "owner_agent_id" || k == "root_task_id" || k == "created_at" || k == "constraints" {
					plan[k] = v
				}
			}
		}
		planJSON["plan"] = plan
	}

	title := nonEmptyString(plan["title"])
	if title == "" {
		title = cleanTopTaskForGoal(topTask)
		if len(title) > 120 {
			title = title[:120]
		}
		if title == "" {
			title = "Untitled Plan"
		}
	}
	plan["title"] = title

	if !isUUID(plan["plan_id"]) {
		plan["plan_id"] = newUUID()
	}
	if !isUUID(plan["root_task_id"]) {
		plan["root_task_id"] = newUUID()
	}
	if !isISO8601(plan["created_at"]) {
		plan["created_at"] = now.UTC().Format(time.RFC3339)
	}
	if owner := nonEmptyString(plan["owner_agent_id"]); !in(allowedAgents, owner) {
		plan["owner_agent_id"] = "xiaobo"
	}
	if _, ok := asMap(plan["constraints"]); !ok {
		plan["constraints"] = map[string]any{"deadline": nil, "priority": "HIGH"}
	}

	nodes := ensureListContainer(planJSON, "nodes", []string{"nodes", "tasks", "task_nodes", "items"})
	edges := ensureListContainer(planJSON, "edges", []string{"edges", "links", "deps", "dependencies", "task_edges"})
	reqs := ensureListContainer(planJSON, "requirements", []string{"requirements", "inputs", "input_requirements", "requirements_list"})

	idMap := map[string]string{}
	mapID := func(v any) string {
		s, ok := asString(v)
		if !ok || s == "" {
			return newUUID()
		}
		if isUUID(s) {
			return s
		}
		if _, ok := idMap[s]; !ok {
			idMap[s] = newUUID()
		}
		return idMap[s]
	}

	planID := plan["plan_id"].(string)
	rootTaskID := plan["root_task_id"].(string)

	for _, n := range nodes {
		normalizeKeyAliases(n, map[string][]string{
			"task_id": {"id", "taskId", "node_id", "nodeId"}, "title": {"name", "label"},
			"node_type": {"type", "kind"}, "owner_agent_id": {"owner", "agent"}, "priority": {"prio"},
			"goal_statement": {"goal", "objective"}, "rationale": {"reason", "why"}, "tags": {"labels"},
		}, false)
	}
	for _, e := range edges {
		normalizeKeyAliases(e, map[string][]string{
			"edge_id": {"id"}, "from_task_id": {"from", "from_id", "source", "src", "parent_id"},
			"to_task_id": {"to", "to_id", "target", "tgt", "child_id"},
			"edge_type":  {"type", "relation", "relation_type", "kind"}, "metadata": {"meta"},
		}, false)
	}

	for _, n := range nodes {
		n["task_id"] = mapID(n["task_id"])
		n["plan_id"] = planID
	}
	for _, e := range edges {
		e["edge_id"] = mapID(e["edge_id"])
		e["plan_id"] = planID
		e["from_task_id"] = mapID(e["from_task_id"])
		e["to_task_id"] = mapID(e["to_task_id"])
	}
	for _, r := range reqs {
		r["requirement_id"] = mapID(r["requirement_id"])
		r["task_id"] = mapID(r["task_id"])
	}

	startIDs, endIDs := map[string]bool{}, map[string]bool{}
	for k, v := range idMap {
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "START", "BEGIN":
			startIDs[v] = true
		case "END", "FINISH", "STOP":
			endIDs[v] = true
		}
	}
	if len(startIDs) > 0 || len(endIDs) > 0 {
		var kept []map[string]any
		for _, e := range edges {
			to, _ := asString(e["to_task_id"])
			if endIDs[to] {
				continue
			}
			from, _ := asString(e["from_task_id"])
			if startIDs[from] {
				e["from_task_id"] = rootTaskID
				e["edge_type"] = "DECOMPOSE"
				meta, ok := asMap(e["metadata"])
				if !ok {
					meta = map[string]any{}
					e["metadata"] = meta
				}
				meta["and_or"] = "AND"
			}
			kept = append(kept, e)
		}
		edges = kept
		planJSON["edges"] = toAnySlice(edges)
	}

	nodeByID := map[string]map[string]any{}
	for _, n := range nodes {
		if id, ok := asString(n["task_id"]); ok {
			nodeByID[id] = n
		}
	}
	ensureNode := func(taskID string, isRoot bool) {
		if taskID == "" {
			return
		}
		if _, ok := nodeByID[taskID]; ok {
			return
		}
		var goalStatement any
		if isRoot {
			goalStatement = cleanTopTaskForGoal(topTask)
		}
		title := fmt.Sprintf("AUTO: missing node %s", shortID(taskID))
		if isRoot {
			title = "Root Task"
		}
		nodeType := "ACTION"
		if isRoot {
			nodeType = "GOAL"
		}
		n := map[string]any{
			"task_id": taskID, "plan_id": planID, "node_type": nodeType, "title": title,
			"goal_statement": goalStatement, "rationale": "Autocreated placeholder node for referential integrity.",
			"owner_agent_id": "xiaobo", "priority": 0, "tags": []string{"autofix", "placeholder"},
		}
		nodes = append(nodes, n)
		nodeByID[taskID] = n
	}
	ensureNode(rootTaskID, true)
	for _, e := range edges {
		from, _ := asString(e["from_task_id"])
		to, _ := asString(e["to_task_id"])
		ensureNode(from, false)
		ensureNode(to, false)
	}
	for _, r := range reqs {
		tid, _ := asString(r["task_id"])
		ensureNode(tid, false)
	}

	if len(startIDs) > 0 || len(endIDs) > 0 {
		drop := map[string]bool{}
		for id := range startIDs {
			drop[id] = true
		}
		for id := range endIDs {
			drop[id] = true
		}
		var kept []map[string]any
		for _, n := range nodes {
			id, _ := asString(n["task_id"])
			if !drop[id] {
				kept = append(kept, n)
			}
		}
		nodes = kept
		nodeByID = map[string]map[string]any{}
		for _, n := range nodes {
			if id, ok := asString(n["task_id"]); ok {
				nodeByID[id] = n
			}
		}
	}

	for idx, n := range nodes {
		id, _ := asString(n["task_id"])
		nodeType := strings.ToUpper(nonEmptyString(n["node_type"]))
		if !in(allowedNodeTypes, nodeType) {
			if id == rootTaskID {
				nodeType = "GOAL"
			} else {
				nodeType = "ACTION"
			}
		}
		n["node_type"] = nodeType
		if nonEmptyString(n["title"]) == "" {
			n["title"] = fmt.Sprintf("Task %d", idx+1)
		}
		if id == rootTaskID && nodeType == "GOAL" {
			if nonEmptyString(n["goal_statement"]) == "" {
				n["goal_statement"] = cleanTopTaskForGoal(topTask)
			}
		}
		if owner := nonEmptyString(n["owner_agent_id"]); !in(allowedAgents, owner) {
			n["owner_agent_id"] = "xiaobo"
		}
		n["priority"] = coerceInt(n["priority"], 0)
		if tags, ok := stringSlice(n["tags"]); !ok {
			n["tags"] = []string{}
		} else {
			n["tags"] = tags
		}
	}

	for _, e := range edges {
		et := strings.ToUpper(nonEmptyString(e["edge_type"]))
		if alias, ok := edgeTypeAliases[et]; ok {
			et = alias
		}
		if !in(allowedEdgeTypes, et) {
			et = "DEPENDS_ON"
		}
		e["edge_type"] = et
		meta, ok := asMap(e["metadata"])
		if !ok {
			meta = map[string]any{}
			e["metadata"] = meta
		}
		if et == "DECOMPOSE" {
			ao := strings.ToUpper(fallback(nonEmptyString(meta["and_or"]), "AND"))
			if ao != "AND" && ao != "OR" {
				ao = "AND"
			}
			meta["and_or"] = ao
		}
		if et == "ALTERNATIVE" {
			if nonEmptyString(meta["group_id"]) == "" {
				meta["group_id"] = "AUTO_GROUP_1"
			}
		}
	}

	for idx, r := range reqs {
		if nonEmptyString(r["name"]) == "" {
			r["name"] = fmt.Sprintf("requirement_%d", idx+1)
		}
		kind := strings.ToUpper(nonEmptyString(r["kind"]))
		if alias, ok := requirementKindAliases[kind]; ok {
			kind = alias
		}
		if !in(allowedRequirementKinds, kind) {
			kind = "FILE"
		}
		r["kind"] = kind
		source := strings.ToUpper(nonEmptyString(r["source"]))
		if !in(allowedRequirementSources, source) {
			source = "USER"
		}
		r["source"] = source
		r["required"] = coerceBoolInt(r["required"], 1) == 1
		minCount := coerceInt(r["min_count"], 1)
		if minCount < 1 {
			minCount = 1
		}
		r["min_count"] = minCount
		if allowed, ok := r["allowed_types"].(string); ok {
			r["allowed_types"] = []string{allowed}
		} else if types, ok := stringSlice(r["allowed_types"]); ok {
			r["allowed_types"] = types
		} else {
			r["allowed_types"] = []string{}
		}
		if kw, ok := stringSlice(r["filename_keywords"]); ok {
			r["filename_keywords"] = kw
		} else {
			r["filename_keywords"] = []string{}
		}
	}

	if len(edges) == 0 && len(nodes) > 1 {
		for _, n := range nodes {
			id, _ := asString(n["task_id"])
			if id == rootTaskID {
				continue
			}
			edges = append(edges, map[string]any{
				"edge_id": newUUID(), "plan_id": planID, "from_task_id": rootTaskID, "to_task_id": id,
				"edge_type": "DECOMPOSE", "metadata": map[string]any{"and_or": "AND"},
			})
		}
	}
	hasRootDecompose := false
	for _, e := range edges {
		from, _ := asString(e["from_task_id"])
		if e["edge_type"] == "DECOMPOSE" && from == rootTaskID {
			hasRootDecompose = true
			break
		}
	}
	if !hasRootDecompose && len(nodes) > 1 {
		existing := map[[3]string]bool{}
		for _, e := range edges {
			from, _ := asString(e["from_task_id"])
			to, _ := asString(e["to_task_id"])
			et, _ := asString(e["edge_type"])
			existing[[3]string{from, to, et}] = true
		}
		for _, n := range nodes {
			tid, _ := asString(n["task_id"])
			if tid == rootTaskID {
				continue
			}
			key := [3]string{rootTaskID, tid, "DECOMPOSE"}
			if existing[key] {
				continue
			}
			edges = append(edges, map[string]any{
				"edge_id": newUUID(), "plan_id": planID, "from_task_id": rootTaskID, "to_task_id": tid,
				"edge_type": "DECOMPOSE", "metadata": map[string]any{"and_or": "AND"},
			})
		}
	}

	planJSON["nodes"] = toAnySlice(nodes)
	planJSON["edges"] = toAnySlice(edges)
	planJSON["requirements"] = toAnySlice(reqs)
	return planJSON
}

func ensureListContainer(planJSON map[string]any, dstKey string, srcKeys []string) []map[string]any {
	raw, ok := asSlice(planJSON[dstKey])
	if !ok {
		v, _ := firstPresent(planJSON, srcKeys)
		raw, _ = v.([]any)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := asMap(v); ok {
			out = append(out, m)
		}
	}
	planJSON[dstKey] = toAnySlice(out)
	return out
}

func toAnySlice(ms []map[string]any) []any {
	out := make([]any, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ValidatePlanJSON performs the structural checks a normalized plan must
// pass before the engine will persist it: root is a GOAL node, every edge
// endpoint is a known node, every node is DECOMPOSE-reachable from root,
// and DEPENDS_ON edges form no cycle.
func ValidatePlanJSON(planJSON map[string]any) error {
	if err := validateAgainstSchema("plan_json_v1.json", planJSON); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	plan, ok := asMap(planJSON["plan"])
	if !ok {
		return fmt.Errorf("%w: plan must be object", model.ErrInvalidInput)
	}
	rootTaskID, ok := asString(plan["root_task_id"])
	if !ok || rootTaskID == "" {
		return fmt.Errorf("%w: plan.root_task_id required", model.ErrInvalidInput)
	}

	nodesRaw, _ := asSlice(planJSON["nodes"])
	edgesRaw, _ := asSlice(planJSON["edges"])

	nodeByID := map[string]map[string]any{}
	for _, v := range nodesRaw {
		n, ok := asMap(v)
		if !ok {
			continue
		}
		id, _ := asString(n["task_id"])
		nodeByID[id] = n
	}
	root, ok := nodeByID[rootTaskID]
	if !ok {
		return fmt.Errorf("%w: root_task_id %s has no node", model.ErrRootUnreachable, rootTaskID)
	}
	if root["node_type"] != "GOAL" {
		return fmt.Errorf("%w: got %v", model.ErrRootNotGoal, root["node_type"])
	}

	decomposeAdj := map[string][]string{}
	dependsAdj := map[string][]string{}
	for _, v := range edgesRaw {
		e, ok := asMap(v)
		if !ok {
			continue
		}
		from, _ := asString(e["from_task_id"])
		to, _ := asString(e["to_task_id"])
		if _, ok := nodeByID[from]; !ok {
			return fmt.Errorf("%w: edge from_task_id %s", model.ErrOrphanEdge, from)
		}
		if _, ok := nodeByID[to]; !ok {
			return fmt.Errorf("%w: edge to_task_id %s", model.ErrOrphanEdge, to)
		}
		switch e["edge_type"] {
		case "DECOMPOSE":
			decomposeAdj[from] = append(decomposeAdj[from], to)
		case "DEPENDS_ON":
			dependsAdj[from] = append(dependsAdj[from], to)
		}
	}

	reachable := map[string]bool{rootTaskID: true}
	queue := []string{rootTaskID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range decomposeAdj[cur] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range nodeByID {
		if !reachable[id] {
			return fmt.Errorf("%w: task %s", model.ErrRootUnreachable, id)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(string) error
	visit = func(n string) error {
		color[n] = gray
		for _, next := range dependsAdj[n] {
			switch color[next] {
			case gray:
				return fmt.Errorf("%w: at %s", model.ErrCyclicDependsOn, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}
	for id := range nodeByID {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
