package contracts

import (
	"fmt"
	"strings"
)

// NormalizeXiaoboAction repairs a raw executor payload into xiaobo_action_v1
// shape: unwraps common envelope keys, fills schema_version/task_id
// defaults, and coerces needs_input/artifact sub-objects into their strict
// forms. Grounded on normalize_xiaobo_action.
func NormalizeXiaoboAction(obj map[string]any, taskID string) map[string]any {
	if obj == nil {
		obj = map[string]any{}
	}

	if _, has := obj["result_type"]; !has {
		for _, k := range []string{"action", "result", "output", "data", "payload", "response"} {
			if v, ok := asMap(obj[k]); ok {
				if _, hasRT := v["result_type"]; hasRT {
					obj = v
					break
				}
				if _, hasArt := v["artifact"]; hasArt {
					obj = v
					break
				}
				if _, hasNeeds := v["needs_input"]; hasNeeds {
					obj = v
					break
				}
				if _, hasErr := v["error"]; hasErr {
					obj = v
					break
				}
			}
		}
	}

	normalizeKeyAliases(obj, map[string][]string{
		"schema_version": {"schema", "version"},
		"task_id":        {"id", "taskId"},
	}, false)

	obj["schema_version"] = normalizeActionSchemaVersion(nonEmptyString(obj["schema_version"]))

	if nonEmptyString(obj["task_id"]) == "" {
		obj["task_id"] = taskID
	}

	if rt, ok := asString(obj["result_type"]); ok {
		obj["result_type"] = strings.ToUpper(strings.TrimSpace(rt))
	}

	if obj["result_type"] == "NEEDS_INPUT" {
		normalizeNeedsInput(obj)
	}
	if obj["result_type"] == "ARTIFACT" {
		if art, ok := asMap(obj["artifact"]); ok {
			if fmtStr, ok := asString(art["format"]); ok {
				art["format"] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fmtStr)), ".")
			}
		}
	}
	return obj
}

func normalizeActionSchemaVersion(sv string) string {
	if sv == "" {
		return "xiaobo_action_v1"
	}
	lower := strings.ToLower(sv)
	switch lower {
	case "xiaobo_action", "xiaobo_action_v0", "action_v1", "xiaobo_action_v1.0":
		return "xiaobo_action_v1"
	}
	if strings.HasPrefix(lower, "xiaobo_action") {
		return "xiaobo_action_v1"
	}
	return sv
}

func normalizeNeedsInput(obj map[string]any) {
	needs, ok := asMap(obj["needs_input"])
	if !ok {
		needs = map[string]any{}
		obj["needs_input"] = needs
	}
	if docs, ok := asSlice(needs["required_docs"]); !ok || len(docs) == 0 {
		var normalizedDocs []any

		if missing, ok := asSlice(obj["missing_inputs"]); ok {
			for _, it := range missing {
				item, ok := asMap(it)
				if !ok {
					continue
				}
				name := nonEmptyString(item["name"])
				desc := nonEmptyString(item["description"])
				if desc == "" {
					desc = nonEmptyString(item["reason"])
				}
				acceptedTypes := []any{}
				if types, ok := stringSlice(item["accepted_types"]); ok {
					for _, t := range types {
						acceptedTypes = append(acceptedTypes, t)
					}
				} else if s, ok := asString(item["type"]); ok && strings.TrimSpace(s) != "" {
					acceptedTypes = []any{strings.TrimSpace(s)}
				}
				if name != "" {
					normalizedDocs = append(normalizedDocs, map[string]any{
						"name": name, "description": fallback(desc, name), "accepted_types": acceptedTypes,
					})
				}
			}
		}

		reqCtx := needs["required_context"]
		if reqCtx == nil {
			reqCtx = obj["required_context"]
		}
		if ctxItems, ok := asSlice(reqCtx); ok {
			for _, it := range ctxItems {
				if s, ok := asString(it); ok && strings.TrimSpace(s) != "" {
					s = strings.TrimSpace(s)
					normalizedDocs = append(normalizedDocs, map[string]any{
						"name": s, "description": s, "accepted_types": []any{},
					})
				}
			}
		}

		if len(normalizedDocs) == 0 {
			reason := nonEmptyString(needs["reason"])
			if reason == "" {
				reason = nonEmptyString(obj["justification"])
			}
			normalizedDocs = []any{map[string]any{
				"name": "clarification", "description": fallback(reason, "Please provide missing inputs."), "accepted_types": []any{},
			}}
		}
		needs["required_docs"] = normalizedDocs
	}
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ValidateXiaoboAction strictly checks a normalized action payload.
// Grounded on validate_xiaobo_action.
func ValidateXiaoboAction(obj map[string]any) error {
	if err := validateAgainstSchema("xiaobo_action_v1.json", obj); err != nil {
		return err
	}
	for _, k := range []string{"schema_version", "task_id", "result_type"} {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing key: %s", k)
		}
	}
	if obj["schema_version"] != "xiaobo_action_v1" {
		return fmt.Errorf("schema_version mismatch (got %v)", obj["schema_version"])
	}
	if _, ok := asString(obj["task_id"]); !ok {
		return fmt.Errorf("task_id must be string")
	}
	resultType, _ := asString(obj["result_type"])
	switch resultType {
	case "NEEDS_INPUT", "ARTIFACT", "NOOP", "ERROR":
	default:
		return fmt.Errorf("invalid result_type")
	}

	switch resultType {
	case "NEEDS_INPUT":
		needs, ok := asMap(obj["needs_input"])
		if !ok {
			return fmt.Errorf("needs_input must be object")
		}
		docs, ok := asSlice(needs["required_docs"])
		if !ok || len(docs) == 0 {
			return fmt.Errorf("needs_input.required_docs must be non-empty array")
		}
		for _, d := range docs {
			doc, ok := asMap(d)
			if !ok {
				return fmt.Errorf("required_docs item must be object")
			}
			if nonEmptyString(doc["name"]) == "" || nonEmptyString(doc["description"]) == "" {
				return fmt.Errorf("required_docs.name/description must be string")
			}
			if accepted, ok := doc["accepted_types"]; ok && accepted != nil {
				if _, ok := stringSlice(accepted); !ok {
					return fmt.Errorf("required_docs.accepted_types must be string array")
				}
			}
		}
	case "ARTIFACT":
		art, ok := asMap(obj["artifact"])
		if !ok {
			return fmt.Errorf("artifact must be object")
		}
		for _, k := range []string{"name", "format", "content"} {
			if nonEmptyString(art[k]) == "" {
				return fmt.Errorf("artifact.%s is required", k)
			}
		}
		if fmtStr, _ := asString(art["format"]); !in(allowedArtifactFormats, fmtStr) {
			return fmt.Errorf("artifact.format must be md|txt|json|html|css|js")
		}
	case "ERROR":
		errObj, ok := asMap(obj["error"])
		if !ok {
			return fmt.Errorf("error must be object")
		}
		if nonEmptyString(errObj["code"]) == "" || nonEmptyString(errObj["message"]) == "" {
			return fmt.Errorf("error.code/error.message must be string")
		}
	}
	return nil
}
