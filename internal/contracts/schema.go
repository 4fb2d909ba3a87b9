package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// The hand-written Validate* functions above check graph structure and
// cross-field semantics a generic schema can't express (DAG reachability,
// DECOMPOSE/DEPENDS_ON cycle detection, result_type-conditional required
// fields). compiledSchemas runs underneath them as a second, independent
// pass over plain shape: types, enums, required top-level keys. An LM
// response that slips past one kind of check still has to pass the other.
var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

const planJSONSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["plan", "nodes", "edges"],
  "properties": {
    "plan": {
      "type": "object",
      "required": ["plan_id", "title", "root_task_id", "owner_agent_id"],
      "properties": {
        "plan_id": {"type": "string", "minLength": 1},
        "title": {"type": "string", "minLength": 1},
        "root_task_id": {"type": "string", "minLength": 1},
        "owner_agent_id": {"type": "string", "minLength": 1}
      }
    },
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task_id", "node_type", "title"],
        "properties": {
          "task_id": {"type": "string", "minLength": 1},
          "node_type": {"enum": ["GOAL", "ACTION", "CHECK"]},
          "title": {"type": "string"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["edge_id", "from_task_id", "to_task_id", "edge_type"],
        "properties": {
          "edge_id": {"type": "string", "minLength": 1},
          "from_task_id": {"type": "string", "minLength": 1},
          "to_task_id": {"type": "string", "minLength": 1},
          "edge_type": {"enum": ["DECOMPOSE", "DEPENDS_ON", "ALTERNATIVE"]}
        }
      }
    }
  }
}`

const xiaoboActionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "task_id", "result_type"],
  "properties": {
    "schema_version": {"const": "xiaobo_action_v1"},
    "task_id": {"type": "string", "minLength": 1},
    "result_type": {"enum": ["NEEDS_INPUT", "ARTIFACT", "NOOP", "ERROR"]}
  }
}`

const xiaojingReviewSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "task_id", "review_target", "total_score", "action_required"],
  "properties": {
    "schema_version": {"const": "xiaojing_review_v1"},
    "task_id": {"type": "string", "minLength": 1},
    "review_target": {"type": "string", "minLength": 1},
    "total_score": {"type": "integer", "minimum": 0, "maximum": 100},
    "action_required": {"enum": ["APPROVE", "MODIFY", "REQUEST_EXTERNAL_INPUT"]}
  }
}`

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		sources := map[string]string{
			"plan_json_v1.json":       planJSONSchema,
			"xiaobo_action_v1.json":   xiaoboActionSchema,
			"xiaojing_review_v1.json": xiaojingReviewSchema,
		}
		for name, src := range sources {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				schemaErr = fmt.Errorf("unmarshal schema %s: %w", name, err)
				return
			}
			if err := c.AddResource(name, doc); err != nil {
				schemaErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}
		schemas = map[string]*jsonschema.Schema{}
		for name := range sources {
			sch, err := c.Compile(name)
			if err != nil {
				schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			schemas[name] = sch
		}
	})
	return schemas, schemaErr
}

// validateAgainstSchema runs obj through the named compiled schema. Schema
// compilation is fixed at init and never fails at runtime for well-formed
// embedded schemas, so a loadSchemas error here indicates a programming
// mistake, not bad LM output; callers treat it the same as a validation
// failure since either way the contract can't be trusted.
func validateAgainstSchema(name string, obj map[string]any) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	sch, ok := all[name]
	if !ok {
		return fmt.Errorf("no compiled schema named %s", name)
	}
	// obj holds Go-native ints/bools produced by the normalize pass, not the
	// float64/string/map/[]any/nil set json.Unmarshal would have produced;
	// round-trip through JSON so the schema sees exactly that set.
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal %s for schema check: %w", name, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("unmarshal %s for schema check: %w", name, err)
	}
	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}
	return nil
}
