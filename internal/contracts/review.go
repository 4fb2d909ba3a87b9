package contracts

import (
	"fmt"
	"strings"
)

var reviewPriorityAliases = map[string]string{
	"H": "HIGH", "HI": "HIGH", "URGENT": "HIGH", "CRITICAL": "HIGH",
	"M": "MED", "MID": "MED", "MEDIUM": "MED", "NORMAL": "MED",
	"L": "LOW", "MINOR": "LOW", "TRIVIAL": "LOW",
}

// NormalizeXiaojingReview repairs a raw reviewer payload into
// xiaojing_review_v1 shape, including the score/action_required consistency
// rule (score>=90 implies APPROVE, and vice versa). Grounded on
// normalize_xiaojing_review.
func NormalizeXiaojingReview(obj map[string]any, taskID, reviewTarget string) map[string]any {
	if obj == nil {
		obj = map[string]any{}
	}

	normalizeKeyAliases(obj, map[string][]string{
		"schema_version": {"schema", "version"},
		"task_id":        {"id", "taskId"},
	}, false)

	if rr, ok := asMap(obj["review_result"]); ok {
		mergeWrappedReviewResult(obj, rr)
	}

	sv := nonEmptyString(obj["schema_version"])
	obj["schema_version"] = normalizeReviewSchemaVersion(sv)

	if nonEmptyString(obj["task_id"]) == "" {
		obj["task_id"] = taskID
	}

	if rt, ok := asString(obj["review_target"]); ok {
		t := strings.ToUpper(strings.TrimSpace(rt))
		if t == "PLAN_REVIEW" || t == "PLAN_JSON" || t == "TOP_TASK" {
			t = "PLAN"
		}
		obj["review_target"] = t
	} else {
		obj["review_target"] = reviewTarget
	}

	score := coerceInt(obj["total_score"], 0)
	if _, ok := obj["total_score"].(int); !ok {
		obj["total_score"] = score
	}

	action, _ := asString(obj["action_required"])
	action = strings.ToUpper(strings.TrimSpace(action))
	if !in(allowedReviewActions, action) {
		action = "MODIFY"
	}
	if score >= 90 {
		action = "APPROVE"
	} else if action == "APPROVE" {
		action = "MODIFY"
	}
	obj["action_required"] = action

	if nonEmptyString(obj["summary"]) == "" {
		if fb := nonEmptyString(obj["feedback"]); fb != "" {
			obj["summary"] = fb
		} else {
			obj["summary"] = "No summary provided."
		}
	}

	if breakdown, ok := asSlice(obj["breakdown"]); !ok || len(breakdown) == 0 {
		obj["breakdown"] = []any{map[string]any{
			"dimension": "overall", "score": score, "max_score": 100, "issues": []any{},
		}}
	}

	obj["suggestions"] = normalizeSuggestions(obj["suggestions"])
	return obj
}

func mergeWrappedReviewResult(obj, rr map[string]any) {
	if rrScore, ok := rr["total_score"]; ok {
		score := coerceInt(rrScore, -1)
		if score >= 0 {
			cur, curOK := obj["total_score"].(int)
			if !curOK || cur == 0 {
				obj["total_score"] = score
			}
		}
	}
	if rrAction, ok := asString(rr["action_required"]); ok {
		if cur := nonEmptyString(obj["action_required"]); cur == "" {
			obj["action_required"] = rrAction
		}
	}
	if breakdown, ok := asSlice(obj["breakdown"]); !ok || len(breakdown) == 0 {
		dims, ok := asSlice(rr["dimension_scores"])
		if !ok {
			dims, _ = asSlice(rr["scores"])
		}
		if dims != nil {
			var built []any
			allDicts := true
			for _, d := range dims {
				if _, ok := asMap(d); !ok {
					allDicts = false
					break
				}
			}
			if allDicts {
				for _, d := range dims {
					dm, _ := asMap(d)
					dim := fallback(nonEmptyString(dm["dimension"]), "overall")
					sc := coerceInt(dm["score"], 0)
					comment := nonEmptyString(dm["comment"])
					var issues []any
					if comment != "" {
						issues = []any{map[string]any{
							"problem": comment, "evidence": comment,
							"impact":     "May block execution or reduce quality.",
							"suggestion": "Follow the reviewer guidance to fix this issue.",
							"acceptance_criteria": "Meets rubric requirements.",
						}}
					} else {
						issues = []any{}
					}
					built = append(built, map[string]any{
						"dimension": dim, "score": sc, "max_score": 100, "issues": issues,
					})
				}
				if len(built) > 0 {
					obj["breakdown"] = built
				}
			}
		}
	}
	if sugg, ok := asSlice(obj["suggestions"]); !ok || len(sugg) == 0 {
		rrSugs, ok := asSlice(rr["suggestions"])
		if !ok {
			rrSugs, _ = asSlice(rr["recommendations"])
		}
		if rrSugs != nil {
			var built []any
			for _, s := range rrSugs {
				sm, ok := asMap(s)
				if !ok {
					continue
				}
				built = append(built, sm)
			}
			if len(built) > 0 {
				obj["suggestions"] = built
			}
		}
	}
}

func normalizeReviewSchemaVersion(sv string) string {
	if sv == "" {
		return "xiaojing_review_v1"
	}
	lower := strings.ToLower(sv)
	switch lower {
	case "xiaojing_review", "xiaojing_review_v0", "review_v1", "xiaojing_review_v1.0",
		"v1", "v01", "1", "review1", "review_v01":
		return "xiaojing_review_v1"
	}
	if strings.HasPrefix(lower, "xiaojing_review") {
		return "xiaojing_review_v1"
	}
	return sv
}

func normalizeSuggestions(raw any) []any {
	items, _ := asSlice(raw)
	out := make([]any, 0, len(items))
	for _, it := range items {
		s, ok := asMap(it)
		if !ok {
			continue
		}
		prNorm := "MED"
		if pr, ok := asString(s["priority"]); ok {
			upper := strings.ToUpper(strings.TrimSpace(pr))
			if alias, ok := reviewPriorityAliases[upper]; ok {
				prNorm = alias
			} else {
				prNorm = upper
			}
		}
		if !in(allowedSuggestionPrio, prNorm) {
			prNorm = "MED"
		}
		change := nonEmptyString(s["change"])
		if change == "" {
			change = "Clarify and adjust output as requested."
		}
		steps := []any{}
		if st, ok := stringSlice(s["steps"]); ok {
			for _, x := range st {
				if strings.TrimSpace(x) != "" {
					steps = append(steps, strings.TrimSpace(x))
				}
			}
		}
		acceptance := nonEmptyString(s["acceptance_criteria"])
		if acceptance == "" {
			acceptance = "Meets rubric requirements."
		}
		out = append(out, map[string]any{
			"priority": prNorm, "change": change, "steps": steps, "acceptance_criteria": acceptance,
		})
	}
	return out
}

// ValidateXiaojingReview strictly checks a normalized review payload against
// reviewTarget. Grounded on validate_xiaojing_review.
func ValidateXiaojingReview(obj map[string]any, reviewTarget string) error {
	if err := validateAgainstSchema("xiaojing_review_v1.json", obj); err != nil {
		return err
	}
	for _, k := range []string{"schema_version", "task_id", "review_target", "total_score", "breakdown", "summary", "action_required", "suggestions"} {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing key: %s", k)
		}
	}
	if obj["schema_version"] != "xiaojing_review_v1" {
		return fmt.Errorf("schema_version mismatch (got %v)", obj["schema_version"])
	}
	if obj["review_target"] != reviewTarget {
		return fmt.Errorf("review_target mismatch (got %v, expected %s)", obj["review_target"], reviewTarget)
	}
	if _, ok := asString(obj["task_id"]); !ok {
		return fmt.Errorf("task_id must be string")
	}
	total, ok := obj["total_score"].(int)
	if !ok {
		return fmt.Errorf("total_score must be int")
	}
	if total < 0 || total > 100 {
		return fmt.Errorf("total_score out of range")
	}
	action, _ := asString(obj["action_required"])
	if !in(allowedReviewActions, action) {
		return fmt.Errorf("invalid action_required")
	}
	if total >= 90 && action != "APPROVE" {
		return fmt.Errorf("total_score>=90 requires action_required=APPROVE")
	}
	if total < 90 && action == "APPROVE" {
		return fmt.Errorf("total_score<90 cannot be APPROVE")
	}

	breakdown, ok := asSlice(obj["breakdown"])
	if !ok {
		return fmt.Errorf("breakdown must be array")
	}
	for _, d := range breakdown {
		dim, ok := asMap(d)
		if !ok {
			return fmt.Errorf("breakdown item must be object")
		}
		for _, k := range []string{"dimension", "score", "max_score", "issues"} {
			if _, ok := dim[k]; !ok {
				return fmt.Errorf("breakdown missing %s", k)
			}
		}
		if _, ok := asString(dim["dimension"]); !ok {
			return fmt.Errorf("breakdown.dimension must be string")
		}
		if _, ok := dim["score"].(int); !ok {
			return fmt.Errorf("breakdown.score/max_score must be int")
		}
		if _, ok := dim["max_score"].(int); !ok {
			return fmt.Errorf("breakdown.score/max_score must be int")
		}
		issues, ok := asSlice(dim["issues"])
		if !ok {
			return fmt.Errorf("breakdown.issues must be array")
		}
		for _, is := range issues {
			issue, ok := asMap(is)
			if !ok {
				return fmt.Errorf("issue must be object")
			}
			for _, k := range []string{"problem", "evidence", "impact", "suggestion", "acceptance_criteria"} {
				if _, ok := asString(issue[k]); !ok {
					return fmt.Errorf("issue.%s must be string", k)
				}
			}
		}
	}

	suggestions, ok := asSlice(obj["suggestions"])
	if !ok {
		return fmt.Errorf("suggestions must be array")
	}
	for _, s := range suggestions {
		sm, ok := asMap(s)
		if !ok {
			return fmt.Errorf("suggestion must be object")
		}
		pr, _ := asString(sm["priority"])
		if !in(allowedSuggestionPrio, pr) {
			return fmt.Errorf("suggestion.priority must be HIGH|MED|LOW")
		}
		if _, ok := asString(sm["change"]); !ok {
			return fmt.Errorf("suggestion.change must be string")
		}
		if _, ok := stringSlice(sm["steps"]); !ok {
			return fmt.Errorf("suggestion.steps must be string array")
		}
		if _, ok := asString(sm["acceptance_criteria"]); !ok {
			return fmt.Errorf("suggestion.acceptance_criteria must be string")
		}
	}
	return nil
}
