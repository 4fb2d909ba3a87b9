package reviewer

import "github.com/dagrunner/planengine/internal/model"

// toReview maps a normalized xiaojing_review_v1 object onto the persisted
// Review shape. The object has already passed ValidateXiaojingReview, so
// every type assertion here is safe.
func toReview(reviewedArtifactID string, obj map[string]any) model.Review {
	breakdownRaw, _ := obj["breakdown"].([]any)
	breakdown := make([]model.BreakdownDimension, 0, len(breakdownRaw))
	for _, d := range breakdownRaw {
		dm, ok := d.(map[string]any)
		if !ok {
			continue
		}
		issuesRaw, _ := dm["issues"].([]any)
		issues := make([]model.BreakdownIssue, 0, len(issuesRaw))
		for _, is := range issuesRaw {
			im, ok := is.(map[string]any)
			if !ok {
				continue
			}
			issues = append(issues, model.BreakdownIssue{
				Problem:            asStr(im["problem"]),
				Evidence:           asStr(im["evidence"]),
				Impact:             asStr(im["impact"]),
				Suggestion:         asStr(im["suggestion"]),
				AcceptanceCriteria: asStr(im["acceptance_criteria"]),
			})
		}
		breakdown = append(breakdown, model.BreakdownDimension{
			Dimension: asStr(dm["dimension"]),
			Score:     asInt(dm["score"]),
			MaxScore:  asInt(dm["max_score"]),
			Issues:    issues,
		})
	}

	suggestionsRaw, _ := obj["suggestions"].([]any)
	suggestions := make([]model.Suggestion, 0, len(suggestionsRaw))
	for _, s := range suggestionsRaw {
		sm, ok := s.(map[string]any)
		if !ok {
			continue
		}
		stepsRaw, _ := sm["steps"].([]any)
		steps := make([]string, 0, len(stepsRaw))
		for _, st := range stepsRaw {
			if v, ok := st.(string); ok {
				steps = append(steps, v)
			}
		}
		suggestions = append(suggestions, model.Suggestion{
			Priority:           model.SuggestionPriority(asStr(sm["priority"])),
			Change:             asStr(sm["change"]),
			Steps:              steps,
			AcceptanceCriteria: asStr(sm["acceptance_criteria"]),
		})
	}

	return model.Review{
		TargetTaskID:       asStr(obj["task_id"]),
		ReviewedArtifactID: reviewedArtifactID,
		TotalScore:         asInt(obj["total_score"]),
		Breakdown:          breakdown,
		Suggestions:        suggestions,
		Summary:            asStr(obj["summary"]),
		ActionRequired:     model.ReviewAction(asStr(obj["action_required"])),
	}
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	i, _ := v.(int)
	return i
}
