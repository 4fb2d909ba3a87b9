// Package contracts normalizes and strictly validates the three wire
// contracts LM agents exchange with the engine: plan_json_v1 (plan
// generation), xiaobo_action_v1 (executor result), and xiaojing_review_v1
// (reviewer verdict). Normalization is deliberately tolerant of the key
// aliases, wrapper envelopes, and loose typing real model output tends to
// produce; validation afterward is strict and rejects anything normalization
// could not repair.
package contracts

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var uuidRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func isUUID(v any) bool {
	s, ok := v.(string)
	return ok && uuidRE.MatchString(s)
}

func isISO8601(v any) bool {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return false
	}
	_, err := time.Parse(time.RFC3339, strings.Replace(s, "Z", "+00:00", 1))
	return err == nil
}

func newUUID() string { return uuid.NewString() }

func coerceInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

func coerceBoolInt(v any, def int) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case int:
		if t != 0 {
			return 1
		}
		return 0
	case float64:
		if t != 0 {
			return 1
		}
		return 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y":
			return 1
		case "0", "false", "no", "n":
			return 0
		}
	}
	return def
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func nonEmptyString(v any) string {
	s, _ := asString(v)
	return strings.TrimSpace(s)
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func firstPresent(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// normalizeKeyAliases copies the first present alias value onto the
// canonical key, mirroring the teacher contract's _normalize_key_aliases.
func normalizeKeyAliases(m map[string]any, aliases map[string][]string, overwrite bool) {
	for canonical, alts := range aliases {
		if !overwrite {
			if v, ok := m[canonical]; ok && v != nil {
				continue
			}
		}
		if v, ok := firstPresent(m, alts); ok {
			m[canonical] = v
		}
	}
}

func stringSlice(v any) ([]string, bool) {
	items, ok := asSlice(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := asString(it)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// cleanTopTaskForGoal keeps only the first non-empty line, truncated, so
// retry feedback appended to a prompt never pollutes the goal statement.
func cleanTopTaskForGoal(topTask string) string {
	for _, line := range strings.Split(topTask, "\n") {
		s := strings.TrimSpace(line)
		if s != "" {
			if len(s) > 200 {
				s = s[:200]
			}
			return s
		}
	}
	return "Untitled Task"
}

var (
	allowedArtifactFormats    = set("md", "txt", "json", "html", "css", "js")
	allowedNodeTypes          = set("GOAL", "ACTION", "CHECK")
	allowedEdgeTypes          = set("DECOMPOSE", "DEPENDS_ON", "ALTERNATIVE")
	allowedAgents             = set("xiaobo", "xiaojing", "xiaoxie")
	allowedRequirementKinds   = set("FILE", "CONFIRMATION", "SKILL_OUTPUT")
	allowedRequirementSources = set("USER", "AGENT", "ANY")
	allowedReviewActions      = set("APPROVE", "MODIFY", "REQUEST_EXTERNAL_INPUT")
	allowedSuggestionPrio     = set("HIGH", "MED", "LOW")
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func in(m map[string]struct{}, v string) bool {
	_, ok := m[v]
	return ok
}
