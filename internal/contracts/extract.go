package contracts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencedJSONRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// ExtractJSONObject pulls the first well-formed JSON object out of raw LM
// output: it tries a fenced ```json code block first, then the outermost
// {...} span, and validates each candidate with gjson before attempting a
// full decode so a truncated response fails fast with a clear error instead
// of a cryptic json.Unmarshal message.
func ExtractJSONObject(raw string) (map[string]any, error) {
	for _, candidate := range candidates(raw) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || !gjson.Valid(candidate) {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		return obj, nil
	}
	return nil, fmt.Errorf("no well-formed JSON object found in response")
}

func candidates(raw string) []string {
	var out []string
	if m := fencedJSONRE.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	if start := strings.IndexByte(raw, '{'); start >= 0 {
		if end := strings.LastIndexByte(raw, '}'); end > start {
			out = append(out, raw[start:end+1])
		}
	}
	out = append(out, raw)
	return out
}

// LooksTruncated flags a response that was cut off mid-JSON: braces/brackets
// don't balance and the tail isn't whitespace. Used to set
// LlmCall.ResponseTruncated without needing a second parse attempt.
func LooksTruncated(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	if gjson.Valid(trimmed) {
		return false
	}
	depth := 0
	inString := false
	escaped := false
	for _, r := range trimmed {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return depth != 0 || inString
}
