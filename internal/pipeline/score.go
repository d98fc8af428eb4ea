package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fallbackScore replaces scores that could not be obtained or parsed.
const fallbackScore = 75

// parseScore extracts an integer score from a model response. Models
// frequently wrap JSON in markdown code fences or prepend filler, so the
// parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
//
// On any failure the fallback score is returned with the error.
func parseScore(resp string) (int, error) {
	s := stripFences(resp)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fallbackScore, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return fallbackScore, fmt.Errorf("unmarshal score: %w", err)
	}
	return clampScore(int(obj.Score)), nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(resp string) string {
	s := strings.TrimSpace(resp)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	return s
}

// clampScore bounds a score to [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
