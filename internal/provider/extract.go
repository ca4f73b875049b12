package provider

import (
	"fmt"
	"strings"
)

// Models frequently wrap JSON in markdown code fences or prepend
// conversational filler even when told not to. These helpers extract the
// payload without being picky about the wrapping.

func stripFences(s string) string {
	s = strings.TrimSpace(s)
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

// extractJSONObject returns the substring from the first '{' to the last '}'.
func extractJSONObject(s string) (string, error) {
	s = stripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found")
	}
	return s[start : end+1], nil
}

// extractJSONArray returns the substring from the first '[' to the last ']'.
func extractJSONArray(s string) (string, error) {
	s = stripFences(s)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON array found")
	}
	return s[start : end+1], nil
}
