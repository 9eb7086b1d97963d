// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*})\\s*\x60\x60\x60")
	// openFenceRegex matches an opening fence that was never closed (truncated output).
	openFenceRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*)$")
)

// ParseJSONResponse parses a model response into a target Go type. It tolerates
// markdown fences and conversational text around a single JSON object.
func ParseJSONResponse[T any](response string) (*T, error) {
	candidate, ok := extractObject(response)
	if !ok {
		candidate = strings.TrimSpace(response)
	}

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(candidate, 500))
	}
	return &result, nil
}

// extractObject returns the JSON object embedded in text: first from a closed
// markdown fence, then from the outermost pair of braces.
func extractObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if matches := jsonObjectRegex.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1], true
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		return text[first : last+1], true
	}
	return "", false
}

// extractPrefix returns everything from the first opening brace onward, for
// output that was cut off before the object closed.
func extractPrefix(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if matches := openFenceRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSuffix(strings.TrimSpace(matches[1]), "```"), true
	}
	if first := strings.Index(text, "{"); first != -1 {
		return text[first:], true
	}
	return "", false
}

// truncateString shortens s for log output.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
