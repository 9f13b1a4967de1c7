// Package jsonutil provides utilities for decoding JSON from LLM responses
// that may be wrapped in markdown code fences.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// openingFence matches ``` with an optional language tag (```json, ```mermaid).
	openingFence = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\n?")
	closingFence = regexp.MustCompile("\n?[ \t]*```$")
)

// StripMarkdownFences removes ```lang ... ``` or ``` ... ``` wrapping from text.
// Single-line fences are handled too. Returns the trimmed text unchanged if
// no fence is present.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") && !strings.HasSuffix(text, "```") {
		return text
	}
	text = openingFence.ReplaceAllString(text, "")
	text = closingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// DecodeObject decodes raw into a generic JSON object.
//
// It tries a direct decode first; on failure it strips markdown fences and
// tries exactly once more. No other recovery is attempted. The returned error
// wraps the last decode failure and includes a truncated preview for logging.
func DecodeObject(raw string) (map[string]any, error) {
	obj, firstErr := decodeObject(raw)
	if firstErr == nil {
		return obj, nil
	}

	stripped := StripMarkdownFences(raw)
	obj, err := decodeObject(stripped)
	if err == nil {
		return obj, nil
	}
	return nil, fmt.Errorf("invalid JSON: %w (text: %s)", err, Preview(stripped, 200))
}

func decodeObject(text string) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", doc)
	}
	return obj, nil
}

// Preview truncates text to at most n bytes for log output.
func Preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
