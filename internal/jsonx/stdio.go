// Package jsonx extracts JSON objects from captured process output.
package jsonx

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	json "github.com/goccy/go-json"
)

// StdioToJSON finds the JSON object embedded in a noisy output buffer.
//
// ANSI escape sequences are stripped first, then the span from the first '{'
// to the last '}' is parsed. Sibling objects are not extracted separately. A
// nil map means no object was found; this is a normal outcome.
func StdioToJSON(buf string) map[string]any {
	if buf == "" {
		return nil
	}
	clean := ansi.Strip(buf)

	start := strings.IndexByte(clean, '{')
	end := strings.LastIndexByte(clean, '}')
	if start < 0 || end < start {
		return nil
	}

	obj, ok := ParseObject(clean[start : end+1])
	if !ok {
		return nil
	}
	return obj
}

// ParseObject parses s as a single JSON object. Leading and trailing
// whitespace is allowed; anything else is not.
func ParseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}
