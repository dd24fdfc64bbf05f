package client

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoNames is returned when a model response holds no usable name list.
var ErrNoNames = errors.New("no name list in model response")

var (
	reFence    = regexp.MustCompile("```(?:json)?\\n?|\\n?```")
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
	reObject   = regexp.MustCompile(`(?s)\{.*\}`)
	reArray    = regexp.MustCompile(`(?s)\[.*\]`)
)

// SanitizeModelJSON removes code fences, comments and trailing commas from a
// model response.
func SanitizeModelJSON(raw string) string {
	raw = reFence.ReplaceAllString(raw, "")
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")
	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")
	return strings.TrimSpace(raw)
}

// ParseNameList extracts an ordered list of names from a model response.
// It accepts a bare JSON array, an object wrapping one array of strings, or
// either of those embedded in surrounding prose.
func ParseNameList(raw string) ([]string, error) {
	clean := SanitizeModelJSON(raw)
	if names, ok := decodeNames(clean); ok {
		return names, nil
	}
	if m := reObject.FindString(clean); m != "" {
		if names, ok := decodeNames(m); ok {
			return names, nil
		}
	}
	if m := reArray.FindString(clean); m != "" {
		if names, ok := decodeNames(m); ok {
			return names, nil
		}
	}
	return nil, ErrNoNames
}

func decodeNames(s string) ([]string, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		return toStrings(t), true
	case map[string]any:
		for _, key := range []string{"names", "sprites", "result"} {
			if arr, ok := t[key].([]any); ok {
				return toStrings(arr), true
			}
		}
		for _, val := range t {
			if arr, ok := val.([]any); ok {
				return toStrings(arr), true
			}
		}
	}
	return nil, false
}

// toStrings keeps positions so names still line up with images; non-string
// entries become empty.
func toStrings(arr []any) []string {
	out := make([]string, len(arr))
	for i, v := range arr {
		if s, ok := v.(string); ok {
			out[i] = strings.TrimSpace(s)
		}
	}
	return out
}
