package modules

import (
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
)

// ToJSON marshals any value to a compact JSON string.
func ToJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "marshal response")
	}
	return string(b), nil
}

// ToPrettyJSON marshals any value to indented JSON for envelope text blocks.
func ToPrettyJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal response")
	}
	return string(b), nil
}

// StringParam extracts a trimmed string parameter. Missing or non-string
// values yield "".
func StringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

// BoolParam extracts a boolean parameter, falling back to def when the key
// is absent or not a boolean.
func BoolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// IntParam extracts a numeric parameter as int, falling back to def when the
// key is absent or not a number. JSON numbers arrive as float64.
func IntParam(params map[string]any, key string, def int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return def
}

// ClampInt bounds v to the inclusive range [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
