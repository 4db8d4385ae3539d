package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder replaces every denylisted value in logged payloads.
const Placeholder = "[REDACTED]"

// maxRedactDepth bounds recursion. Collaborator payloads are expected to be
// acyclic; the limit keeps a surprise cycle from hanging the logger.
const maxRedactDepth = 8

var redactedFieldNames = map[string]struct{}{
	"password":        {},
	"passwordhash":    {},
	"token":           {},
	"tokens":          {},
	"access_token":    {},
	"refresh_token":   {},
	"bearer_token":    {},
	"anonymous_token": {},
	"secret":          {},
	"secrets":         {},
	"cookie":          {},
	"cookies":         {},
	"authorization":   {},
	"session_id":      {},
	"session_token":   {},
	"api_key":         {},
	"private_key":     {},
	"key":             {},
	"keys":            {},
}

// Redact recursively replaces values of denylisted field names with the
// placeholder. Arbitrary values are normalized through JSON first, so nested
// structs are traversed the same way maps are.
func Redact(v any) any {
	return redactValue(normalize(v), 0)
}

func redactValue(v any, depth int) any {
	if depth >= maxRedactDepth {
		return Placeholder
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, deny := redactedFieldNames[strings.ToLower(k)]; deny {
				out[k] = Placeholder
				continue
			}
			out[k] = redactValue(normalize(val), depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(normalize(val), depth+1)
		}
		return out
	default:
		return v
	}
}

// normalize converts non-primitive values into map/slice form via a JSON
// round trip so redaction sees every nested field.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number,
		map[string]any, []any:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}
