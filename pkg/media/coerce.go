package media

import (
	"encoding/json"
	"strings"
)

// Coerce normalizes a tool response into a mapping. It accepts a Result, a
// map, a {"result": ...} wrapper around any of these, a JSON object encoded
// as a string, or raw JSON bytes. Anything else reports false.
func Coerce(resp any) (map[string]any, bool) {
	m, ok := coerce(resp)
	if !ok {
		return nil, false
	}

	if len(m) == 1 {
		if inner, found := m["result"]; found {
			if unwrapped, ok := coerce(inner); ok {
				return unwrapped, true
			}
		}
	}

	return m, true
}

func coerce(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return t, true
	case Result:
		return resultMap(t), true
	case *Result:
		if t == nil {
			return nil, false
		}
		return resultMap(*t), true
	case json.RawMessage:
		return decodeObject([]byte(t))
	case []byte:
		return decodeObject(t)
	case string:
		return decodeObject([]byte(strings.TrimSpace(t)))
	default:
		return nil, false
	}
}

func resultMap(r Result) map[string]any {
	m := map[string]any{"uri": r.URI}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func decodeObject(b []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
