// Package schema rewrites JSON Schema documents before they are declared to a
// model provider. Schemas generated from Go types carry keywords such as
// additionalProperties that Gemini rejects with a validation error.
package schema

import (
	"bytes"
	"encoding/json"
)

// AdditionalProperties is the keyword tool delegates strip from every schema
// they declare.
const AdditionalProperties = "additionalProperties"

// Strip removes every occurrence of the given keys from the schema, at any
// depth, including inside arrays such as anyOf. If raw is not valid JSON it is
// returned unchanged.
func Strip(raw json.RawMessage, keys ...string) json.RawMessage {
	if len(raw) == 0 || len(keys) == 0 {
		return raw
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return raw
	}

	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	out, err := json.Marshal(strip(doc, drop))
	if err != nil {
		return raw
	}

	return out
}

func strip(v any, drop map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if _, ok := drop[k]; ok {
				delete(t, k)
				continue
			}
			t[k] = strip(child, drop)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = strip(child, drop)
		}
		return t
	default:
		return v
	}
}
