package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool represents an executable tool with a name, description, JSON Schema, and handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// SchemaOption adjusts a schema derived by NewTyped before it is serialized.
type SchemaOption func(s *jsonschema.Schema)

// WithEnum restricts a top-level property to the given values.
func WithEnum(property string, values ...any) SchemaOption {
	return func(s *jsonschema.Schema) {
		if p, ok := s.Properties[property]; ok {
			p.Enum = values
		}
	}
}

// WithDefault sets the default value of a top-level property.
func WithDefault(property string, value any) SchemaOption {
	return func(s *jsonschema.Schema) {
		p, ok := s.Properties[property]
		if !ok {
			return
		}
		if raw, err := json.Marshal(value); err == nil {
			p.Default = raw
		}
	}
}

// NewTyped builds a Tool whose input schema is derived from In and whose
// handler decodes the model's arguments into In. A string Out is returned
// verbatim; anything else is JSON encoded.
func NewTyped[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error), opts ...SchemaOption) (Tool, error) {
	s, err := jsonschema.For[In](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("toolbox: schema for %s: %w", name, err)
	}

	for _, opt := range opts {
		opt(s)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return Tool{}, fmt.Errorf("toolbox: marshal schema for %s: %w", name, err)
	}

	handler := func(ctx context.Context, input json.RawMessage) (string, error) {
		var in In
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %w", err)
			}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return "", err
		}

		if text, ok := any(out).(string); ok {
			return text, nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("marshal output: %w", err)
		}

		return string(b), nil
	}

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: raw,
		Handler:     handler,
	}, nil
}
