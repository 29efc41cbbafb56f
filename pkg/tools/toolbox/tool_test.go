package toolbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolHandler(t *testing.T) {
	tool := Tool{
		Name:        "echo",
		Description: "Echoes input back",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			var params struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return "", err
			}
			return params.Text, nil
		},
	}

	result, err := tool.Handler(context.Background(), json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestToolFields(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	tool := Tool{
		Name:        "test",
		Description: "A test tool",
		InputSchema: schema,
	}

	assert.Equal(t, "test", tool.Name)
	assert.Equal(t, "A test tool", tool.Description)
	assert.JSONEq(t, `{"type":"object"}`, string(tool.InputSchema))
	assert.Nil(t, tool.Handler)
}

type shoutInput struct {
	Text  string `json:"text" jsonschema:"the text to shout"`
	Style string `json:"style,omitempty"`
}

type shoutOutput struct {
	Shouted string `json:"shouted"`
}

func TestNewTypedSchema(t *testing.T) {
	tool, err := NewTyped("shout", "Shouts text",
		func(_ context.Context, in shoutInput) (shoutOutput, error) {
			return shoutOutput{Shouted: in.Text + "!"}, nil
		},
		WithEnum("style", "loud", "quiet"),
		WithDefault("style", "loud"),
	)
	require.NoError(t, err)

	var s struct {
		Type                 string                     `json:"type"`
		Required             []string                   `json:"required"`
		AdditionalProperties json.RawMessage            `json:"additionalProperties"`
		Properties           map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(tool.InputSchema, &s))

	assert.Equal(t, "object", s.Type)
	assert.Contains(t, s.Required, "text")
	assert.NotContains(t, s.Required, "style")
	assert.JSONEq(t, `false`, string(s.AdditionalProperties))

	var style struct {
		Enum    []string `json:"enum"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(s.Properties["style"], &style))
	assert.Equal(t, []string{"loud", "quiet"}, style.Enum)
	assert.Equal(t, "loud", style.Default)
}

func TestNewTypedHandler(t *testing.T) {
	tool, err := NewTyped("shout", "Shouts text",
		func(_ context.Context, in shoutInput) (shoutOutput, error) {
			return shoutOutput{Shouted: in.Text + "!"}, nil
		},
	)
	require.NoError(t, err)

	out, err := tool.Handler(context.Background(), json.RawMessage(`{"text":"hey"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"shouted":"hey!"}`, out)
}

func TestNewTypedStringOutput(t *testing.T) {
	tool, err := NewTyped("upper", "Returns text",
		func(_ context.Context, in shoutInput) (string, error) {
			return in.Text, nil
		},
	)
	require.NoError(t, err)

	out, err := tool.Handler(context.Background(), json.RawMessage(`{"text":"plain"}`))
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestNewTypedInvalidInput(t *testing.T) {
	tool, err := NewTyped("shout", "Shouts text",
		func(_ context.Context, in shoutInput) (shoutOutput, error) {
			return shoutOutput{}, nil
		},
	)
	require.NoError(t, err)

	_, err = tool.Handler(context.Background(), json.RawMessage(`{"text":`))
	assert.ErrorContains(t, err, "invalid input")
}
