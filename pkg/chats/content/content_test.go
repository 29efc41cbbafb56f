package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartKinds(t *testing.T) {
	parts := []Part{
		Text{Text: "hi"},
		Image{URL: "gs://bucket/a.png"},
		ToolCall{ID: "1"},
		ToolResult{ToolCallID: "1"},
	}

	expected := []string{"text", "image", "tool_call", "tool_result"}
	for i, p := range parts {
		assert.Equal(t, expected[i], p.PartKind())
	}
}

func TestImage_Inline(t *testing.T) {
	assert.True(t, Image{Data: []byte{0x89, 'P'}, MediaType: "image/png"}.Inline())
	assert.False(t, Image{URL: "gs://bucket/a.png"}.Inline())
}
