// Package content defines the parts a pipeline message can carry.
package content

// Part is a piece of content within a message.
type Part interface {
	PartKind() string
}

// Text is a plain text content part.
type Text struct {
	Text string
}

func (t Text) PartKind() string { return "text" }

// Image is an image content part. URL holds a storage reference (gs://...)
// or a web link; Data holds inline bytes. User-supplied images arrive with
// Data set and are rewritten to text references before any stage sees them.
type Image struct {
	URL       string
	Data      []byte
	MediaType string
}

func (i Image) PartKind() string { return "image" }

// Inline reports whether the image carries raw bytes.
func (i Image) Inline() bool { return len(i.Data) > 0 }

// ToolCall represents a model's request to invoke a tool.
// Arguments holds the raw JSON string to avoid unnecessary deserialization.
// Metadata carries provider-specific opaque data (e.g. Gemini thought
// signatures) that must survive round-trips through the conversation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Metadata  map[string]string
}

func (tc ToolCall) PartKind() string { return "tool_call" }

// ToolResult holds the output of a tool invocation.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

func (tr ToolResult) PartKind() string { return "tool_result" }
