package chat

import (
	"testing"

	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestChat_ZeroValue(t *testing.T) {
	var c Chat

	assert.Equal(t, 0, c.Len())

	_, ok := c.Last()
	assert.False(t, ok)
	assert.Empty(t, c.Messages())
	assert.Equal(t, -1, c.LastIndex(role.User))
}

func TestChat_AppendAndAt(t *testing.T) {
	c := New()
	c.Append(message.NewText("user", role.User, "one"))
	c.Append(
		message.NewText("story_agent", role.Assistant, "two"),
		message.NewText("user", role.User, "three"),
	)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "two", c.At(1).TextContent())
	assert.Panics(t, func() { c.At(5) })
}

func TestChat_Replace(t *testing.T) {
	c := New(message.NewText("user", role.User, "draft"))
	c.Replace(0, message.NewText("user", role.User, "final"))

	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, "final", last.TextContent())
}

func TestChat_LastIndex(t *testing.T) {
	c := New(
		message.NewText("director", role.System, "sys"),
		message.NewText("user", role.User, "first"),
		message.NewText("bot", role.Assistant, "reply"),
		message.NewText("user", role.User, "second"),
		message.NewText("bot", role.Assistant, "reply"),
	)

	assert.Equal(t, 3, c.LastIndex(role.User))
	assert.Equal(t, 0, c.LastIndex(role.System))
	assert.Equal(t, -1, c.LastIndex(role.Tool))
}

func TestChat_Messages_ReturnsCopy(t *testing.T) {
	c := New(message.NewText("user", role.User, "hello"))

	msgs := c.Messages()
	msgs[0] = message.NewText("user", role.User, "mutated")

	assert.Equal(t, "hello", c.At(0).TextContent())
}

func TestChat_SystemPrompt(t *testing.T) {
	c := New(
		message.NewText("user", role.User, "hi"),
		message.NewText("director", role.System, "You direct videos."),
	)
	assert.Equal(t, "You direct videos.", c.SystemPrompt())
	assert.Empty(t, New().SystemPrompt())
}
