package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- EffectFunc adapter ---

func TestEffectFunc(t *testing.T) {
	var called bool
	ef := EffectFunc(func(_ context.Context, _ IterationContext) error {
		called = true
		return nil
	})

	err := ef.Eval(context.Background(), IterationContext{})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBeforeComplete(t *testing.T) {
	var phases []IterationPhase
	e := BeforeComplete(func(_ context.Context, ic IterationContext) error {
		phases = append(phases, ic.Phase)
		return nil
	})

	require.NoError(t, e.Eval(context.Background(), IterationContext{Phase: PhaseBeforeComplete}))
	require.NoError(t, e.Eval(context.Background(), IterationContext{Phase: PhaseAfterComplete}))

	assert.Equal(t, []IterationPhase{PhaseBeforeComplete}, phases)
}

// --- evalEffects tests ---

func TestEvalEffects_StopsOnError(t *testing.T) {
	var ran []string
	stop := errors.New("stop")

	a := New("bot", "", "", &sequenceCompleter{}, Options{
		Effects: []Effect{
			EffectFunc(func(_ context.Context, _ IterationContext) error {
				ran = append(ran, "first")
				return nil
			}),
			EffectFunc(func(_ context.Context, _ IterationContext) error {
				return stop
			}),
			EffectFunc(func(_ context.Context, _ IterationContext) error {
				ran = append(ran, "third")
				return nil
			}),
		},
	})

	err := a.evalEffects(context.Background(), IterationContext{Phase: PhaseBeforeComplete})
	require.ErrorIs(t, err, stop)
	assert.Contains(t, err.Error(), "bot")
	assert.Equal(t, []string{"first"}, ran)
}

func TestRunPassesIterationContext(t *testing.T) {
	var captured []IterationContext

	p := &sequenceCompleter{replies: []message.Message{
		toolCall("c1", "echo", `{}`),
		message.NewText("", role.Assistant, "done"),
	}}
	a := New("bot", "", "", p, Options{
		Effects: []Effect{
			EffectFunc(func(_ context.Context, ic IterationContext) error {
				captured = append(captured, ic)
				return nil
			}),
		},
	})
	a.AddToolBoxes(newEchoToolBox())

	_, err := a.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, captured, 4)
	assert.Equal(t, PhaseBeforeComplete, captured[0].Phase)
	assert.Equal(t, PhaseAfterComplete, captured[1].Phase)
	assert.Equal(t, 1, captured[2].Iteration)
	assert.Equal(t, "bot", captured[3].AgentName)
	assert.Same(t, a.Chat(), captured[0].Chat)
}

// A before-complete effect can rewrite the chat the model is about to see.
func TestRunEffectRewritesChat(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{message.NewText("", role.Assistant, "ok")}}
	a := New("bot", "", "", p, Options{
		Effects: []Effect{
			BeforeComplete(func(_ context.Context, ic IterationContext) error {
				idx := ic.Chat.LastIndex(role.User)
				ic.Chat.Replace(idx, message.NewText("user", role.User, "rewritten"))
				return nil
			}),
		},
	})
	a.Chat().Append(message.NewText("user", role.User, "original"))

	_, err := a.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "rewritten", a.Chat().At(0).TextContent())
}

func TestRunWithEffectError(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{
			message.NewText("", role.Assistant, "Should not reach."),
		},
	}
	a := New("bot", "", "", p, Options{
		Effects: []Effect{
			BeforeComplete(func(context.Context, IterationContext) error {
				return errors.New("effect abort")
			}),
		},
	})

	_, err := a.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "effect abort")
	assert.Equal(t, 0, p.index)
}

// --- RepeatGuard ---

func repeatedCalls(n int, args string) *chat.Chat {
	c := chat.New()
	for range n {
		c.Append(
			message.New("bot", role.Assistant, content.ToolCall{ID: "c", Name: "generate_image", Arguments: args}),
			message.New("bot", role.Tool, content.ToolResult{ToolCallID: "c", Content: "{}"}),
		)
	}
	return c
}

func TestRepeatGuard_Intervenes(t *testing.T) {
	c := repeatedCalls(3, `{"prompt":"a"}`)

	err := RepeatGuard(3).Eval(context.Background(), IterationContext{Phase: PhaseBeforeComplete, Iteration: 3, Chat: c})

	require.NoError(t, err)
	require.Equal(t, 7, c.Len())
	last, _ := c.Last()
	assert.Equal(t, role.User, last.Role)
	assert.Contains(t, last.TextContent(), "generate_image")
	assert.Contains(t, last.TextContent(), "3 times")
}

func TestRepeatGuard_BelowThreshold(t *testing.T) {
	c := repeatedCalls(2, `{"prompt":"a"}`)
	c.Append(message.New("bot", role.Assistant, content.ToolCall{ID: "d", Name: "generate_image", Arguments: `{"prompt":"b"}`}))

	err := RepeatGuard(2).Eval(context.Background(), IterationContext{Phase: PhaseBeforeComplete, Iteration: 3, Chat: c})

	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())
}

func TestRepeatGuard_SkipsFirstIterationAndAfterPhase(t *testing.T) {
	c := repeatedCalls(5, `{}`)
	guard := RepeatGuard(0)

	require.NoError(t, guard.Eval(context.Background(), IterationContext{Phase: PhaseBeforeComplete, Iteration: 0, Chat: c}))
	require.NoError(t, guard.Eval(context.Background(), IterationContext{Phase: PhaseAfterComplete, Iteration: 4, Chat: c}))

	assert.Equal(t, 10, c.Len())
}
