package agent

import (
	"context"
	"fmt"

	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/modeladapter"
)

// IterationPhase indicates when an effect runs within a single ReAct iteration.
type IterationPhase int

const (
	// PhaseBeforeComplete runs before the model call.
	PhaseBeforeComplete IterationPhase = iota
	// PhaseAfterComplete runs after the model reply, before tool dispatch.
	PhaseAfterComplete
)

// IterationContext provides per-iteration state to effects without exposing the
// full Agent.
type IterationContext struct {
	Phase     IterationPhase
	Iteration int
	Chat      *chat.Chat
	Completer modeladapter.Completer
	AgentName string
}

// Effect is a per-iteration hook that runs inside the ReAct loop. Effects run
// synchronously in registration order. Returning an error aborts the loop.
type Effect interface {
	Eval(ctx context.Context, ic IterationContext) error
}

// EffectFunc is an adapter that lets ordinary functions implement Effect.
type EffectFunc func(ctx context.Context, ic IterationContext) error

// Eval calls f(ctx, ic).
func (f EffectFunc) Eval(ctx context.Context, ic IterationContext) error { return f(ctx, ic) }

// BeforeComplete wraps fn so it only runs before the model call.
func BeforeComplete(fn func(ctx context.Context, ic IterationContext) error) Effect {
	return EffectFunc(func(ctx context.Context, ic IterationContext) error {
		if ic.Phase != PhaseBeforeComplete {
			return nil
		}
		return fn(ctx, ic)
	})
}

// RepeatGuard returns an effect that nudges the model when its last
// threshold tool calls were identical (same tool, same arguments). A
// threshold below 2 defaults to 3.
func RepeatGuard(threshold int) Effect {
	if threshold < 2 {
		threshold = 3
	}

	return BeforeComplete(func(_ context.Context, ic IterationContext) error {
		if ic.Iteration == 0 {
			return nil
		}

		name, n := trailingRepeats(ic.Chat)
		if n < threshold {
			return nil
		}

		ic.Chat.Append(message.NewText("", role.User, fmt.Sprintf(
			"You have called %s with the same arguments %d times in a row. Use the result you already have or change the arguments.",
			name, n,
		)))

		return nil
	})
}

// trailingRepeats counts how many of the most recent tool calls in c are
// identical to the latest one.
func trailingRepeats(c *chat.Chat) (string, int) {
	var latest *content.ToolCall
	n := 0

	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != role.Assistant {
			continue
		}

		calls := msgs[i].ToolCalls()
		for j := len(calls) - 1; j >= 0; j-- {
			tc := calls[j]
			if latest == nil {
				latest = &tc
			} else if tc.Name != latest.Name || tc.Arguments != latest.Arguments {
				return latest.Name, n
			}
			n++
		}
	}

	if latest == nil {
		return "", 0
	}

	return latest.Name, n
}
