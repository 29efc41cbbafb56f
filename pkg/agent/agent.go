// Package agent runs one pipeline stage: a ReAct loop (reason + act) over a
// completer and its tool boxes, with per-iteration effects, hooks that observe
// every tool call, and middleware around the whole run.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/tools/toolbox"
)

// ErrMaxIterations is returned when the ReAct loop exceeds MaxIterations
// without the model producing a final answer.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// ToolHook observes a finished tool call.
type ToolHook interface {
	AfterTool(ctx context.Context, call content.ToolCall, result content.ToolResult)
}

// ToolHookFunc adapts a plain function to the ToolHook interface.
type ToolHookFunc func(ctx context.Context, call content.ToolCall, result content.ToolResult)

// AfterTool calls f(ctx, call, result).
func (f ToolHookFunc) AfterTool(ctx context.Context, call content.ToolCall, result content.ToolResult) {
	f(ctx, call, result)
}

// Options configures an Agent.
type Options struct {
	MaxIterations  int             // ReAct loop limit (0 = unlimited).
	Effects        []Effect        // Evaluated at every iteration phase.
	ToolHooks      []ToolHook      // Called after every tool call.
	StopOnTool     string          // A successful call of this tool ends the run.
	ResponseSchema json.RawMessage // Structured answer, used when the agent has no tools.
	Middleware     []Middleware    // Applied around Run().
}

// Agent is a single stage agent. It is not safe for concurrent use.
type Agent struct {
	name         string
	description  string
	instructions string
	completer    modeladapter.Completer
	chat         *chat.Chat
	toolboxes    []*toolbox.ToolBox
	options      Options
}

// New creates an Agent with the given configuration.
func New(name, description, instructions string, completer modeladapter.Completer, opts Options) *Agent {
	return &Agent{
		name:         name,
		description:  description,
		instructions: instructions,
		completer:    completer,
		chat:         chat.New(),
		options:      opts,
	}
}

// Init appends the system prompt to the chat if it has none yet.
func (a *Agent) Init() {
	if a.chat.SystemPrompt() == "" {
		a.chat.Append(message.NewText(a.name, role.System, a.buildSystemPrompt()))
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Chat returns the agent's chat.
func (a *Agent) Chat() *chat.Chat { return a.chat }

// Completer returns the agent's completer.
func (a *Agent) Completer() modeladapter.Completer { return a.completer }

// AddToolBoxes adds toolboxes to the agent.
func (a *Agent) AddToolBoxes(tbs ...*toolbox.ToolBox) {
	a.toolboxes = append(a.toolboxes, tbs...)
}

// Tools returns the tools of every toolbox, in toolbox order.
func (a *Agent) Tools() []toolbox.Tool {
	var tools []toolbox.Tool
	for _, tb := range a.toolboxes {
		tools = append(tools, tb.Tools()...)
	}
	return tools
}

// Run executes the agent's ReAct loop with middleware applied. The returned
// message is the final answer, or the tool message that ended the run when
// StopOnTool matched.
func (a *Agent) Run(ctx context.Context) (message.Message, error) {
	var runner Runner = RunnerFunc(a.run)

	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	return runner.Run(ctx)
}

func (a *Agent) run(ctx context.Context) (message.Message, error) {
	ctx = agentctx.WithAgentName(ctx, a.name)

	a.Init()

	tools := a.Tools()

	for i := 0; a.options.MaxIterations == 0 || i < a.options.MaxIterations; i++ {
		ic := IterationContext{
			Phase:     PhaseBeforeComplete,
			Iteration: i,
			Chat:      a.chat,
			Completer: a.completer,
			AgentName: a.name,
		}

		if err := a.evalEffects(ctx, ic); err != nil {
			return message.Message{}, err
		}

		reply, err := a.complete(ctx, tools)
		if err != nil {
			return message.Message{}, err
		}

		reply.Sender = a.name
		a.chat.Append(reply)

		ic.Phase = PhaseAfterComplete
		if err := a.evalEffects(ctx, ic); err != nil {
			return message.Message{}, err
		}

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			return reply, nil
		}

		var stop *message.Message

		for _, tc := range calls {
			result := callTool(ctx, a.toolboxes, tc)

			for _, h := range a.options.ToolHooks {
				h.AfterTool(ctx, tc, result)
			}

			msg := message.New(a.name, role.Tool, result)
			a.chat.Append(msg)

			if a.options.StopOnTool != "" && tc.Name == a.options.StopOnTool && !result.IsError {
				stop = &msg
			}
		}

		if stop != nil {
			return *stop, nil
		}
	}

	return message.Message{}, ErrMaxIterations
}

func (a *Agent) complete(ctx context.Context, tools []toolbox.Tool) (message.Message, error) {
	if len(a.options.ResponseSchema) > 0 && len(tools) == 0 {
		if sc, ok := a.completer.(modeladapter.StructuredCompleter); ok {
			return sc.CompleteStructured(ctx, a.chat, a.options.ResponseSchema)
		}
	}

	return a.completer.Complete(ctx, a.chat, tools)
}

// evalEffects runs every effect in registration order and stops at the first
// error.
func (a *Agent) evalEffects(ctx context.Context, ic IterationContext) error {
	for _, e := range a.options.Effects {
		if err := e.Eval(ctx, ic); err != nil {
			return fmt.Errorf("agent: %s: effect: %w", a.name, err)
		}
	}
	return nil
}

func (a *Agent) buildSystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", a.name)
	if a.description != "" {
		fmt.Fprintf(&b, " %s", a.description)
	}
	b.WriteString("\n")

	if a.instructions != "" {
		b.WriteString("\n## Instructions\n\n")
		b.WriteString(strings.TrimSpace(a.instructions))
		b.WriteString("\n")
	}

	return b.String()
}

// callTool searches all toolboxes for the named tool and executes it.
func callTool(ctx context.Context, toolboxes []*toolbox.ToolBox, tc content.ToolCall) content.ToolResult {
	for _, tb := range toolboxes {
		if _, ok := tb.Get(tc.Name); ok {
			return tb.Call(ctx, tc)
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    fmt.Sprintf("tool not found: %s", tc.Name),
		IsError:    true,
	}
}
