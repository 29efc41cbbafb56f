// Package delegate wraps a single tool as a sub-agent. The sub-agent receives
// a free-form request, asks a model to turn it into exactly one call of the
// wrapped tool, and surfaces only that call's response as its reply.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/tools/schema"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/rs/zerolog"
)

// NoResult is the reply text when the delegate produced no function response.
const NoResult = "The tool returned no result."

// requestSchema is the input schema of the tool returned by ToolAgent.Tool.
var requestSchema = json.RawMessage(`{"type":"object","properties":{"request":{"type":"string","description":"What the tool should do, in plain language"}},"required":["request"]}`)

type requestInput struct {
	Request string `json:"request"`
}

// Event is one step of a delegate run.
type Event struct {
	Author            string
	Message           message.Message
	FunctionResponses []content.ToolResult
	TurnComplete      bool
}

// Runner produces the event stream of one delegate run. Breaking out of the
// iteration ends the run.
type Runner func(ctx context.Context, request string) iter.Seq2[Event, error]

// Option configures a ToolAgent.
type Option func(*ToolAgent)

// WithRunner replaces the model-backed runner.
func WithRunner(r Runner) Option {
	return func(ta *ToolAgent) { ta.runner = r }
}

// ToolAgent binds a tool to the completer that fills in its arguments.
type ToolAgent struct {
	name        string
	description string
	tool        toolbox.Tool
	completer   modeladapter.Completer
	instruction string
	runner      Runner
}

// New creates a ToolAgent named name that calls tool through c.
func New(name, description string, tool toolbox.Tool, c modeladapter.Completer, opts ...Option) *ToolAgent {
	ta := &ToolAgent{
		name:        name,
		description: description,
		tool:        tool,
		completer:   c,
		instruction: Instruction(tool),
	}
	ta.runner = ta.run

	for _, opt := range opts {
		opt(ta)
	}

	return ta
}

// Name returns the adapter's display name.
func (ta *ToolAgent) Name() string { return ta.name }

// DelegateName returns the name of the transient agent that calls the tool.
func (ta *ToolAgent) DelegateName() string { return ta.tool.Name + "_tool_agent" }

// Instruction builds the delegate's system instruction for tool.
func Instruction(tool toolbox.Tool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an agent whose only job is to call the `%s` tool.\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&b, "\nTool description: %s\n", tool.Description)
	}
	b.WriteString("\nParse the user's request into the tool's parameters and call the tool exactly once. ")
	b.WriteString("Use the parameter defaults when the request does not mention a value. ")
	b.WriteString("Never refuse and never answer with text instead of calling the tool.\n")

	return b.String()
}

// Run executes one delegate run for request and returns its single reply
// event. The reply text is the first non-empty function response, or NoResult.
func (ta *ToolAgent) Run(ctx context.Context, request string) (Event, error) {
	log := zerolog.Ctx(ctx).With().Str("component", "delegate").Str("agent", ta.name).Logger()

	text := NoResult

	for ev, err := range ta.runner(ctx, request) {
		if err != nil {
			return Event{}, err
		}

		if out, ok := firstResponse(ev); ok {
			text = out
			break
		}
	}

	log.Debug().Str("reply", text).Msg("delegate finished")

	return Event{
		Author:       ta.name,
		Message:      message.NewText(ta.name, role.Assistant, text),
		TurnComplete: true,
	}, nil
}

// Tool exposes the adapter as a tool taking a single "request" argument.
func (ta *ToolAgent) Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        ta.name,
		Description: ta.description,
		InputSchema: requestSchema,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in requestInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %w", err)
			}

			ev, err := ta.Run(ctx, in.Request)
			if err != nil {
				return "", err
			}

			return ev.Message.TextContent(), nil
		},
	}
}

// run is the model-backed runner: one completion with a mandatory tool call,
// then at most one tool execution.
func (ta *ToolAgent) run(ctx context.Context, request string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		name := ta.DelegateName()
		ctx := agentctx.WithAgentName(ctx, name)

		decl := ta.tool
		decl.InputSchema = schema.Strip(decl.InputSchema, schema.AdditionalProperties)

		c := chat.New(
			message.NewText(name, role.System, ta.instruction),
			message.NewText("user", role.User, request),
		)

		reply, err := ta.complete(ctx, c, []toolbox.Tool{decl})
		if err != nil {
			yield(Event{}, fmt.Errorf("delegate: %s: %w", name, err))
			return
		}

		reply.Sender = name
		if !yield(Event{Author: name, Message: reply}, nil) {
			return
		}

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			return
		}

		if len(calls) > 1 {
			zerolog.Ctx(ctx).Warn().Str("agent", name).Int("calls", len(calls)).Msg("delegate proposed several calls, running the first")
		}

		tb := toolbox.New()
		tb.Register(ta.tool)

		result := tb.Call(ctx, calls[0])
		result.Content = wrapResponse(result)

		yield(Event{
			Author:            name,
			Message:           message.New(name, role.Tool, result),
			FunctionResponses: []content.ToolResult{result},
		}, nil)
	}
}

func (ta *ToolAgent) complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if cc, ok := ta.completer.(modeladapter.ChoiceCompleter); ok {
		return cc.CompleteWithChoice(ctx, c, tools, modeladapter.ToolChoiceRequired)
	}

	return ta.completer.Complete(ctx, c, tools)
}

// wrapResponse renders a tool result the way function responses are
// recorded: {"result": <output>} on success, {"error": <message>} otherwise.
func wrapResponse(r content.ToolResult) string {
	key := "result"
	if r.IsError {
		key = "error"
	}

	var value any = r.Content
	if decoded, ok := decodeJSON(r.Content); ok {
		value = decoded
	}

	b, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		return r.Content
	}

	return string(b)
}

// firstResponse returns the display text of the first non-empty function
// response in ev.
func firstResponse(ev Event) (string, bool) {
	for _, fr := range ev.FunctionResponses {
		if strings.TrimSpace(fr.Content) == "" {
			continue
		}

		return formatResponse(fr.Content), true
	}

	return "", false
}

// formatResponse unwraps a single-key {"result": x} mapping and pretty prints
// the remainder. Plain strings are returned as they are.
func formatResponse(raw string) string {
	v, ok := decodeJSON(raw)
	if !ok {
		return raw
	}

	if m, isMap := v.(map[string]any); isMap && len(m) == 1 {
		if inner, found := m["result"]; found {
			v = inner
		}
	}

	if s, isString := v.(string); isString {
		return s
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}

	return string(b)
}

func decodeJSON(s string) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}

	if dec.More() {
		return nil, false
	}

	return v, true
}
