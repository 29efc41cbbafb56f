// Package vertex provides a Completer that talks to Gemini chat models through
// a genai client, so the stages can run on Vertex AI credentials without an
// API key.
package vertex

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/modeladapter/usage"
	"github.com/germanamz/director/pkg/tools/schema"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"google.golang.org/genai"
)

var (
	_ modeladapter.ChoiceCompleter     = (*Adapter)(nil)
	_ modeladapter.StructuredCompleter = (*Adapter)(nil)
	_ modeladapter.UsageReporter       = (*Adapter)(nil)
)

// Models is the part of the genai Models service the adapter uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Adapter implements modeladapter.Completer on top of a genai client.
type Adapter struct {
	modeladapter.ModelAdapter

	models Models
}

// New creates an Adapter for model. models is usually (*genai.Client).Models.
func New(models Models, model string) *Adapter {
	a := &Adapter{models: models}
	a.Name = model
	a.MaxTokens = 8192

	return a
}

// Complete sends a conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	return a.CompleteWithChoice(ctx, c, tools, modeladapter.ToolChoiceAuto)
}

// CompleteWithChoice is Complete with an explicit function-calling mode.
func (a *Adapter) CompleteWithChoice(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, choice modeladapter.ToolChoice) (message.Message, error) {
	cfg := a.config(c)
	cfg.Tools = declarations(tools)

	if len(tools) > 0 && choice != modeladapter.ToolChoiceAuto && choice != "" {
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: callingMode(choice)},
		}
	}

	return a.send(ctx, c, cfg)
}

// CompleteStructured asks for a JSON reply matching responseSchema.
func (a *Adapter) CompleteStructured(ctx context.Context, c *chat.Chat, responseSchema json.RawMessage) (message.Message, error) {
	cfg := a.config(c)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseJsonSchema = sanitizeSchema(responseSchema)

	return a.send(ctx, c, cfg)
}

func (a *Adapter) send(ctx context.Context, c *chat.Chat, cfg *genai.GenerateContentConfig) (message.Message, error) {
	resp, err := a.models.GenerateContent(ctx, a.Name, contents(c), cfg)
	if err != nil {
		return message.Message{}, fmt.Errorf("vertex: %w", mapError(err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return message.Message{}, fmt.Errorf("vertex: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return message.Message{}, fmt.Errorf("vertex: empty candidates in response")
	}

	if um := resp.UsageMetadata; um != nil {
		a.Usage.Record(agentctx.InvocationIDFromContext(ctx), usage.TokenCount{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
		})
	}

	return parseContent(resp.Candidates[0].Content), nil
}

func (a *Adapter) config(c *chat.Chat) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(a.MaxTokens), //nolint:gosec // small configured value
	}

	if a.Temperature != 0 {
		t := float32(a.Temperature)
		cfg.Temperature = &t
	}

	if sp := c.SystemPrompt(); sp != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sp}}}
	}

	return cfg
}

// mapError turns genai API errors into the modeladapter error types the
// retry wrapper understands.
func mapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return err
		}
		apiErr = *ptr
	}

	if apiErr.Code == http.StatusTooManyRequests {
		return &modeladapter.RateLimitError{Body: apiErr.Message}
	}
	if apiErr.Code != 0 {
		return &modeladapter.StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}

	return err
}

// --- conversion helpers ---

func declarations(tools []toolbox.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		s := t.InputSchema
		if s == nil {
			s = json.RawMessage(`{"type":"object"}`)
		}
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: sanitizeSchema(s),
		}
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func contents(c *chat.Chat) []*genai.Content {
	msgs := c.Messages()
	callNames := make(map[string]string)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls() {
			callNames[tc.ID] = tc.Name
		}
	}

	var out []*genai.Content

	for _, m := range msgs {
		if m.Role == role.System {
			continue
		}

		r := genai.RoleUser
		if m.Role == role.Assistant {
			r = genai.RoleModel
		}

		for _, p := range m.Parts {
			part := toPart(p, callNames)
			if part == nil {
				continue
			}

			// Roles must alternate.
			if n := len(out); n > 0 && out[n-1].Role == r {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: r, Parts: []*genai.Part{part}})
		}
	}

	return out
}

func toPart(p content.Part, callNames map[string]string) *genai.Part {
	switch v := p.(type) {
	case content.Text:
		return &genai.Part{Text: v.Text}
	case content.Image:
		if v.Inline() {
			return &genai.Part{InlineData: &genai.Blob{MIMEType: v.MediaType, Data: v.Data}}
		}
		if v.URL == "" {
			return nil
		}
		mt := v.MediaType
		if mt == "" {
			mt = guessMIMEType(v.URL)
		}
		return genai.NewPartFromURI(v.URL, mt)
	case content.ToolCall:
		args := map[string]any{}
		if v.Arguments != "" {
			_ = json.Unmarshal([]byte(v.Arguments), &args)
		}
		part := &genai.Part{FunctionCall: &genai.FunctionCall{Name: v.Name, Args: args}}
		if sig := v.Metadata["thoughtSignature"]; sig != "" {
			part.ThoughtSignature, _ = base64.StdEncoding.DecodeString(sig)
		}
		return part
	case content.ToolResult:
		name := v.Name
		if name == "" {
			name = callNames[v.ToolCallID]
		}
		if name == "" {
			return nil
		}
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{
			Name:     name,
			Response: functionResponse(v.Content),
		}}
	default:
		return nil
	}
}

// functionResponse wraps tool output as {"result": <json>} when it is valid
// JSON, otherwise as {"result": "<text>"}.
func functionResponse(out string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		v = out
	}
	return map[string]any{"result": v}
}

func parseContent(c *genai.Content) message.Message {
	var parts []content.Part

	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			if p.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			tc := content.ToolCall{
				ID:        callID(p.FunctionCall),
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			}
			if len(p.ThoughtSignature) > 0 {
				tc.Metadata = map[string]string{
					"thoughtSignature": base64.StdEncoding.EncodeToString(p.ThoughtSignature),
				}
			}
			parts = append(parts, tc)
		case p.Thought:
			continue
		case p.Text != "":
			parts = append(parts, content.Text{Text: p.Text})
		case p.InlineData != nil:
			parts = append(parts, content.Image{Data: p.InlineData.Data, MediaType: p.InlineData.MIMEType})
		case p.FileData != nil:
			parts = append(parts, content.Image{URL: p.FileData.FileURI, MediaType: p.FileData.MIMEType})
		}
	}

	return message.New("", role.Assistant, parts...)
}

// callID keeps the model's call ID when it sends one and synthesizes one
// otherwise.
func callID(fc *genai.FunctionCall) string {
	if fc.ID != "" {
		return fc.ID
	}
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("call_%s_%s", fc.Name, hex.EncodeToString(b))
}

func callingMode(choice modeladapter.ToolChoice) genai.FunctionCallingConfigMode {
	switch choice {
	case modeladapter.ToolChoiceRequired:
		return genai.FunctionCallingConfigModeAny
	case modeladapter.ToolChoiceNone:
		return genai.FunctionCallingConfigModeNone
	default:
		return genai.FunctionCallingConfigModeAuto
	}
}

// sanitizeSchema removes keywords Gemini rejects and decodes the result for
// the SDK's JSON schema fields.
func sanitizeSchema(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(schema.Strip(raw, "$schema", schema.AdditionalProperties), &v); err != nil {
		return nil
	}
	return v
}

func guessMIMEType(uri string) string {
	ext := strings.ToLower(path.Ext(uri))
	if ext == "" {
		return ""
	}
	mt, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
	return mt
}
