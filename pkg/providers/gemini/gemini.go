// Package gemini provides a Completer implementation for the Google Gemini API.
package gemini

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
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
)

var (
	_ modeladapter.ChoiceCompleter     = (*Adapter)(nil)
	_ modeladapter.StructuredCompleter = (*Adapter)(nil)
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Adapter implements modeladapter.Completer for the Google Gemini API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the Gemini API.
// The baseURL should be DefaultBaseURL (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-goog-api-key",
	}
	a.Name = model
	a.MaxTokens = 8192

	return a
}

// Complete sends a conversation to the Gemini API and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	return a.CompleteWithChoice(ctx, c, tools, modeladapter.ToolChoiceAuto)
}

// CompleteWithChoice is Complete with an explicit function-calling mode.
// ToolChoiceRequired maps to mode ANY, which forces a function call.
func (a *Adapter) CompleteWithChoice(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, choice modeladapter.ToolChoice) (message.Message, error) {
	req := a.buildRequest(c, tools)

	if len(tools) > 0 && choice != modeladapter.ToolChoiceAuto && choice != "" {
		req.ToolConfig = &apiToolConfig{
			FunctionCallingConfig: apiFunctionCallingConfig{Mode: callingMode(choice)},
		}
	}

	return a.send(ctx, req)
}

// CompleteStructured asks for a JSON reply matching the given schema. The
// reply's text content holds the JSON document.
func (a *Adapter) CompleteStructured(ctx context.Context, c *chat.Chat, responseSchema json.RawMessage) (message.Message, error) {
	req := a.buildRequest(c, nil)
	req.GenerationConfig.ResponseMIMEType = "application/json"
	req.GenerationConfig.ResponseSchema = sanitizeSchema(responseSchema)

	return a.send(ctx, req)
}

func (a *Adapter) send(ctx context.Context, req apiRequest) (message.Message, error) {
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", a.Name)

	var resp apiResponse
	if err := a.PostJSON(ctx, path, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("gemini: %w", err)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback.BlockReason != "" {
			return message.Message{}, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return message.Message{}, fmt.Errorf("gemini: empty candidates in response")
	}

	a.Usage.Record(agentctx.InvocationIDFromContext(ctx), usage.TokenCount{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	})

	return parseCandidate(resp.Candidates[0]), nil
}

// --- request types ---

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"systemInstruction,omitempty"`
	Tools             []apiToolSet     `json:"tools,omitempty"`
	ToolConfig        *apiToolConfig   `json:"toolConfig,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text             string           `json:"text,omitempty"`
	Thought          bool             `json:"thought,omitempty"`
	InlineData       *apiBlob         `json:"inlineData,omitempty"`
	FileData         *apiFileData     `json:"fileData,omitempty"`
	FunctionCall     *apiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *apiFunctionResp `json:"functionResponse,omitempty"`
	ThoughtSignature string           `json:"thoughtSignature,omitempty"`
}

type apiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type apiFileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type apiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type apiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type apiToolSet struct {
	FunctionDeclarations []apiFuncDecl `json:"functionDeclarations"`
}

type apiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type apiToolConfig struct {
	FunctionCallingConfig apiFunctionCallingConfig `json:"functionCallingConfig"`
}

type apiFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// --- response types ---

type apiResponse struct {
	Candidates     []apiCandidate    `json:"candidates"`
	UsageMetadata  apiUsageMeta      `json:"usageMetadata"`
	PromptFeedback apiPromptFeedback `json:"promptFeedback"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMeta struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type apiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		GenerationConfig: generationConfig{
			MaxOutputTokens: a.MaxTokens,
		},
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.GenerationConfig.Temperature = &t
	}

	if len(tools) > 0 {
		decls := make([]apiFuncDecl, len(tools))
		for i, t := range tools {
			s := t.InputSchema
			if s == nil {
				s = json.RawMessage(`{"type":"object"}`)
			}
			decls[i] = apiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  sanitizeSchema(s),
			}
		}
		req.Tools = []apiToolSet{{FunctionDeclarations: decls}}
	}

	if sp := c.SystemPrompt(); sp != "" {
		req.SystemInstruction = &apiContent{
			Parts: []apiPart{{Text: sp}},
		}
	}

	callNameMap := buildCallNameMap(c.Messages())

	for _, m := range c.Messages() {
		if m.Role == role.System {
			continue
		}
		appendContent(&req.Contents, m, callNameMap)
	}

	return req
}

// buildCallNameMap maps tool call IDs to function names for results that do
// not carry their tool name.
func buildCallNameMap(msgs []message.Message) map[string]string {
	m := make(map[string]string)
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls() {
			m[tc.ID] = tc.Name
		}
	}
	return m
}

func appendContent(contents *[]apiContent, m message.Message, callNameMap map[string]string) {
	apiRole := mapRole(m.Role)

	for _, p := range m.Parts {
		part := partToAPIPart(p, callNameMap)
		if part == nil {
			continue
		}

		// Gemini requires alternating roles.
		if n := len(*contents); n > 0 && (*contents)[n-1].Role == apiRole {
			(*contents)[n-1].Parts = append((*contents)[n-1].Parts, *part)
			continue
		}

		*contents = append(*contents, apiContent{
			Role:  apiRole,
			Parts: []apiPart{*part},
		})
	}
}

func partToAPIPart(p content.Part, callNameMap map[string]string) *apiPart {
	switch v := p.(type) {
	case content.Text:
		return &apiPart{Text: v.Text}
	case content.Image:
		if v.Inline() {
			return &apiPart{InlineData: &apiBlob{MIMEType: v.MediaType, Data: v.Data}}
		}
		if v.URL == "" {
			return nil
		}
		mt := v.MediaType
		if mt == "" {
			mt = guessMIMEType(v.URL)
		}
		return &apiPart{FileData: &apiFileData{FileURI: v.URL, MIMEType: mt}}
	case content.ToolCall:
		args := json.RawMessage(v.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		part := &apiPart{
			FunctionCall: &apiFunctionCall{
				Name: v.Name,
				Args: args,
			},
		}
		if sig := v.Metadata["thoughtSignature"]; sig != "" {
			part.ThoughtSignature = sig
		}
		return part
	case content.ToolResult:
		name := v.Name
		if name == "" {
			name = callNameMap[v.ToolCallID]
		}
		if name == "" {
			// The originating call is no longer in history.
			return nil
		}
		return &apiPart{
			FunctionResponse: &apiFunctionResp{
				Name:     name,
				Response: marshalFunctionResponse(v.Content),
			},
		}
	default:
		return nil
	}
}

// marshalFunctionResponse wraps tool output as {"result": <json>} when it is
// valid JSON, otherwise as {"result": "<text>"}.
func marshalFunctionResponse(out string) json.RawMessage {
	if json.Valid([]byte(out)) {
		return json.RawMessage(`{"result":` + out + `}`)
	}
	b, _ := json.Marshal(out)
	return json.RawMessage(`{"result":` + string(b) + `}`)
}

// sanitizeSchema removes keywords the Gemini API rejects at any depth.
func sanitizeSchema(raw json.RawMessage) json.RawMessage {
	return schema.Strip(raw, "$schema", schema.AdditionalProperties)
}

func guessMIMEType(uri string) string {
	ext := strings.ToLower(path.Ext(uri))
	if ext == "" {
		return ""
	}
	mt, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
	return mt
}

func mapRole(r role.Role) string {
	if r == role.Assistant {
		return "model"
	}
	return "user"
}

func callingMode(choice modeladapter.ToolChoice) string {
	switch choice {
	case modeladapter.ToolChoiceRequired:
		return "ANY"
	case modeladapter.ToolChoiceNone:
		return "NONE"
	default:
		return "AUTO"
	}
}

// generateCallID creates a unique tool call ID. Gemini does not return call
// IDs, so they are synthesized.
func generateCallID(name string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("call_%s_%s", name, hex.EncodeToString(b))
}

func parseCandidate(cand apiCandidate) message.Message {
	var parts []content.Part

	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			tc := content.ToolCall{
				ID:        generateCallID(p.FunctionCall.Name),
				Name:      p.FunctionCall.Name,
				Arguments: string(p.FunctionCall.Args),
			}
			if p.ThoughtSignature != "" {
				tc.Metadata = map[string]string{
					"thoughtSignature": p.ThoughtSignature,
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
