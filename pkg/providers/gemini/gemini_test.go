package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/providers/gemini"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *gemini.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return gemini.New(srv.URL, "test-key", "gemini-test")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	return req
}

func modelReply(parts ...map[string]any) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content":      map[string]any{"role": "model", "parts": parts},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     10,
			"candidatesTokenCount": 5,
			"totalTokenCount":      15,
		},
	}
}

var generateVideo = toolbox.Tool{
	Name:        "generate_video",
	Description: "Generates a video",
	InputSchema: json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"prompt": {"type": "string"},
			"frames": {"type": "array", "items": {"type": "object", "additionalProperties": false}}
		}
	}`),
}

func TestComplete_SimpleText(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		req := readBody(t, r)

		si, ok := req["systemInstruction"].(map[string]any)
		require.True(t, ok)
		siParts, _ := si["parts"].([]any)
		require.Len(t, siParts, 1)
		assert.Equal(t, "You write stories.", siParts[0].(map[string]any)["text"])

		contents, _ := req["contents"].([]any)
		assert.Len(t, contents, 1)
		assert.NotContains(t, req, "toolConfig")

		writeJSON(t, w, modelReply(map[string]any{"text": "Once upon a time"}))
	})

	c := chat.New(
		message.NewText("system", role.System, "You write stories."),
		message.NewText("user", role.User, "A lighthouse keeper"),
	)

	msg, err := adapter.Complete(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, role.Assistant, msg.Role)
	assert.Equal(t, "Once upon a time", msg.TextContent())

	last, ok := adapter.Usage.Last()
	require.True(t, ok)
	assert.Equal(t, 10, last.InputTokens)
	assert.Equal(t, 5, last.OutputTokens)
}

func TestComplete_RolesAlternate(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		contents, _ := req["contents"].([]any)
		require.Len(t, contents, 3)
		assert.Equal(t, "user", contents[0].(map[string]any)["role"])
		assert.Equal(t, "model", contents[1].(map[string]any)["role"])
		assert.Equal(t, "user", contents[2].(map[string]any)["role"])

		first, _ := contents[0].(map[string]any)["parts"].([]any)
		assert.Len(t, first, 2, "consecutive user messages merge")

		writeJSON(t, w, modelReply(map[string]any{"text": "ok"}))
	})

	c := chat.New(
		message.NewText("user", role.User, "one"),
		message.NewText("user", role.User, "two"),
		message.NewText("model", role.Assistant, "three"),
		message.NewText("user", role.User, "four"),
	)

	_, err := adapter.Complete(context.Background(), c, nil)
	require.NoError(t, err)
}

func TestComplete_ToolCallRoundTrip(t *testing.T) {
	calls := 0

	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		req := readBody(t, r)

		if calls == 1 {
			tools, _ := req["tools"].([]any)
			require.Len(t, tools, 1)
			decls, _ := tools[0].(map[string]any)["functionDeclarations"].([]any)
			require.Len(t, decls, 1)
			assert.Equal(t, "generate_video", decls[0].(map[string]any)["name"])

			writeJSON(t, w, modelReply(map[string]any{
				"functionCall":     map[string]any{"name": "generate_video", "args": map[string]any{"prompt": "waves"}},
				"thoughtSignature": "sig-1",
			}))
			return
		}

		contents, _ := req["contents"].([]any)
		require.Len(t, contents, 3)

		modelParts, _ := contents[1].(map[string]any)["parts"].([]any)
		assert.Equal(t, "sig-1", modelParts[0].(map[string]any)["thoughtSignature"])

		toolParts, _ := contents[2].(map[string]any)["parts"].([]any)
		fr, _ := toolParts[0].(map[string]any)["functionResponse"].(map[string]any)
		assert.Equal(t, "generate_video", fr["name"])
		resp, _ := fr["response"].(map[string]any)
		assert.Equal(t, map[string]any{"uri": "gs://b/v.mp4"}, resp["result"])

		writeJSON(t, w, modelReply(map[string]any{"text": "Video ready."}))
	})

	c := chat.New(message.NewText("user", role.User, "make a video"))

	msg, err := adapter.Complete(context.Background(), c, []toolbox.Tool{generateVideo})
	require.NoError(t, err)

	tcs := msg.ToolCalls()
	require.Len(t, tcs, 1)
	assert.Equal(t, "generate_video", tcs[0].Name)
	assert.Contains(t, tcs[0].ID, "call_generate_video_")
	assert.JSONEq(t, `{"prompt":"waves"}`, tcs[0].Arguments)

	c.Append(msg)
	c.Append(message.New("tool", role.Tool, content.ToolResult{
		ToolCallID: tcs[0].ID,
		Content:    `{"uri":"gs://b/v.mp4"}`,
	}))

	msg, err = adapter.Complete(context.Background(), c, []toolbox.Tool{generateVideo})
	require.NoError(t, err)
	assert.Equal(t, "Video ready.", msg.TextContent())

	total := adapter.Usage.Total()
	assert.Equal(t, 20, total.InputTokens)
}

func TestComplete_SchemaSanitized(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		tools, _ := req["tools"].([]any)
		decls, _ := tools[0].(map[string]any)["functionDeclarations"].([]any)
		params, _ := decls[0].(map[string]any)["parameters"].(map[string]any)

		assert.NotContains(t, params, "$schema")
		assert.NotContains(t, params, "additionalProperties")

		props, _ := params["properties"].(map[string]any)
		frames, _ := props["frames"].(map[string]any)
		items, _ := frames["items"].(map[string]any)
		assert.NotContains(t, items, "additionalProperties")

		writeJSON(t, w, modelReply(map[string]any{"text": "ok"}))
	})

	_, err := adapter.Complete(context.Background(), chat.New(message.NewText("u", role.User, "hi")), []toolbox.Tool{generateVideo})
	require.NoError(t, err)
}

func TestCompleteWithChoice_Required(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		tc, ok := req["toolConfig"].(map[string]any)
		require.True(t, ok)
		fcc, _ := tc["functionCallingConfig"].(map[string]any)
		assert.Equal(t, "ANY", fcc["mode"])

		writeJSON(t, w, modelReply(map[string]any{
			"functionCall": map[string]any{"name": "generate_video", "args": map[string]any{}},
		}))
	})

	msg, err := adapter.CompleteWithChoice(context.Background(),
		chat.New(message.NewText("u", role.User, "go")),
		[]toolbox.Tool{generateVideo},
		modeladapter.ToolChoiceRequired,
	)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls(), 1)
	assert.JSONEq(t, `{}`, msg.ToolCalls()[0].Arguments)
}

func TestCompleteStructured(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		gc, _ := req["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", gc["responseMimeType"])
		rs, _ := gc["responseSchema"].(map[string]any)
		assert.Equal(t, "object", rs["type"])
		assert.NotContains(t, rs, "additionalProperties")
		assert.NotContains(t, req, "tools")

		writeJSON(t, w, modelReply(map[string]any{"text": `{"title":"Tides"}`}))
	})

	msg, err := adapter.CompleteStructured(context.Background(),
		chat.New(message.NewText("u", role.User, "story")),
		json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{"title":{"type":"string"}}}`),
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Tides"}`, msg.TextContent())
}

func TestComplete_ImageParts(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		contents, _ := req["contents"].([]any)
		parts, _ := contents[0].(map[string]any)["parts"].([]any)
		require.Len(t, parts, 3)

		inline, _ := parts[0].(map[string]any)["inlineData"].(map[string]any)
		assert.Equal(t, "image/png", inline["mimeType"])
		assert.Equal(t, "AQID", inline["data"])

		file, _ := parts[1].(map[string]any)["fileData"].(map[string]any)
		assert.Equal(t, "gs://b/assets/a/f.jpg", file["fileUri"])
		assert.Equal(t, "image/jpeg", file["mimeType"])

		assert.Equal(t, "describe", parts[2].(map[string]any)["text"])

		writeJSON(t, w, modelReply(map[string]any{"text": "two pictures"}))
	})

	c := chat.New(message.New("user", role.User,
		content.Image{Data: []byte{1, 2, 3}, MediaType: "image/png"},
		content.Image{URL: "gs://b/assets/a/f.jpg"},
		content.Text{Text: "describe"},
	))

	_, err := adapter.Complete(context.Background(), c, nil)
	require.NoError(t, err)
}

func TestComplete_ThoughtsSkipped(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, modelReply(
			map[string]any{"text": "planning...", "thought": true},
			map[string]any{"text": "answer"},
		))
	})

	msg, err := adapter.Complete(context.Background(), chat.New(message.NewText("u", role.User, "q")), nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", msg.TextContent())
}

func TestComplete_EmptyCandidates(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"candidates": []map[string]any{}})
	})

	_, err := adapter.Complete(context.Background(), chat.New(message.NewText("u", role.User, "Hi")), nil)
	assert.ErrorContains(t, err, "empty candidates")
}

func TestComplete_PromptBlocked(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}})
	})

	_, err := adapter.Complete(context.Background(), chat.New(message.NewText("u", role.User, "Hi")), nil)
	assert.ErrorContains(t, err, "prompt blocked: SAFETY")
}

func TestComplete_HTTPError(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := adapter.Complete(context.Background(), chat.New(message.NewText("u", role.User, "Hi")), nil)
	assert.ErrorContains(t, err, "401")
}
