package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

func textTool(name, text string, err error) serverTool {
	return serverTool{
		tool: &mcp.Tool{Name: name, Description: "returns " + text, InputSchema: json.RawMessage(`{"type":"object"}`)},
		handler: func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err != nil {
				return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}}, IsError: true}, nil
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
		},
	}
}

func connect(t *testing.T, tools ...serverTool) *Client {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)
	for _, st := range tools {
		server.AddTool(st.tool, st.handler)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client, err := newFromTransport(ctx, "research", clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestListToolsRoundTrip(t *testing.T) {
	client := connect(t, textTool("lookup", "found it", nil))

	assert.Equal(t, "research", client.Name())

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tools[0].InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])

	out, err := tools[0].Handler(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "found it", out)
}

func TestCallToolError(t *testing.T) {
	client := connect(t, textTool("fail", "", errors.New("something went wrong")))

	text, err := client.CallTool(context.Background(), "fail", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something went wrong")
	assert.Empty(t, text)
}

func TestCallToolInvalidArguments(t *testing.T) {
	client := connect(t, textTool("lookup", "x", nil))

	_, err := client.CallTool(context.Background(), "lookup", json.RawMessage(`[1,2]`))
	assert.ErrorContains(t, err, "unmarshal arguments")
}

func TestConnectRequiresTarget(t *testing.T) {
	_, err := Connect(context.Background(), ServerConfig{Name: "empty"})
	assert.ErrorContains(t, err, "command or url is required")
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name:   "single text",
			result: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "hello"}}},
			want:   "hello",
		},
		{
			name: "multiple text",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "a"},
				&mcp.TextContent{Text: "b"},
			}},
			want: "a\nb",
		},
		{
			name:   "structured only",
			result: &mcp.CallToolResult{StructuredContent: map[string]any{"uri": "gs://b/x.png"}},
			want:   `{"uri":"gs://b/x.png"}`,
		},
		{
			name:   "empty",
			result: &mcp.CallToolResult{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultText(tt.result))
		})
	}
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
}
