// Package mcpclient imports tools from external MCP servers so the story
// stage can consult them while writing.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes how to reach one MCP server. Either Command or URL
// must be set.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
}

// Client communicates with an MCP server using the official MCP Go SDK.
type Client struct {
	name    string
	session *mcp.ClientSession
}

// Connect spawns or dials the configured server and returns a connected client.
func Connect(ctx context.Context, cfg ServerConfig) (*Client, error) {
	switch {
	case cfg.URL != "":
		return newFromTransport(ctx, cfg.Name, &mcp.SSEClientTransport{Endpoint: cfg.URL})
	case cfg.Command != "":
		cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec // command comes from the operator's config
		if len(cfg.Env) > 0 {
			cmd.Env = append(os.Environ(), envList(cfg.Env)...)
		}
		return newFromTransport(ctx, cfg.Name, &mcp.CommandTransport{Command: cmd})
	default:
		return nil, fmt.Errorf("mcpclient: server %q: command or url is required", cfg.Name)
	}
}

func newFromTransport(ctx context.Context, name string, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "director",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect %s: %w", name, err)
	}

	return &Client{name: name, session: session}, nil
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// ListTools fetches the server's tools as toolbox.Tool values whose handlers
// call back through CallTool.
func (c *Client) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list tools: %w", err)
	}

	tools := make([]toolbox.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		t, err := c.fromSDKTool(sdkTool)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: convert tool %q: %w", sdkTool.Name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}

// CallTool calls a named tool on the server with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: unmarshal arguments: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcpclient: call tool: %w", err)
	}

	text := resultText(result)

	if result.IsError {
		return "", fmt.Errorf("mcpclient: tool error: %s", text)
	}

	return text, nil
}

// Close terminates the session. For command servers the SDK also stops the
// subprocess.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) fromSDKTool(sdkTool *mcp.Tool) (toolbox.Tool, error) {
	schemaBytes, err := json.Marshal(sdkTool.InputSchema)
	if err != nil {
		return toolbox.Tool{}, fmt.Errorf("marshal input schema: %w", err)
	}

	name := sdkTool.Name

	return toolbox.Tool{
		Name:        name,
		Description: sdkTool.Description,
		InputSchema: json.RawMessage(schemaBytes),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			return c.CallTool(ctx, name, input)
		},
	}, nil
}

// resultText joins the text items of a result. A result with only structured
// content is returned as its JSON encoding.
func resultText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	if len(texts) == 0 && result.StructuredContent != nil {
		if b, err := json.Marshal(result.StructuredContent); err == nil {
			return string(b)
		}
	}

	return strings.Join(texts, "\n")
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
