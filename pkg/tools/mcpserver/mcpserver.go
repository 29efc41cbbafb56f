// Package mcpserver exposes toolbox tools over the Model Context Protocol so
// other agents can call the generation adapters directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Server serves tools over the MCP protocol using the official MCP Go SDK.
type Server struct {
	server *mcp.Server
}

// New creates a new Server with the given name and version.
func New(name, version string) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	return &Server{server: server}
}

// Register adds tools to the server.
func (s *Server) Register(tools ...toolbox.Tool) {
	for _, t := range tools {
		s.server.AddTool(toSDKTool(t), toSDKHandler(t))
	}
}

// ServeStdio serves requests on the process's stdin and stdout until ctx is
// cancelled or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

// Serve reads requests from in and writes responses to out. It blocks until
// ctx is cancelled or the transport closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

func (s *Server) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// toSDKHandler wraps a toolbox.Tool as an SDK ToolHandler. Results that are a
// JSON object are also returned as structured content.
func toSDKHandler(t toolbox.Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := zerolog.Ctx(ctx).With().Str("component", "mcpserver").Str("tool", t.Name).Logger()
		start := time.Now()

		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		result, err := t.Handler(ctx, args)
		if err != nil {
			log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("tool call failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		log.Debug().Dur("elapsed", time.Since(start)).Msg("tool call finished")

		out := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}

		var structured map[string]any
		if json.Unmarshal([]byte(result), &structured) == nil {
			out.StructuredContent = structured
		}

		return out, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
