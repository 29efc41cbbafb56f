// Package tools provides the tool layer the pipeline's agents call through.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/director/pkg/tools/toolbox]: Tool type, typed tool constructor and ToolBox
//   - [github.com/germanamz/director/pkg/tools/schema]: JSON Schema clean-up applied before schemas reach a provider
//   - [github.com/germanamz/director/pkg/tools/web]: web page and web image content tools
//   - [github.com/germanamz/director/pkg/tools/mcpclient]: imports tools from external MCP servers
//   - [github.com/germanamz/director/pkg/tools/mcpserver]: exposes tools over the MCP protocol
//
// The toolbox sub-package is the foundation layer; every other sub-package
// depends on it for the Tool type.
package tools
