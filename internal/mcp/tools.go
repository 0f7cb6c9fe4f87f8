// Package mcp exposes flowchart generation as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "codeflow"

// NewServer returns a stdio-ready MCP server with every codeflow tool
// registered.
func NewServer(version string, h *HandlerSet) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
	RegisterTools(s, h)
	return s
}

// RegisterTools registers all codeflow MCP tools with the server
func RegisterTools(s *server.MCPServer, h *HandlerSet) {
	s.AddTool(mcp.NewTool("flowchart",
		mcp.WithDescription("Build the control-flow flowchart of one Python, TypeScript or JavaScript function"),
		mcp.WithString("path",
			mcp.Description("Source file to read. Either path or source is required")),
		mcp.WithString("source",
			mcp.Description("Inline source text, used instead of path")),
		mcp.WithString("language",
			mcp.Description("Language of inline source: python, typescript, tsx or javascript")),
		mcp.WithString("function",
			mcp.Description("Bound or qualified function name, e.g. Shape.area")),
		mcp.WithNumber("line",
			mcp.Description("1-based line inside the target function")),
		mcp.WithNumber("column",
			mcp.Description("1-based column inside the target function (default: 1)")),
		mcp.WithNumber("offset",
			mcp.Description("Byte offset inside the target function; wins over line")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "dot", "json", "text"),
			mcp.Description("Output format (default: mermaid)")),
		mcp.WithString("direction",
			mcp.Description("Layout direction for mermaid and dot: TD, LR, BT or RL")),
	), h.HandleFlowchart)

	s.AddTool(mcp.NewTool("list_functions",
		mcp.WithDescription("List the functions that can be charted in a source file"),
		mcp.WithString("path",
			mcp.Description("Source file to read. Either path or source is required")),
		mcp.WithString("source",
			mcp.Description("Inline source text, used instead of path")),
		mcp.WithString("language",
			mcp.Description("Language of inline source")),
	), h.HandleListFunctions)
}
