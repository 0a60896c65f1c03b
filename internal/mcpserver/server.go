// Package mcpserver exposes the engine as MCP tools over stdio. Each tool
// maps onto exactly one engine operation and renders its result as JSON
// text; errors become tool error results carrying a remediation hint.
package mcpserver

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// ServerName is advertised to MCP clients.
const ServerName = "driftguard"

// Server wraps an MCP server bound to one engine.
type Server struct {
	mcp    *server.MCPServer
	tools  *Tools
	logger *logging.Logger
}

// New creates the MCP server and registers every tool.
func New(eng *engine.Engine, version string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	tools := NewTools(eng, logger)
	for _, reg := range tools.Registrations() {
		s.AddTool(reg.Tool, reg.Handler)
	}
	return &Server{mcp: s, tools: tools, logger: logger}
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in/out until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio", "tools", len(s.tools.Registrations()))
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// Registration pairs a tool definition with its handler.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

const instructions = `driftguard keeps coding agents on task.
Workflow: dg_initialize, then dg_propose_task with a checklist and scopes,
dg_claim_scope for the files you will edit, dg_report_intent before each
change, dg_verify and dg_explain_change to review it, and dg_checkpoint to
record progress and release claims. Call dg_panic when lost; dg_reset
recovers.`
