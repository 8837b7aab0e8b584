// Package mcp exposes SAPGuard operations as Model Context Protocol tools so
// external AI agents can submit plans and resolve confirmations.
package mcp

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/service"
)

// ServerDeps are the collaborators the MCP tools call into.
type ServerDeps struct {
	Plans    *service.PlanService
	Registry *capability.Registry
}

// Server wraps an mcp-go server with the SAPGuard tool surface.
type Server struct {
	mcpServer *mcpserver.MCPServer
	httpSrv   *mcpserver.StreamableHTTPServer
	deps      ServerDeps
}

// NewServer creates the MCP server and registers all tools.
func NewServer(name, version string, deps ServerDeps) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(name, version),
		deps:      deps,
	}
	s.registerTools()
	s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// Handler returns the streamable HTTP handler, mountable on any router.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}

// MCPServer exposes the underlying server for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
