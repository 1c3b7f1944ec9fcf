package mcp

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport for this server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
// Claims and the bearer token placed on the request by the auth middleware
// are carried into tool handler contexts.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(carryAuth),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

func carryAuth(ctx context.Context, r *http.Request) context.Context {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		return ctx
	}
	token, _ := auth.GetToken(r.Context())
	return auth.WithAuth(ctx, claims, token)
}
