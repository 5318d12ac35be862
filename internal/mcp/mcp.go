// Package mcp implements the Model Context Protocol server for hada.
//
// The MCP server exposes the same analysis pipeline as the HTTP API through
// MCP tools, a concerns resource and a review prompt, so MCP-compatible agents
// can check product ingredients without a separate client.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hada/internal/service/analysis"
)

// Server wraps the MCP server with hada's analysis service.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	analysisSvc  *analysis.Service
	maxBatchSize int
	logger       *slog.Logger
}

// New creates and configures a new MCP server with all tools, resources and prompts.
// maxBatchSize caps the ingredient count of one hada_analyze call; zero means no cap.
func New(analysisSvc *analysis.Service, maxBatchSize int, logger *slog.Logger, version string) *Server {
	s := &Server{
		analysisSvc:  analysisSvc,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hada",
		version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
