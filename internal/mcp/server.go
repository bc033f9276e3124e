package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/livecontext-mcp/internal/indexer"
	"github.com/dshills/livecontext-mcp/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "livecontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// IndexStats reports indexing activity for get_status
type IndexStats interface {
	Stats() indexer.Stats
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	searcher *searcher.Searcher
	stats    IndexStats
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance. stats may be nil.
func NewServer(srch *searcher.Searcher, stats IndexStats, logger *slog.Logger) (*Server, error) {
	if srch == nil {
		return nil, errors.New("mcp: searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:      mcpServer,
		searcher: srch,
		stats:    stats,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("serving MCP on stdio", "server", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(searchByTypeTool(), s.handleSearchByType)
	s.mcp.AddTool(searchByDomainTool(), s.handleSearchByDomain)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(getProjectionTool(), s.handleGetProjection)
	s.mcp.AddTool(suggestBundlesTool(), s.handleSuggestBundles)
}
