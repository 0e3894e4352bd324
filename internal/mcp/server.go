package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/searcher"
	"github.com/dshills/codesearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "codesearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	storage     storage.Engine
	indexer     *indexer.Indexer
	searcher    *searcher.Searcher
	indexConfig *indexer.Config
	logger      *slog.Logger
}

// NewServer creates a new MCP server instance. indexConfig supplies the
// defaults for index_codebase; the tool arguments override them per call.
func NewServer(store storage.Engine, idx *indexer.Indexer, srch *searcher.Searcher, indexConfig *indexer.Config, logger *slog.Logger) *Server {
	if indexConfig == nil {
		indexConfig = indexer.DefaultConfig()
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
		mcp:         mcpServer,
		storage:     store,
		indexer:     idx,
		searcher:    srch,
		indexConfig: indexConfig,
		logger:      logger,
	}
	s.registerTools()

	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the MCP protocol over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("MCP server listening on stdio", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, in, out)
}

// ServeHTTP runs the streamable HTTP transport on addr until ctx is cancelled
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := server.NewStreamableHTTPServer(s.mcp)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening", "transport", "http", "addr", addr)
		errCh <- httpSrv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(invalidateCacheTool(), s.handleInvalidateCache)
	s.mcp.AddTool(warmCacheTool(), s.handleWarmCache)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
