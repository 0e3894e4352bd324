package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/searcher"
	"github.com/dshills/codesearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not a readable directory
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation holds the index lock
	ErrorCodeNotIndexed         = -32003 // Workspace not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	config := *s.indexConfig
	config.Force = getBoolDefault(args, "force_reindex", false)
	config.IncludeTests = getBoolDefault(args, "include_tests", config.IncludeTests)
	config.IncludeVendor = getBoolDefault(args, "include_vendor", config.IncludeVendor)
	if patterns, ok := getStringSlice(args, "exclude_patterns"); ok {
		config.ExcludePatterns = append(append([]string{}, config.ExcludePatterns...), patterns...)
	}
	if err := config.Validate(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid exclude_patterns", map[string]interface{}{
			"param":  "exclude_patterns",
			"reason": err.Error(),
		})
	}

	stats, err := s.indexer.IndexWorkspace(ctx, path, &config)
	if err != nil {
		return nil, indexError(err)
	}

	response := map[string]interface{}{
		"indexed":       true,
		"path":          path,
		"files_indexed": stats.FilesIndexed,
		"files_skipped": stats.FilesSkipped,
		"files_failed":  stats.FilesFailed,
		"files_removed": stats.FilesRemoved,
		"duration_ms":   stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	field := analysis.FieldKind(getStringDefault(args, "field", string(analysis.FieldContent)))
	switch field {
	case analysis.FieldContent, analysis.FieldSymbols, analysis.FieldPatterns:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid field", map[string]interface{}{
			"param":   "field",
			"value":   field,
			"allowed": []string{"content", "symbols", "patterns"},
		})
	}

	if err := s.requireIndexed(ctx, path); err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Workspace: path,
		Query:     query,
		Limit:     limit,
		Field:     field,
		MatchAny:  getBoolDefault(args, "match_any", false),
		Scoring:   scoringOptions(args),
		UseCache:  getBoolDefault(args, "use_cache", true),
		Explain:   getBoolDefault(args, "explain", false),
	})
	if err != nil {
		return nil, searchError(err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"rank":            r.Rank,
			"doc_id":          r.DocID,
			"relevance_score": r.RelevanceScore,
			"base_score":      r.BaseScore,
			"path":            r.Path,
			"language":        r.Language,
			"snippet":         r.Snippet,
		}
		if len(r.TypeNames) > 0 {
			item["type_names"] = r.TypeNames
		}
		if r.Explanation != nil {
			item["explanation"] = r.Explanation
		}
		results = append(results, item)
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"base_hits":     resp.BaseHits,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleInvalidateCache handles the invalidate_cache tool invocation
func (s *Server) handleInvalidateCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	if getBoolDefault(args, "all", false) {
		s.searcher.ClearCache()
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"cleared": true,
		})), nil
	}

	var ev invalidation.Event
	kind := getStringDefault(args, "kind", "workspace")
	switch kind {
	case "workspace", "file":
		path, ok := args["path"].(string)
		if !ok || path == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
				"param":  "path",
				"reason": "missing or empty",
			})
		}
		if !filepath.IsAbs(path) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": ErrPathNotAbsolute.Error(),
			})
		}
		ev = invalidation.Event{Kind: invalidation.WorkspaceChanged, Path: path}
		if kind == "file" {
			ev.Kind = invalidation.FileChanged
		}
	case "record":
		id := getIntDefault(args, "record_id", 0)
		if id <= 0 {
			return nil, newMCPError(ErrorCodeInvalidParams, "record_id must be a positive document id", map[string]interface{}{
				"param": "record_id",
				"value": id,
			})
		}
		ev = invalidation.Event{Kind: invalidation.RecordChanged, RecordID: int64(id)}
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
			"param":   "kind",
			"value":   kind,
			"allowed": []string{"workspace", "file", "record"},
		})
	}

	before := s.searcher.Stats().Invalidation
	if err := s.searcher.Invalidate(ctx, ev); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "invalidation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	after := s.searcher.Stats()

	response := map[string]interface{}{
		"kind":        ev.Kind.String(),
		"invalidated": after.Invalidation.Invalidated - before.Invalidated,
		"pending":     after.Invalidation.Pending,
		"strategy":    after.Strategy,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleWarmCache handles the warm_cache tool invocation
func (s *Server) handleWarmCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	queries, ok := getStringSlice(args, "queries")
	if !ok || len(queries) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "queries parameter is required", map[string]interface{}{
			"param":  "queries",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	if err := s.requireIndexed(ctx, path); err != nil {
		return nil, err
	}

	start := time.Now()
	warmed, err := s.searcher.WarmUp(ctx, path, queries, limit)
	if err != nil {
		return nil, indexError(err)
	}

	response := map[string]interface{}{
		"warmed":      warmed,
		"requested":   len(queries),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.searcher.Stats()
	response := map[string]interface{}{
		"cache":        st.Cache,
		"hit_rate":     st.HitRate,
		"invalidation": st.Invalidation,
		"strategy":     st.Strategy,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	status, err := s.storage.Stats(ctx, path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if status.Documents == 0 {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Workspace not indexed. Use index_codebase tool to index this workspace.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response := map[string]interface{}{
		"indexed": true,
		"workspace": map[string]interface{}{
			"path":            status.Workspace,
			"last_indexed_at": status.LastIndexedAt.Format(time.RFC3339),
		},
		"statistics": map[string]interface{}{
			"documents":     status.Documents,
			"total_bytes":   status.TotalBytes,
			"index_size_mb": fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"fts_index_built":     status.Health.FTSIndexBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// requireIndexed fails with ErrorCodeNotIndexed when path has no documents
func (s *Server) requireIndexed(ctx context.Context, path string) error {
	status, err := s.storage.Stats(ctx, path)
	if err != nil {
		return newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if status.Documents == 0 {
		return newMCPError(ErrorCodeNotIndexed, "workspace not indexed", map[string]interface{}{
			"path": path,
			"hint": "run index_codebase first",
		})
	}
	return nil
}

// requirePath extracts and validates the path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) {
			code = ErrorCodeProjectNotFound
		}
		return "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// indexError maps indexer and lock failures to MCP errors
func indexError(err error) error {
	switch {
	case lock.IsRetryable(err):
		return newMCPError(ErrorCodeIndexingInProgress, "index is busy, retry later", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, indexer.ErrNotDirectory):
		return newMCPError(ErrorCodeProjectNotFound, "workspace is not a directory", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "operation failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// searchError maps searcher failures to MCP errors
func searchError(err error) error {
	switch {
	case errors.Is(err, types.ErrEmptyQuery), errors.Is(err, types.ErrNoAnalyzedTerms):
		return newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", map[string]interface{}{
			"param":  "query",
			"reason": err.Error(),
		})
	case errors.Is(err, searcher.ErrUnknownFactor):
		return newMCPError(ErrorCodeInvalidParams, "invalid scoring", map[string]interface{}{
			"param":  "scoring",
			"reason": err.Error(),
		})
	case errors.Is(err, searcher.ErrUnknownField):
		return newMCPError(ErrorCodeInvalidParams, "invalid field", map[string]interface{}{
			"param":  "field",
			"reason": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// scoringOptions reads the optional scoring object
func scoringOptions(args map[string]interface{}) *searcher.ScoringOptions {
	raw, ok := args["scoring"].(map[string]interface{})
	if !ok {
		return nil
	}
	opts := &searcher.ScoringOptions{
		Disabled: getBoolDefault(raw, "disabled", false),
	}
	opts.Factors, _ = getStringSlice(raw, "factors")
	return opts
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter. JSON arrays decode as
// []interface{}; non-string items are skipped.
func getStringSlice(args map[string]interface{}, key string) ([]string, bool) {
	switch val := args[key].(type) {
	case []string:
		return val, true
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
