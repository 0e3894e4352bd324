package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a source tree so it can be searched. Unchanged files are skipped unless force_reindex is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index all files ignoring file hashes (full rebuild)",
					"default":     false,
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index test files",
					"default":     true,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index vendor/ and node_modules/",
					"default":     false,
				},
				"exclude_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns of workspace-relative paths to skip (e.g., 'gen/**')",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search an indexed workspace. Identifiers, qualified names and operators are matched as written; results are re-ranked by path, type definitions, interface implementations and recency.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the indexed workspace",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (identifiers, code fragments or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"field": map[string]interface{}{
					"type":        "string",
					"description": "Indexed field to match: content, symbols (declared names) or patterns (whitespace-delimited code)",
					"enum":        []string{"content", "symbols", "patterns"},
					"default":     "content",
				},
				"match_any": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, match documents containing any query term instead of all",
					"default":     false,
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, bypass the result cache",
					"default":     true,
				},
				"explain": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include a per-factor score breakdown for each result",
					"default":     false,
				},
				"scoring": map[string]interface{}{
					"type":        "object",
					"description": "Optional re-ranking controls",
					"properties": map[string]interface{}{
						"disabled": map[string]interface{}{
							"type":        "boolean",
							"description": "Rank by the text match score only",
						},
						"factors": map[string]interface{}{
							"type":        "array",
							"description": "Only apply these factors",
							"items": map[string]interface{}{
								"type": "string",
								"enum": []string{"path_relevance", "type_definition_boost", "interface_implementation", "temporal"},
							},
						},
					},
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// invalidateCacheTool returns the tool definition for invalidate_cache
func invalidateCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "invalidate_cache",
		Description: "Drop cached search results that depend on a workspace, a file or a document id. With all=true the whole cache is cleared.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "What changed",
					"enum":        []string{"workspace", "file", "record"},
					"default":     "workspace",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute workspace or file path (workspace and file kinds)",
				},
				"record_id": map[string]interface{}{
					"type":        "integer",
					"description": "Document id (record kind)",
				},
				"all": map[string]interface{}{
					"type":        "boolean",
					"description": "Clear every cached result",
					"default":     false,
				},
			},
		},
	}
}

// warmCacheTool returns the tool definition for warm_cache
func warmCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "warm_cache",
		Description: "Run a list of queries against an indexed workspace and cache the results ahead of use",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the indexed workspace",
				},
				"queries": map[string]interface{}{
					"type":        "array",
					"description": "Queries to pre-compute",
					"items":       map[string]interface{}{"type": "string"},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Result limit used for every query (1-100)",
					"default":     10,
				},
			},
			Required: []string{"path", "queries"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report cache hit rates, sizes and invalidation counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a workspace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace",
				},
			},
			Required: []string{"path"},
		},
	}
}
