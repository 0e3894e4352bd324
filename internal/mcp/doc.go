// Package mcp implements the Model Context Protocol (MCP) server for codesearch.
//
// The server exposes six tools to AI coding assistants:
//   - index_codebase: Index a source tree (incremental unless forced)
//   - search_code: Full-text search with heuristic re-ranking and caching
//   - invalidate_cache: Drop cached results for a workspace, file or document
//   - warm_cache: Pre-compute results for a list of queries
//   - cache_stats: Report cache and invalidation counters
//   - get_status: Report index statistics and health for a workspace
//
// # Transport
//
// MCP is JSON-RPC 2.0. The serve command speaks it over stdio by default
// and over streamable HTTP with --transport http. Logs always go to stderr
// because stdout carries the protocol.
//
//	codesearch serve
//	codesearch serve --transport http --addr :8080
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "UserService.save",
//	    "limit": 10,
//	    "field": "content",
//	    "explain": true,
//	    "scoring": {"factors": ["type_definition_boost"]}
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "doc_id": 42,
//	      "relevance_score": 9.7,
//	      "base_score": 0.97,
//	      "path": "src/UserService.java",
//	      "language": "java",
//	      "type_names": ["UserService"],
//	      "snippet": "public class UserService {"
//	    }
//	  ],
//	  "total_results": 1,
//	  "base_hits": 3,
//	  "cache_hit": false,
//	  "duration_ms": 2
//	}
//
// # Error Handling
//
// Handlers return *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Workspace path does not exist or is not a directory
//   - -32002: Index lock busy (another indexing run or warm-up)
//   - -32003: Workspace not indexed
//   - -32004: Empty query or a query with no searchable terms
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "codesearch": {
//	      "command": "/usr/local/bin/codesearch",
//	      "args": ["serve", "--watch", "/path/to/project"],
//	      "env": {
//	        "CODESEARCH_LOG_LEVEL": "info"
//	      }
//	    }
//	  }
//	}
package mcp
