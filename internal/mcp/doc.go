// Package mcp implements the Model Context Protocol (MCP) server for the
// live code index.
//
// The server exposes six tools to AI coding assistants:
//   - search_code: semantic search with optional metadata filters
//   - search_by_type: every chunk of one subtype
//   - search_by_domain: every chunk with one domain tag
//   - get_status: index size, model and indexing counters
//   - get_projection: 2D projection of the embedding space
//   - suggest_bundles: bundles a file could join
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries protocol messages only.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "user authentication login",
//	    "limit": 5,
//	    "min_similarity": 0.2
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": "src/auth/Login.tsx#LoginForm",
//	      "subtype": "react_component",
//	      "domain_tags": ["authentication", "ui"],
//	      "similarity": 0.71,
//	      ...
//	    }
//	  ],
//	  "total": 1,
//	  "version": 42
//	}
//
// # Errors
//
// Failures are returned as *MCPError with a JSON-RPC code:
//
//	-32602  invalid parameters (unknown subtype, bad glob, limit out of range)
//	-32603  internal error
//	-32003  file not indexed
//	-32004  empty query
//	-32005  embedding model unavailable
package mcp
