package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/livecontext-mcp/internal/searcher"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeNotIndexed           = -32003 // File not indexed
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
	ErrorCodeEmbeddingUnavailable = -32005 // Embedding model cannot serve the query
)

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	req := searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Subtype:  getStringDefault(args, "subtype", ""),
		Domain:   getStringDefault(args, "domain", ""),
		Pattern:  getStringDefault(args, "pattern", ""),
		PathGlob: getStringDefault(args, "file_pattern", ""),
	}
	if v, ok := args["min_similarity"].(float64); ok {
		req.MinSimilarity = &v
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, s.queryError(err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		m := chunkJSON(r.Chunk)
		m["rank"] = r.Rank
		m["similarity"] = r.Similarity
		results[i] = m
	}

	response := map[string]interface{}{
		"query":       query,
		"results":     results,
		"total":       len(results),
		"version":     resp.Version,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchByType handles the search_by_type tool invocation
func (s *Server) handleSearchByType(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	subtype, ok := args["type"].(string)
	if !ok || subtype == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "type parameter is required", map[string]interface{}{
			"param":   "type",
			"reason":  "missing or empty",
			"allowed": types.AllSubtypes,
		})
	}

	results, err := s.searcher.SearchByType(subtype)
	if err != nil {
		return nil, s.queryError(err)
	}
	return mcp.NewToolResultText(formatJSON(filterResponse("type", subtype, results))), nil
}

// handleSearchByDomain handles the search_by_domain tool invocation
func (s *Server) handleSearchByDomain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	domain := getStringDefault(args, "domain", "")

	results, err := s.searcher.SearchByDomain(domain)
	if err != nil {
		return nil, s.queryError(err)
	}
	return mcp.NewToolResultText(formatJSON(filterResponse("domain", domain, results))), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.searcher.GetStatus()

	response := map[string]interface{}{
		"chunk_count":    status.ChunkCount,
		"file_count":     status.FileCount,
		"embedded_count": status.EmbeddedCount,
		"pending_count":  status.PendingCount,
		"model_name":     status.ModelName,
		"provider":       status.Provider,
		"dimension":      status.Dimension,
		"cached":         status.Cached,
		"version":        status.Version,
		"updated_at":     status.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if s.stats != nil {
		st := s.stats.Stats()
		response["indexer"] = map[string]interface{}{
			"passes":      st.Passes,
			"reindexed":   st.Reindexed,
			"discarded":   st.Discarded,
			"embed_calls": st.EmbedCalls,
			"persists":    st.Persists,
		}
	}

	hits, misses := s.searcher.CacheStats()
	response["query_cache"] = map[string]interface{}{
		"hits":   hits,
		"misses": misses,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetProjection handles the get_projection tool invocation
func (s *Server) handleGetProjection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	points, err := s.searcher.GetProjection(ctx)
	if err != nil {
		return nil, s.queryError(err)
	}

	out := make([]map[string]interface{}, len(points))
	for i, p := range points {
		m := chunkJSON(p.Chunk)
		m["x"] = p.X
		m["y"] = p.Y
		out[i] = m
	}

	response := map[string]interface{}{
		"points": out,
		"total":  len(out),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSuggestBundles handles the suggest_bundles tool invocation
func (s *Server) handleSuggestBundles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	suggestions, err := s.searcher.SuggestBundlesForFile(path)
	if err != nil {
		return nil, s.queryError(err)
	}

	out := make([]map[string]interface{}, len(suggestions))
	for i, b := range suggestions {
		out[i] = map[string]interface{}{
			"bundle": b.Bundle,
			"score":  b.Score,
		}
	}

	response := map[string]interface{}{
		"path":        path,
		"suggestions": out,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func filterResponse(key, value string, results []types.FilterResult) map[string]interface{} {
	out := make([]map[string]interface{}, len(results))
	for i, r := range results {
		out[i] = chunkJSON(r.Chunk)
	}
	return map[string]interface{}{
		key:       value,
		"results": out,
		"total":   len(out),
	}
}

// chunkJSON flattens chunk metadata for a tool response
func chunkJSON(c *types.CodeChunk) map[string]interface{} {
	return map[string]interface{}{
		"id":             c.ID,
		"file_path":      c.FilePath,
		"name":           c.Name,
		"subtype":        c.Subtype,
		"start_line":     c.StartLine,
		"end_line":       c.EndLine,
		"purpose":        c.Purpose,
		"domain_tags":    nonNil(c.DomainTags),
		"pattern_tags":   nonNil(c.PatternTags),
		"complexity":     c.Complexity.Level,
		"is_exported":    c.IsExported,
		"is_async":       c.IsAsync,
		"low_confidence": c.LowConfidence,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// queryError maps a query failure to an MCP error code
func (s *Server) queryError(err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", data)
	case errors.Is(err, types.ErrEmbeddingUnavailable):
		return newMCPError(ErrorCodeEmbeddingUnavailable, "embedding model unavailable", data)
	case errors.Is(err, searcher.ErrFileNotIndexed):
		return newMCPError(ErrorCodeNotIndexed, "file not indexed", data)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeInternalError, "request cancelled", data)
	}

	var qe *searcher.QueryError
	if errors.As(err, &qe) {
		return newMCPError(ErrorCodeInvalidParams, "invalid query", data)
	}
	s.logger.Error("tool call failed", "error", err)
	return newMCPError(ErrorCodeInternalError, "internal error", data)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
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

// arguments returns the tool arguments as a map; anything else is treated
// as no arguments
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
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
