package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

func subtypeEnum() []string {
	out := make([]string, len(types.AllSubtypes))
	for i, st := range types.AllSubtypes {
		out[i] = string(st)
	}
	return out
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over the indexed JavaScript/TypeScript chunks using a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query in natural language",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_similarity": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity of returned chunks (-1.0 to 1.0)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"subtype": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks of this kind",
					"enum":        subtypeEnum(),
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks carrying this domain tag",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks carrying this pattern tag",
				},
				"file_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern for file paths (e.g., 'src/auth/**')",
				},
			},
			Required: []string{"query"},
		},
	}
}

// searchByTypeTool returns the tool definition for search_by_type
func searchByTypeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_by_type",
		Description: "List every indexed chunk of one kind (function, react_component, hook, ...)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Chunk kind",
					"enum":        subtypeEnum(),
				},
			},
			Required: []string{"type"},
		},
	}
}

// searchByDomainTool returns the tool definition for search_by_domain
func searchByDomainTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_by_domain",
		Description: "List every indexed chunk tagged with a domain (e.g., authentication, api)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Domain tag",
				},
			},
			Required: []string{"domain"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index size, embedding model and indexing activity",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getProjectionTool returns the tool definition for get_projection
func getProjectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_projection",
		Description: "2D PCA projection of all chunk embeddings, for visualizing the code map",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// suggestBundlesTool returns the tool definition for suggest_bundles
func suggestBundlesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest_bundles",
		Description: "Rank the bundles a file could join by overlap of domain and pattern tags",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the indexed root",
				},
			},
			Required: []string{"path"},
		},
	}
}
