package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/indexer"
	"github.com/dshills/livecontext-mcp/internal/searcher"
	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

type staticIndex struct {
	snap *vectorstore.Snapshot
}

func (s staticIndex) Snapshot() *vectorstore.Snapshot { return s.snap }
func (s staticIndex) Cached() bool                    { return true }

type staticStats struct{}

func (staticStats) Stats() indexer.Stats {
	return indexer.Stats{Passes: 3, Reindexed: 2, EmbedCalls: 5}
}

type queryEmbedder struct {
	err error
}

func (q queryEmbedder) Dimension() int { return 2 }

func (q queryEmbedder) Embed(ctx context.Context, _ embedder.Priority, text string) ([]float32, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []float32{1, 0}, nil
}

func testSnapshot() *vectorstore.Snapshot {
	login := &types.CodeChunk{
		ID: "src/auth/Login.tsx#LoginForm", FilePath: "src/auth/Login.tsx", Name: "LoginForm",
		Ordinal: 1, StartLine: 3, EndLine: 5, Subtype: types.SubtypeReactComponent,
		IsExported: true, DomainTags: []string{"authentication"}, PatternTags: []string{"form"},
	}
	client := &types.CodeChunk{
		ID: "src/api/client.ts#fetchUser", FilePath: "src/api/client.ts", Name: "fetchUser",
		Ordinal: 1, StartLine: 1, EndLine: 4, Subtype: types.SubtypeFunction,
		IsAsync: true, DomainTags: []string{"api"},
	}
	session := &types.CodeChunk{
		ID: "src/auth/session.ts#useSession", FilePath: "src/auth/session.ts", Name: "useSession",
		Ordinal: 1, StartLine: 1, EndLine: 4, Subtype: types.SubtypeHook,
		DomainTags: []string{"authentication"},
	}
	files := []*types.FileIndexEntry{
		{FilePath: login.FilePath, ChunkIDs: []string{login.ID}},
		{FilePath: client.FilePath, ChunkIDs: []string{client.ID}},
		{FilePath: session.FilePath, ChunkIDs: []string{session.ID}},
	}
	records := []*vectorstore.Record{
		vectorstore.NewRecord(login, []float32{1, 0}),
		vectorstore.NewRecord(client, []float32{0, 1}),
		vectorstore.NewRecord(session, []float32{0.6, 0.8}),
	}
	return vectorstore.NewSnapshot(files, records, 7, time.Now())
}

func newTestServer(t *testing.T, emb queryEmbedder) *Server {
	t.Helper()
	srch, err := searcher.NewSearcher(searcher.Config{Model: "test", Provider: "local"},
		staticIndex{snap: testSnapshot()}, emb, config.BundleMap{"auth": {"src/auth/**"}})
	require.NoError(t, err)
	s, err := NewServer(srch, staticStats{}, nil)
	require.NoError(t, err)
	return s
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServerRequiresSearcher(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)
}

func TestHandleSearchCode(t *testing.T) {
	s := newTestServer(t, queryEmbedder{})
	ctx := context.Background()

	res, err := s.handleSearchCode(ctx, call(map[string]interface{}{
		"query":          "login",
		"limit":          float64(5),
		"min_similarity": 0.5,
	}))
	require.NoError(t, err)

	out := decode(t, res)
	results := out["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "src/auth/Login.tsx#LoginForm", first["id"])
	assert.Equal(t, "react_component", first["subtype"])
	assert.EqualValues(t, 1, first["rank"])
	assert.InDelta(t, 1.0, first["similarity"], 1e-9)
	assert.EqualValues(t, 7, out["version"])

	res, err = s.handleSearchCode(ctx, call(map[string]interface{}{
		"query":   "login",
		"subtype": "hook",
	}))
	require.NoError(t, err)
	results = decode(t, res)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "src/auth/session.ts#useSession", results[0].(map[string]interface{})["id"])
}

func TestHandleSearchCodeErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		emb  queryEmbedder
		args map[string]interface{}
		code int
	}{
		{"missing query", queryEmbedder{}, map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", queryEmbedder{}, map[string]interface{}{"query": "  "}, ErrorCodeEmptyQuery},
		{"limit too large", queryEmbedder{}, map[string]interface{}{"query": "q", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"unknown subtype", queryEmbedder{}, map[string]interface{}{"query": "q", "subtype": "struct"}, ErrorCodeInvalidParams},
		{"model down", queryEmbedder{err: embedder.Unavailable(errors.New("offline"))}, map[string]interface{}{"query": "q"}, ErrorCodeEmbeddingUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.emb)
			_, err := s.handleSearchCode(ctx, call(tt.args))
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleSearchByTypeAndDomain(t *testing.T) {
	s := newTestServer(t, queryEmbedder{})
	ctx := context.Background()

	res, err := s.handleSearchByType(ctx, call(map[string]interface{}{"type": "function"}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.EqualValues(t, 1, out["total"])
	assert.Equal(t, "function", out["type"])

	_, err = s.handleSearchByType(ctx, call(map[string]interface{}{"type": "widget"}))
	requireCode(t, err, ErrorCodeInvalidParams)
	_, err = s.handleSearchByType(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	res, err = s.handleSearchByDomain(ctx, call(map[string]interface{}{"domain": "authentication"}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, decode(t, res)["total"])

	_, err = s.handleSearchByDomain(ctx, call(map[string]interface{}{"domain": ""}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t, queryEmbedder{})

	res, err := s.handleGetStatus(context.Background(), call(nil))
	require.NoError(t, err)
	out := decode(t, res)

	assert.EqualValues(t, 3, out["chunk_count"])
	assert.EqualValues(t, 3, out["file_count"])
	assert.Equal(t, "test", out["model_name"])
	assert.Equal(t, true, out["cached"])
	assert.EqualValues(t, 2, out["dimension"])
	assert.NotEmpty(t, out["updated_at"])
	indexerStats := out["indexer"].(map[string]interface{})
	assert.EqualValues(t, 5, indexerStats["embed_calls"])
}

func TestHandleGetProjection(t *testing.T) {
	s := newTestServer(t, queryEmbedder{})

	res, err := s.handleGetProjection(context.Background(), call(nil))
	require.NoError(t, err)
	out := decode(t, res)
	assert.EqualValues(t, 3, out["total"])
	point := out["points"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, point, "x")
	assert.Contains(t, point, "y")
	assert.Contains(t, point, "id")
}

func TestHandleSuggestBundles(t *testing.T) {
	s := newTestServer(t, queryEmbedder{})
	ctx := context.Background()

	res, err := s.handleSuggestBundles(ctx, call(map[string]interface{}{"path": "src/api/client.ts"}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Empty(t, out["suggestions"], "no tag overlap with the auth bundle")

	_, err = s.handleSuggestBundles(ctx, call(map[string]interface{}{"path": "nope.ts"}))
	requireCode(t, err, ErrorCodeNotIndexed)

	_, err = s.handleSuggestBundles(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)
}
