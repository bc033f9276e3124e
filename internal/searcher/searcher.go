package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// ErrFileNotIndexed is returned for bundle suggestions on an unknown file
var ErrFileNotIndexed = errors.New("file not indexed")

// Index gives read access to the published snapshot
type Index interface {
	Snapshot() *vectorstore.Snapshot
	Cached() bool
}

// QueryEmbedder embeds query text. *embedder.Queue implements it.
type QueryEmbedder interface {
	Embed(ctx context.Context, p embedder.Priority, text string) ([]float32, error)
	Dimension() int
}

// BundleProvider reports the bundles a file belongs to
type BundleProvider interface {
	BundlesForFile(path string) []string
}

// QueryError is the single error type returned by query operations
type QueryError struct {
	Op    string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Config holds query defaults and the embedding model name reported by
// GetStatus
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	MinSimilarity float64
	CacheSize     int

	Provider string
	Model    string
}

// ConfigFrom converts the application search settings
func ConfigFrom(c config.SearchConfig) Config {
	return Config{
		DefaultLimit:  c.DefaultLimit,
		MaxLimit:      c.MaxLimit,
		MinSimilarity: c.MinSimilarity,
		CacheSize:     c.CacheSize,
	}
}

// SearchRequest contains parameters for a semantic search
type SearchRequest struct {
	Query         string
	Limit         int
	MinSimilarity *float64 // nil uses the configured default

	// Optional filters, combined with AND
	Subtype  string
	Domain   string
	Pattern  string
	PathGlob string
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results  []types.SearchResult
	Version  uint64 // snapshot the results were computed from
	Duration time.Duration
	CacheHit bool
}

type cacheKey struct {
	query    string
	limit    int
	min      float64
	subtype  string
	domain   string
	pattern  string
	pathGlob string
	version  uint64
}

// Searcher answers queries against the latest published snapshot. It is
// safe for concurrent use.
type Searcher struct {
	index    Index
	embedder QueryEmbedder
	bundles  BundleProvider
	cfg      Config
	cache    *lru.Cache[cacheKey, []types.SearchResult]

	projection atomic.Pointer[projection]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSearcher creates a new Searcher. bundles may be nil.
func NewSearcher(cfg Config, index Index, emb QueryEmbedder, bundles BundleProvider) (*Searcher, error) {
	if index == nil || emb == nil {
		return nil, errors.New("searcher: index and embedder are required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	cache, err := lru.New[cacheKey, []types.SearchResult](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Searcher{
		index:    index,
		embedder: emb,
		bundles:  bundles,
		cfg:      cfg,
		cache:    cache,
	}, nil
}

// Search embeds the query text and ranks every embedded chunk of one
// snapshot by cosine similarity
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)

	filter, key, err := s.validateRequest(query, &req)
	if err != nil {
		return nil, &QueryError{Op: "search", Query: query, Err: err}
	}

	snap := s.index.Snapshot()
	key.version = snap.Version()

	if cached, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return &SearchResponse{
			Results:  append([]types.SearchResult(nil), cached...),
			Version:  key.version,
			Duration: time.Since(start),
			CacheHit: true,
		}, nil
	}
	s.misses.Add(1)

	vec, err := s.embedder.Embed(ctx, embedder.PriorityInteractive, query)
	if err != nil {
		return nil, &QueryError{Op: "search", Query: query, Err: err}
	}

	results := snap.Search(vec, key.limit, key.min, filter)
	s.cache.Add(key, results)

	return &SearchResponse{
		Results:  append([]types.SearchResult(nil), results...),
		Version:  key.version,
		Duration: time.Since(start),
	}, nil
}

// validateRequest applies defaults and builds the filter and cache key
func (s *Searcher) validateRequest(query string, req *SearchRequest) (vectorstore.Filter, cacheKey, error) {
	key := cacheKey{query: query}
	if query == "" {
		return nil, key, types.ErrEmptyQuery
	}

	key.limit = req.Limit
	if key.limit <= 0 {
		key.limit = s.cfg.DefaultLimit
	}
	key.limit = min(key.limit, s.cfg.MaxLimit)

	key.min = s.cfg.MinSimilarity
	if req.MinSimilarity != nil {
		key.min = *req.MinSimilarity
	}
	if key.min < -1 || key.min > 1 {
		return nil, key, fmt.Errorf("min similarity %v outside [-1, 1]", key.min)
	}

	var filters []vectorstore.Filter
	if req.Subtype != "" {
		st, err := types.ParseSubtype(req.Subtype)
		if err != nil {
			return nil, key, fmt.Errorf("%w: %s", err, req.Subtype)
		}
		key.subtype = string(st)
		filters = append(filters, vectorstore.BySubtype(st))
	}
	if req.Domain != "" {
		key.domain = req.Domain
		filters = append(filters, vectorstore.ByDomain(req.Domain))
	}
	if req.Pattern != "" {
		key.pattern = req.Pattern
		filters = append(filters, vectorstore.ByPattern(req.Pattern))
	}
	if req.PathGlob != "" {
		f, err := vectorstore.ByPathGlob(req.PathGlob)
		if err != nil {
			return nil, key, err
		}
		key.pathGlob = req.PathGlob
		filters = append(filters, f)
	}

	if len(filters) == 0 {
		return nil, key, nil
	}
	return vectorstore.All(filters...), key, nil
}

// SearchByType returns every chunk of the given subtype
func (s *Searcher) SearchByType(subtype string) ([]types.FilterResult, error) {
	st, err := types.ParseSubtype(subtype)
	if err != nil {
		return nil, &QueryError{Op: "search by type", Query: subtype, Err: err}
	}
	return s.index.Snapshot().SearchByType(st), nil
}

// SearchByDomain returns every chunk tagged with domain
func (s *Searcher) SearchByDomain(domain string) ([]types.FilterResult, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, &QueryError{Op: "search by domain", Err: types.ErrEmptyDomain}
	}
	return s.index.Snapshot().SearchByDomain(domain), nil
}

// GetStatus summarizes the current snapshot. The dimension is read from the
// stored vectors; before anything is embedded it is the embedder's.
func (s *Searcher) GetStatus() types.IndexStatus {
	snap := s.index.Snapshot()
	embedded := snap.EmbeddedCount()
	dim := snap.Dimension()
	if dim == 0 {
		dim = s.embedder.Dimension()
	}
	return types.IndexStatus{
		ChunkCount:    snap.Len(),
		FileCount:     snap.FileCount(),
		EmbeddedCount: embedded,
		PendingCount:  snap.Len() - embedded,
		ModelName:     s.cfg.Model,
		Provider:      s.cfg.Provider,
		Dimension:     dim,
		Cached:        s.index.Cached(),
		Version:       snap.Version(),
		UpdatedAt:     snap.CreatedAt(),
	}
}

// CacheStats returns the result cache hit and miss counts
func (s *Searcher) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
