package embedder

import (
	"context"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache gets a non-positive size
const DefaultCacheSize = 10000

type cacheKey struct {
	model string
	sum   uint64
}

// Cache keeps recently computed vectors keyed by model and the xxhash of the
// embedded text. A chunk whose embedding text survives an edit, or a query
// asked twice, costs no model call. Vectors are copied in and out.
type Cache struct {
	entries *lru.Cache[cacheKey, []float32]
}

// NewCache creates a cache holding at most size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size
	entries, _ := lru.New[cacheKey, []float32](size)
	return &Cache{entries: entries}
}

func (c *Cache) lookup(model, text string) ([]float32, bool) {
	v, ok := c.entries.Get(cacheKey{model: model, sum: xxhash.Sum64String(text)})
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

func (c *Cache) store(model, text string, v []float32) {
	c.entries.Add(cacheKey{model: model, sum: xxhash.Sum64String(text)}, slices.Clone(v))
}

// embedCached answers hits from c and sends only the remaining texts to
// embed. A nil cache forwards everything.
func embedCached(ctx context.Context, c *Cache, model string, texts []string,
	embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if c == nil {
		return embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, text := range texts {
		if v, ok := c.lookup(model, text); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrProviderFailed, len(missing), len(vectors))
	}
	for j, v := range vectors {
		out[slots[j]] = v
		c.store(model, missing[j], v)
	}
	return out, nil
}
