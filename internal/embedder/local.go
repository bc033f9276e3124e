package embedder

import (
	"context"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/livecontext-mcp/internal/tokenize"
)

// stopWords are JavaScript keywords and English function words that carry
// no topical signal
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "and": true, "or": true, "in": true, "is": true,
	"const": true, "let": true, "var": true, "function": true, "return": true, "export": true, "import": true,
	"from": true, "default": true, "if": true, "else": true, "new": true, "this": true, "true": true,
	"false": true, "null": true, "undefined": true, "await": true, "async": true,
}

// LocalProvider is a deterministic feature-hashing embedder that needs no
// model download or network access. Each word stem of the input is hashed
// into one of LocalDimension buckets and weighted by 1+ln(tf); the result is
// L2-normalized. Texts sharing vocabulary have a high cosine similarity.
type LocalProvider struct {
	modelInfo
}

// NewLocalProvider creates a new local embedder. Hashing is cheaper than a
// cache lookup, so it takes no cache.
func NewLocalProvider() *LocalProvider {
	l := &LocalProvider{}
	l.provider = ProviderLocal
	l.model = DefaultLocalModel
	return l
}

func (l *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(err)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = HashingVector(text, LocalDimension)
	}
	l.observe(vectors)
	return vectors, nil
}

func (l *LocalProvider) Close() error {
	return nil
}

// HashingVector computes the feature-hashing embedding of text
func HashingVector(text string, dim int) []float32 {
	tf := make(map[string]int)
	for _, w := range tokenize.Words(text) {
		if stopWords[w] {
			continue
		}
		tf[tokenize.Stem(w)]++
	}

	vector := make([]float32, dim)
	if len(tf) == 0 {
		// a text without features still gets a stable non-zero vector
		vector[xxhash.Sum64String(text)%uint64(dim)] = 1
		return vector
	}

	// sum in a fixed order so colliding features give identical bits every run
	features := make([]string, 0, len(tf))
	for f := range tf {
		features = append(features, f)
	}
	sort.Strings(features)

	acc := make([]float64, dim)
	for _, f := range features {
		acc[xxhash.Sum64String(f)%uint64(dim)] += 1 + math.Log(float64(tf[f]))
	}
	for i, v := range acc {
		vector[i] = float32(v)
	}
	return normalize(vector)
}
