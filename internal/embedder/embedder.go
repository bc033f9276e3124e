package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")

	// ErrProviderFailed is recoverable: it matches types.ErrEmbeddingUnavailable
	ErrProviderFailed = fmt.Errorf("embedding provider failed: %w", types.ErrEmbeddingUnavailable)
)

// Embedder turns chunk and query text into vectors
type Embedder interface {
	// Embed returns one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of the vectors the model returns. It is 0
	// for an unfamiliar model until the first successful Embed.
	Dimension() int

	Provider() string
	Model() string
	Close() error
}

// knownDimensions seeds Dimension before a model has answered
var knownDimensions = map[string]int{
	DefaultLocalModel:              LocalDimension,
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"jina-embeddings-v3":           1024,
	"jina-embeddings-v2-base-code": 768,
	"nomic-embed-text":             768,
	"mxbai-embed-large":            1024,
	"all-minilm":                   384,
}

// modelInfo describes the model behind a provider. The dimension it reports
// is the length of the vectors last returned, so a configured model the
// table does not know, or knows wrongly, is still described correctly.
type modelInfo struct {
	provider string
	model    string
	observed atomic.Int64
}

func (m *modelInfo) Provider() string { return m.provider }
func (m *modelInfo) Model() string    { return m.model }

func (m *modelInfo) Dimension() int {
	if n := m.observed.Load(); n > 0 {
		return int(n)
	}
	return knownDimensions[m.model]
}

// observe records the length of the first non-empty vector
func (m *modelInfo) observe(vectors [][]float32) {
	for _, v := range vectors {
		if len(v) > 0 {
			m.observed.Store(int64(len(v)))
			return
		}
	}
}

// checkTexts rejects requests a model cannot answer
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
	}
	return nil
}

// Unavailable maps a provider failure to the recoverable
// types.ErrEmbeddingUnavailable kind. Input validation errors are returned
// unchanged because retrying them cannot succeed.
func Unavailable(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrEmbeddingUnavailable),
		errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrBatchTooLarge):
		return err
	default:
		return fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
	}
}
