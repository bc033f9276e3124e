package embedder

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "hashing-v1"

	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"
	DefaultOllamaURL = "http://localhost:11434"

	// LocalDimension is the bucket count of the feature-hashing model
	LocalDimension = 384

	MaxBatchSize   = 100
	DefaultTimeout = 30 * time.Second
)

// RemoteConfig configures an HTTP embedding provider
type RemoteConfig struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
	Retry   RetryConfig
}

func (c RemoteConfig) withDefaults(model, url string, timeout time.Duration) RemoteConfig {
	if c.Model == "" {
		c.Model = model
	}
	if c.URL == "" {
		c.URL = url
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
	if c.Retry.Attempts <= 0 {
		c.Retry = DefaultRetryConfig()
	}
	return c
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// ordered places each returned vector at its input index
func (r *embeddingsResponse) ordered(n int) ([][]float32, error) {
	if len(r.Data) != n {
		return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(r.Data))
	}
	vectors := make([][]float32, n)
	for i, d := range r.Data {
		idx := d.Index
		if idx < 0 || idx >= n || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}

// remoteProvider speaks the /v1/embeddings API shared by OpenAI and Jina
type remoteProvider struct {
	modelInfo
	url    string
	header http.Header
	retry  RetryConfig
	client *http.Client
	cache  *Cache
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(cfg RemoteConfig, cache *Cache) (Embedder, error) {
	return newRemoteProvider(ProviderJina, cfg.withDefaults(DefaultJinaModel, DefaultJinaURL, DefaultTimeout), cache)
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(cfg RemoteConfig, cache *Cache) (Embedder, error) {
	return newRemoteProvider(ProviderOpenAI, cfg.withDefaults(DefaultOpenAIModel, DefaultOpenAIURL, DefaultTimeout), cache)
}

func newRemoteProvider(name string, cfg RemoteConfig, cache *Cache) (*remoteProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key not set", ErrNoProviderEnabled, name)
	}
	p := &remoteProvider{
		url:    cfg.URL,
		header: http.Header{"Authorization": {"Bearer " + cfg.APIKey}},
		retry:  cfg.Retry,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
	}
	p.provider = name
	p.model = cfg.Model
	return p, nil
}

func (p *remoteProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	return embedCached(ctx, p.cache, p.model, texts, p.call)
}

func (p *remoteProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingsResponse
	err := p.retry.do(ctx, func(ctx context.Context) error {
		resp = embeddingsResponse{}
		return postJSON(ctx, p.client, p.url, p.header, embeddingsRequest{Input: texts, Model: p.model}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.provider, err)
	}
	vectors, err := resp.ordered(len(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.provider, err)
	}
	p.observe(vectors)
	return vectors, nil
}

func (p *remoteProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// normalize scales v to unit length. A zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
