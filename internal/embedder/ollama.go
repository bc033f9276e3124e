package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaProvider calls the /api/embed endpoint of an Ollama instance. No
// API key is needed.
type OllamaProvider struct {
	modelInfo
	endpoint string
	retry    RetryConfig
	client   *http.Client
	cache    *Cache
}

// NewOllamaProvider creates an embedder for the Ollama instance at cfg.URL
// (default http://localhost:11434). Local models can be slow to load, so the
// default timeout is two minutes.
func NewOllamaProvider(cfg RemoteConfig, cache *Cache) (*OllamaProvider, error) {
	cfg = cfg.withDefaults(DefaultOllamaModel, DefaultOllamaURL, 2*time.Minute)
	o := &OllamaProvider{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/api/embed",
		retry:    cfg.Retry,
		client:   &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
	}
	o.provider = ProviderOllama
	o.model = cfg.Model
	return o, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	return embedCached(ctx, o.cache, o.model, texts, o.call)
}

func (o *OllamaProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	err := o.retry.do(ctx, func(ctx context.Context) error {
		resp = ollamaEmbedResponse{}
		return postJSON(ctx, o.client, o.endpoint, nil, ollamaEmbedRequest{Model: o.model, Input: texts}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrProviderFailed, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama: expected %d embeddings, got %d",
			ErrProviderFailed, len(texts), len(resp.Embeddings))
	}
	o.observe(resp.Embeddings)
	return resp.Embeddings, nil
}

func (o *OllamaProvider) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
