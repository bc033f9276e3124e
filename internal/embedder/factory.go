package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/livecontext-mcp/internal/config"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	URL       string
	CacheSize int
	Timeout   time.Duration
}

// ConfigFrom converts the application embedder settings
func ConfigFrom(c config.EmbedderConfig) Config {
	return Config{
		Provider:  c.Provider,
		APIKey:    c.APIKey,
		Model:     c.Model,
		URL:       c.BaseURL,
		CacheSize: c.CacheSize,
		Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
	}
}

// New creates an embedder with explicit configuration. An empty provider
// selects the local embedder. Remote providers share one vector cache when
// CacheSize is positive.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	remote := RemoteConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		URL:     cfg.URL,
		Timeout: cfg.Timeout,
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(remote, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(remote, cache)
	case ProviderOllama:
		return NewOllamaProvider(remote, cache)
	case ProviderLocal, "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
