package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// embeddingsServer answers the /v1/embeddings API with one small vector per
// input, in reverse order to exercise index handling
func embeddingsServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(i), float32(len(req.Input[i]))}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func TestRemoteProvider(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingsServer(t, &calls)
	defer srv.Close()

	provider, err := NewOpenAIProvider(RemoteConfig{APIKey: "test-key", URL: srv.URL, Retry: fastRetry()}, NewCache(10))
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()

	t.Run("batch keeps input order", func(t *testing.T) {
		vectors, err := provider.Embed(ctx, []string{"a", "bb", "ccc"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for i, v := range vectors {
			assert.Equal(t, float32(i), v[0])
			assert.Equal(t, float32(i+1), v[1])
		}
		assert.Equal(t, ProviderOpenAI, provider.Provider())
		assert.Equal(t, DefaultOpenAIModel, provider.Model())
	})

	t.Run("repeated text is cached", func(t *testing.T) {
		before := calls.Load()
		_, err := provider.Embed(ctx, []string{"useAuth"})
		require.NoError(t, err)
		_, err = provider.Embed(ctx, []string{"useAuth"})
		require.NoError(t, err)
		assert.Equal(t, before+1, calls.Load())
	})

	t.Run("batch too large", func(t *testing.T) {
		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "x"
		}
		_, err := provider.Embed(ctx, texts)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestRemoteProviderRequiresKey(t *testing.T) {
	_, err := NewJinaProvider(RemoteConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	p, err := NewJinaProvider(RemoteConfig{APIKey: "k", Model: "custom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, p.Provider())
	assert.Equal(t, "custom", p.Model())
	assert.Equal(t, 0, p.Dimension(), "unfamiliar model has no dimension before its first reply")
}

func TestRemoteProviderDimensionFollowsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3,0.4,0.5],"index":0}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(RemoteConfig{APIKey: "k", Model: "text-embedding-3-large", URL: srv.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimension())

	_, err = p.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 5, p.Dimension())
}

func TestRemoteProviderRetries(t *testing.T) {
	t.Run("transient failure is retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0],"index":0}]}`))
		}))
		defer srv.Close()

		p, err := NewJinaProvider(RemoteConfig{APIKey: "k", URL: srv.URL, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		vectors, err := p.Embed(context.Background(), []string{"hello"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}}, vectors)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p, err := NewJinaProvider(RemoteConfig{APIKey: "k", URL: srv.URL, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		_, err = p.Embed(context.Background(), []string{"hello"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("rate limit is retried until exhausted", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider(RemoteConfig{APIKey: "k", URL: srv.URL, Retry: fastRetry()}, nil)
		require.NoError(t, err)

		start := time.Now()
		_, err = p.Embed(context.Background(), []string{"hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), calls.Load())
		assert.Less(t, time.Since(start), time.Second, "Retry-After is capped by MaxDelay")
	})
}

func TestOllamaProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		calls.Add(1)
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := ollamaEmbedResponse{Model: req.Model}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0.5, 0.5, 0.5, 0.5})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(RemoteConfig{URL: srv.URL + "/", Model: "all-minilm", Retry: fastRetry()}, NewCache(4))
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, p.Provider())
	assert.Equal(t, "all-minilm", p.Model())
	assert.Equal(t, 384, p.Dimension())

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, vectors[1])
	assert.Equal(t, 4, p.Dimension(), "dimension comes from the vectors the model returned")

	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	err := fastRetry().do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryDelay(t *testing.T) {
	cfg := RetryConfig{Attempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, cfg.delay(1, 0))
	assert.Equal(t, 40*time.Millisecond, cfg.delay(3, 0))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(4, 0))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(1, time.Minute))
	assert.Equal(t, 2*time.Second, parseRetryAfter(" 2 "))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
