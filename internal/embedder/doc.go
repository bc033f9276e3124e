// Package embedder turns chunk text into vectors.
//
// Four providers implement the Embedder interface: Jina and OpenAI share the
// /v1/embeddings HTTP API, Ollama uses /api/embed, and the local provider is
// a deterministic feature-hashing model that needs no network.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 1000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	q := embedder.NewQueue(emb, 2, 256)
//	defer q.Close()
//
//	vec, err := q.Embed(ctx, embedder.PriorityInteractive, "user authentication")
//
// The Queue bounds concurrent model calls. Query text is submitted with
// PriorityInteractive and is served before background indexing work.
//
// # Caching
//
// Remote providers check an LRU cache keyed by model and the xxhash of the
// text, and send only the misses to the model. Cached vectors are copied on
// read and write.
//
// # Dimensions
//
// Dimension starts from a table of well-known models and then follows the
// length of the vectors the model actually returns. Callers that need the
// dimension of stored data should read it from the vectors themselves.
//
// # Error Handling
//
// Network failures are retried with exponential backoff, honoring
// Retry-After. Client errors other than 408 and 429 are not retried. Every
// provider or queue failure matches types.ErrEmbeddingUnavailable:
//
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // leave the chunk pending and retry on a later pass
//	}
package embedder
