// Package searcher answers queries against the published index snapshot.
//
// Every operation loads the current snapshot once and works on it alone, so
// a query never observes a half-applied reindexing pass and never waits on
// the indexer.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(cfg, coordinator, queue, bundles)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "user authentication login",
//	    Limit: 5,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.2f)\n", r.Rank, r.ID, r.Similarity)
//	}
//
// # Semantic Search
//
// The query text is embedded at interactive priority, ahead of background
// indexing work, and compared with every embedded chunk by cosine
// similarity. Results are cached per snapshot version, so a publish
// implicitly invalidates them.
//
// # Metadata Search
//
// SearchByType and SearchByDomain filter on chunk metadata only. They need
// no embedding and include chunks whose vectors are still pending.
//
// # Projection
//
// GetProjection reduces the embeddings to two dimensions with PCA computed by
// power iteration and deflation. The result is deterministic for a given
// snapshot and recomputed only after the index changes.
//
// # Errors
//
// Query failures are returned as *QueryError wrapping the cause:
//
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // the model is down; metadata search still works
//	}
package searcher
