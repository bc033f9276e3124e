// Package indexer keeps the semantic index consistent with a changing source
// tree.
//
// A Coordinator receives file events, debounces them per file and runs
// reindexing passes concurrently. Each pass reads the file, extracts and
// classifies its chunks and embeds the chunks whose content changed. The
// coordinator loop applies pass results to the vector store and publishes a
// new immutable snapshot; readers never observe a partially applied file.
//
// # Basic Usage
//
//	coord, err := indexer.New(indexer.ConfigFrom(cfg.Indexer), indexer.Deps{
//	    Source:     watcher,
//	    Chunker:    chunker.New(logger),
//	    Classifier: cls,
//	    Embedder:   queue,
//	    Store:      store,
//	    Logger:     logger,
//	})
//	_ = coord.Load(ctx)
//	go coord.Run(ctx)
//	_ = coord.Sync(ctx)
//
// # Ordering
//
// Every event bumps the file's generation. A pass result is applied only if
// no event arrived for the file since the pass started; otherwise it is
// discarded and the file is reindexed again. Passes for different files do
// not wait on each other.
//
// # Incremental Work
//
//   - identical raw bytes skip extraction entirely
//   - whitespace-only edits refresh chunk positions without embedding
//   - chunks whose normalized content is unchanged keep their vectors
//
// Chunks that cannot be embedded stay pending and are retried periodically.
//
// # Persistence
//
// Snapshots are saved through storage.SnapshotStore at most once per
// PersistInterval, with a final flush when Run returns.
package indexer
