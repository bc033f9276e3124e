// Package storage persists index snapshots in SQLite.
//
// # Database Schema
//
// Tables:
//   - files: file path, normalized and raw content hashes, owned chunk IDs
//   - chunks: chunk metadata, source text and classification
//   - embeddings: one little-endian float32 vector per chunk, tagged with the model
//   - index_meta: snapshot version, provider, model, dimension and save time
//   - schema_version: applied migrations (semantic versions)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(".livecontext/index.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	snap, meta, err := db.Load(ctx, "hashing-v1")
//	switch {
//	case errors.Is(err, storage.ErrNoSnapshot):
//	    // first run
//	case errors.Is(err, types.ErrCorruptSnapshot):
//	    // rebuild from scratch
//	}
//
//	err = db.Save(ctx, store.Snapshot(), storage.Meta{Model: "hashing-v1", Dimension: 384})
//
// Save is incremental: records and file entries are immutable, so only those
// whose pointer differs from the previously saved or loaded snapshot are
// written.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_vec links github.com/mattn/go-sqlite3 instead.
package storage
