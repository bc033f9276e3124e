// Package vectorstore holds chunk metadata and embedding vectors in memory.
//
// A Store is owned by a single writer (the index coordinator). Readers never
// touch the Store directly; they use a Snapshot, an immutable view produced
// by Store.Snapshot after a batch of mutations:
//
//	store := vectorstore.New()
//	store.Upsert(chunk, vector)
//	store.PutFile(entry)
//	snap := store.Snapshot()
//
//	results := snap.Search(queryVector, 10, 0.2, vectorstore.BySubtype(types.SubtypeHook))
//
// Records are never modified after insertion, so a Snapshot shares them with
// the Store and with later snapshots. Chunks returned by read operations must
// be treated as read-only.
//
// Search is a linear scan computing cosine similarity against every embedded
// record that passes the filter. Records whose dimension differs from the
// query are skipped.
package vectorstore
