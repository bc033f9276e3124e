package vectorstore

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// ErrInconsistent is returned when file entries and chunk records disagree
var ErrInconsistent = errors.New("file entries and chunks disagree")

// Store is the mutable index. It is not safe for concurrent use; the index
// coordinator is its only writer and publishes Snapshots for readers.
type Store struct {
	view
	version uint64
	dirty   bool
	last    *Snapshot
}

// New creates an empty store
func New() *Store {
	return &Store{view: newView()}
}

// Upsert inserts or replaces the record for chunk.ID. A nil vector leaves
// the chunk pending.
func (s *Store) Upsert(chunk *types.CodeChunk, vector []float32) {
	s.records[chunk.ID] = NewRecord(chunk, vector)
	s.dirty = true
}

// Remove deletes a chunk. Removing an absent ID is a no-op.
func (s *Store) Remove(id string) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	s.dirty = true
	return true
}

// PutFile stores the index entry for a file
func (s *Store) PutFile(entry *types.FileIndexEntry) {
	s.files[entry.FilePath] = entry
	s.dirty = true
}

// DropFile removes a file entry and every chunk it owns. It returns the
// removed chunk IDs.
func (s *Store) DropFile(path string) []string {
	entry, ok := s.files[path]
	if !ok {
		return nil
	}
	delete(s.files, path)
	removed := make([]string, 0, len(entry.ChunkIDs))
	for _, id := range entry.ChunkIDs {
		if s.Remove(id) {
			removed = append(removed, id)
		}
	}
	s.dirty = true
	return removed
}

// Snapshot returns an immutable view of the current contents. The version
// advances only when the store changed since the previous call.
func (s *Store) Snapshot() *Snapshot {
	if s.last != nil && !s.dirty {
		return s.last
	}
	s.version++
	s.dirty = false
	s.last = &Snapshot{
		view: view{
			files:   maps.Clone(s.files),
			records: maps.Clone(s.records),
		},
		version:   s.version,
		createdAt: time.Now(),
	}
	return s.last
}

// Restore replaces the store contents with snap. The version continues
// from the snapshot's.
func (s *Store) Restore(snap *Snapshot) {
	s.files = maps.Clone(snap.files)
	s.records = maps.Clone(snap.records)
	s.version = snap.version
	s.dirty = false
	s.last = snap
}

// Snapshot is a point-in-time view of the index. It is safe for concurrent
// use by any number of readers.
type Snapshot struct {
	view
	version   uint64
	createdAt time.Time
}

// Empty returns a snapshot with no content at version 0
func Empty() *Snapshot {
	return &Snapshot{view: newView(), createdAt: time.Now()}
}

// NewSnapshot assembles a snapshot from persisted parts
func NewSnapshot(files []*types.FileIndexEntry, records []*Record, version uint64, createdAt time.Time) *Snapshot {
	snap := &Snapshot{view: newView(), version: version, createdAt: createdAt}
	for _, f := range files {
		snap.files[f.FilePath] = f
	}
	for _, r := range records {
		snap.records[r.Chunk.ID] = r
	}
	return snap
}

// Version is monotonic across the snapshots of one store
func (s *Snapshot) Version() uint64 {
	return s.version
}

// CreatedAt returns when the snapshot was taken. A restored snapshot keeps
// the time it was saved.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// Validate checks that the chunk IDs listed by file entries are exactly the
// chunks held, and that each chunk belongs to the file listing it
func (s *Snapshot) Validate() error {
	seen := make(map[string]bool, len(s.records))
	for path, entry := range s.files {
		for _, id := range entry.ChunkIDs {
			r, ok := s.records[id]
			if !ok {
				return fmt.Errorf("%w: %s lists missing chunk %s", ErrInconsistent, path, id)
			}
			if r.Chunk.FilePath != path {
				return fmt.Errorf("%w: chunk %s belongs to %s, listed by %s", ErrInconsistent, id, r.Chunk.FilePath, path)
			}
			if seen[id] {
				return fmt.Errorf("%w: chunk %s listed twice", ErrInconsistent, id)
			}
			seen[id] = true
		}
	}
	if len(seen) != len(s.records) {
		orphans := make([]string, 0)
		for id := range s.records {
			if !seen[id] {
				orphans = append(orphans, id)
			}
		}
		slices.Sort(orphans)
		return fmt.Errorf("%w: %d chunks without a file, first %s", ErrInconsistent, len(orphans), orphans[0])
	}
	return nil
}
