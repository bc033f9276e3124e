package types

import "time"

// SearchResult is one ranked hit from a semantic search
type SearchResult struct {
	ID         string
	Rank       int     // Position in result set (1-based)
	Similarity float64 // cosine similarity in [-1, 1]
	Chunk      *CodeChunk
}

// FilterResult is one hit from a metadata-only search
type FilterResult struct {
	ID    string
	Chunk *CodeChunk
}

// IndexStatus summarizes the current index for callers
type IndexStatus struct {
	ChunkCount    int
	FileCount     int
	EmbeddedCount int
	PendingCount  int
	ModelName     string
	Provider      string
	Dimension     int
	Cached        bool // index state was restored from persisted storage
	Version       uint64
	UpdatedAt     time.Time
}

// ProjectionPoint is one chunk placed in the 2D projection of the embedding space
type ProjectionPoint struct {
	ID    string
	X     float64
	Y     float64
	Chunk *CodeChunk
}

// BundleSuggestion is a bundle ranked by tag overlap with a file
type BundleSuggestion struct {
	Bundle string
	Score  float64
}

// FileEventKind is the type of change reported by a file provider
type FileEventKind string

const (
	FileCreated  FileEventKind = "created"
	FileModified FileEventKind = "modified"
	FileDeleted  FileEventKind = "deleted"
)

// FileEvent is a change notification for one tracked file
type FileEvent struct {
	Path string
	Kind FileEventKind
}
