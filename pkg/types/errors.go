package types

import "errors"

// Recoverable failure kinds. Callers match them with errors.Is.
var (
	// ErrEmbeddingUnavailable means the model could not produce a vector right now.
	// The chunk stays unindexed and is retried on a later pass.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrCorruptSnapshot means the persisted index could not be decoded.
	// The index is rebuilt from scratch.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrStaleWriteDiscarded marks a reindexing result superseded by a newer change.
	// It never reaches callers.
	ErrStaleWriteDiscarded = errors.New("stale write discarded")
)

// Validation errors
var (
	ErrInvalidSubtype = errors.New("invalid chunk subtype")
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrEmptyDomain    = errors.New("domain cannot be empty")
)
