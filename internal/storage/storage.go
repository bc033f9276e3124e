package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/livecontext-mcp/internal/vectorstore"
)

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet
	ErrNoSnapshot = errors.New("no persisted snapshot")
	// ErrIncompatibleSchema is returned when the database was written by a newer version
	ErrIncompatibleSchema = errors.New("incompatible schema")
)

// SnapshotStore persists index snapshots
type SnapshotStore interface {
	// Save writes snap. Only the files and records that changed since the
	// previous Save or Load are rewritten.
	Save(ctx context.Context, snap *vectorstore.Snapshot, meta Meta) error

	// Load reads the persisted snapshot. Vectors written by a model other
	// than model are dropped, leaving their chunks pending. Unreadable
	// content is reported as types.ErrCorruptSnapshot.
	Load(ctx context.Context, model string) (*vectorstore.Snapshot, Meta, error)

	// Reset deletes everything persisted
	Reset(ctx context.Context) error

	Close() error
}

// Meta describes a persisted snapshot
type Meta struct {
	Version   uint64
	Provider  string
	Model     string
	Dimension int
	SavedAt   time.Time
}
