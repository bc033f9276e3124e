package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func testChunk(path, name string, line int) *types.CodeChunk {
	return &types.CodeChunk{
		ID:          path + "#" + name,
		FilePath:    path,
		Name:        name,
		Ordinal:     1,
		StartLine:   line,
		EndLine:     line + 4,
		SourceText:  "export function " + name + "() {}",
		ContentHash: 0xfedcba9876543210,
		Includes:    []string{"useState"},
		Subtype:     types.SubtypeFunction,
		IsExported:  true,
		Purpose:     "handles " + name,
		DomainTags:  []string{"authentication"},
		PatternTags: []string{"async_operations", "hooks"},
		Complexity:  types.Complexity{Score: 3, Level: types.ComplexityLow},
	}
}

func buildStore(chunks map[string][]*types.CodeChunk, vector []float32) *vectorstore.Store {
	s := vectorstore.New()
	for path, cs := range chunks {
		ids := make([]string, len(cs))
		for i, c := range cs {
			s.Upsert(c, vector)
			ids[i] = c.ID
		}
		s.PutFile(&types.FileIndexEntry{
			FilePath:      path,
			ContentHash:   0x8000000000000001,
			RawHash:       42,
			ChunkIDs:      ids,
			LastIndexedAt: time.Unix(1700000000, 0),
		})
	}
	return s
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	v, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestLoadEmpty(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, _, err := storage.Load(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	login := testChunk("src/auth/Login.tsx", "LoginForm", 3)
	login.Subtype = types.SubtypeReactComponent
	login.LowConfidence = true
	logout := testChunk("src/auth/Login.tsx", "logout", 20)
	logout.DomainTags = nil
	logout.Includes = nil

	store := buildStore(map[string][]*types.CodeChunk{"src/auth/Login.tsx": {login, logout}}, []float32{0.25, -1.5, 3})
	store.Upsert(logout, nil) // pending
	snap := store.Snapshot()

	err := storage.Save(ctx, snap, Meta{Provider: "local", Model: "hashing-v1", Dimension: 3})
	require.NoError(t, err)

	loaded, meta, err := storage.Load(ctx, "hashing-v1")
	require.NoError(t, err)

	assert.Equal(t, snap.Version(), meta.Version)
	assert.Equal(t, snap.Version(), loaded.Version())
	assert.Equal(t, "local", meta.Provider)
	assert.Equal(t, 3, meta.Dimension)
	assert.False(t, meta.SavedAt.IsZero())

	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, 1, loaded.EmbeddedCount())
	assert.Equal(t, []string{logout.ID}, loaded.PendingIDs())

	got, ok := loaded.Chunk(login.ID)
	require.True(t, ok)
	assert.Equal(t, login, got)

	r, ok := loaded.Record(login.ID)
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5, 3}, r.Vector)

	entry, ok := loaded.File("src/auth/Login.tsx")
	require.True(t, ok)
	assert.Equal(t, uint64(0x8000000000000001), entry.ContentHash)
	assert.Equal(t, uint64(42), entry.RawHash)
	assert.Equal(t, []string{login.ID, logout.ID}, entry.ChunkIDs)
	assert.True(t, entry.LastIndexedAt.Equal(time.Unix(1700000000, 0)))
}

func TestSaveIncremental(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	a := testChunk("a.ts", "one", 1)
	b := testChunk("b.ts", "two", 1)
	store := buildStore(map[string][]*types.CodeChunk{"a.ts": {a}, "b.ts": {b}}, []float32{1, 0})
	require.NoError(t, storage.Save(ctx, store.Snapshot(), Meta{Model: "m", Dimension: 2}))

	// drop one file, change the other
	store.DropFile("a.ts")
	changed := *b
	changed.Purpose = "updated"
	store.Upsert(&changed, []float32{0, 1})
	snap := store.Snapshot()
	require.NoError(t, storage.Save(ctx, snap, Meta{Model: "m", Dimension: 2}))

	var chunks, files, embeddings int
	require.NoError(t, storage.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&chunks))
	require.NoError(t, storage.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&files))
	require.NoError(t, storage.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&embeddings))
	assert.Equal(t, 1, chunks)
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, embeddings)

	loaded, meta, err := storage.Load(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, snap.Version(), meta.Version)
	got, ok := loaded.Chunk(b.ID)
	require.True(t, ok)
	assert.Equal(t, "updated", got.Purpose)
	r, _ := loaded.Record(b.ID)
	assert.Equal(t, []float32{0, 1}, r.Vector)
}

func TestLoadModelMismatchDropsVectors(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	a := testChunk("a.ts", "one", 1)
	store := buildStore(map[string][]*types.CodeChunk{"a.ts": {a}}, []float32{1, 0})
	require.NoError(t, storage.Save(ctx, store.Snapshot(), Meta{Model: "old-model", Dimension: 2}))

	loaded, meta, err := storage.Load(ctx, "new-model")
	require.NoError(t, err)
	assert.Equal(t, "old-model", meta.Model)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, 0, loaded.EmbeddedCount())

	// the next save rewrites everything under the new model
	restored := vectorstore.New()
	restored.Restore(loaded)
	restored.Upsert(a, []float32{0, 1, 0})
	require.NoError(t, storage.Save(ctx, restored.Snapshot(), Meta{Model: "new-model", Dimension: 3}))

	again, _, err := storage.Load(ctx, "new-model")
	require.NoError(t, err)
	assert.Equal(t, 1, again.EmbeddedCount())
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		breakf string
	}{
		{"bad vector blob", "UPDATE embeddings SET vector = x'0102'"},
		{"bad subtype", "UPDATE chunks SET subtype = 'widget'"},
		{"bad hash", "UPDATE files SET content_hash = 'zz'"},
		{"bad chunk list", "UPDATE files SET chunk_ids = '{not json'"},
		{"orphan chunk", "UPDATE files SET chunk_ids = '[]'"},
		{"bad meta", "UPDATE index_meta SET value = 'x' WHERE key = 'version'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := setupTestDB(t)
			defer storage.Close()

			a := testChunk("a.ts", "one", 1)
			store := buildStore(map[string][]*types.CodeChunk{"a.ts": {a}}, []float32{1, 0})
			require.NoError(t, storage.Save(ctx, store.Snapshot(), Meta{Model: "m", Dimension: 2}))

			_, err := storage.db.Exec(tt.breakf)
			require.NoError(t, err)

			_, _, err = storage.Load(ctx, "m")
			assert.ErrorIs(t, err, types.ErrCorruptSnapshot)
		})
	}
}

func TestReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")

	first, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	a := testChunk("a.ts", "one", 1)
	store := buildStore(map[string][]*types.CodeChunk{"a.ts": {a}}, []float32{1, 2})
	require.NoError(t, first.Save(ctx, store.Snapshot(), Meta{Model: "m", Dimension: 2}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, _, err := second.Load(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	require.NoError(t, second.Reset(ctx))
	_, _, err = second.Load(ctx, "m")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3.4028235e38}
	got, err := deserializeVector(serializeVector(v), len(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = deserializeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
	_, err = deserializeVector(serializeVector(v), 3)
	assert.Error(t, err)
}
