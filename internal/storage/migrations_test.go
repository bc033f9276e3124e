package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v)

	require.NoError(t, ApplyMigrations(ctx, db))
	// idempotent
	require.NoError(t, ApplyMigrations(ctx, db))

	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)

	var index string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_chunks_file'").Scan(&index)
	require.NoError(t, err)
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)

	var index string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_chunks_file'").Scan(&index)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// re-applying restores the latest schema
	require.NoError(t, ApplyMigrations(ctx, db))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestApplyMigrationsRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)
	require.NoError(t, ApplyMigrations(ctx, db))

	_, err := db.Exec("INSERT INTO schema_version (version) VALUES ('9.0.0')")
	require.NoError(t, err)

	assert.ErrorIs(t, ApplyMigrations(ctx, db), ErrIncompatibleSchema)
}
