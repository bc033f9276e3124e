package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// index_meta keys
const (
	metaVersion   = "version"
	metaProvider  = "provider"
	metaModel     = "model"
	metaDimension = "dimension"
	metaSavedAt   = "saved_at"
)

// SQLiteStorage implements SnapshotStore using SQLite
type SQLiteStorage struct {
	db *sql.DB

	mu    sync.Mutex
	saved *vectorstore.Snapshot // last snapshot written or read
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies pending migrations. ":memory:" gives a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Save writes snap in one transaction
func (s *SQLiteStorage) Save(ctx context.Context, snap *vectorstore.Snapshot, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev := s.saved
	if prev == nil {
		// unknown database content: rewrite everything
		for _, table := range []string{"embeddings", "chunks", "files"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		prev = vectorstore.Empty()
	}

	if err := saveFiles(ctx, tx, prev, snap); err != nil {
		return err
	}
	if err := saveRecords(ctx, tx, prev, snap, meta.Model); err != nil {
		return err
	}

	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now()
	}
	if meta.Version == 0 {
		meta.Version = snap.Version()
	}
	if err := writeMeta(ctx, tx, meta); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	s.saved = snap
	return nil
}

func saveFiles(ctx context.Context, q querier, prev, snap *vectorstore.Snapshot) error {
	for _, entry := range prev.Files() {
		if _, ok := snap.File(entry.FilePath); ok {
			continue
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM files WHERE file_path = ?", entry.FilePath); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", entry.FilePath, err)
		}
	}

	for _, entry := range snap.Files() {
		if old, ok := prev.File(entry.FilePath); ok && old == entry {
			continue
		}
		ids, err := encodeList(entry.ChunkIDs)
		if err != nil {
			return fmt.Errorf("failed to encode chunk ids for %s: %w", entry.FilePath, err)
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO files (file_path, content_hash, raw_hash, chunk_ids, last_indexed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				content_hash = excluded.content_hash,
				raw_hash = excluded.raw_hash,
				chunk_ids = excluded.chunk_ids,
				last_indexed_at = excluded.last_indexed_at
		`, entry.FilePath, encodeHash(entry.ContentHash), encodeHash(entry.RawHash), ids, entry.LastIndexedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to upsert file %s: %w", entry.FilePath, err)
		}
	}
	return nil
}

func saveRecords(ctx context.Context, q querier, prev, snap *vectorstore.Snapshot, model string) error {
	for _, r := range prev.Records() {
		if _, ok := snap.Record(r.Chunk.ID); ok {
			continue
		}
		// embeddings cascade
		if _, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", r.Chunk.ID); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", r.Chunk.ID, err)
		}
	}

	for _, r := range snap.Records() {
		if old, ok := prev.Record(r.Chunk.ID); ok && old == r {
			continue
		}
		if err := upsertChunk(ctx, q, r.Chunk); err != nil {
			return err
		}
		if err := upsertEmbedding(ctx, q, r, model); err != nil {
			return err
		}
	}
	return nil
}

func upsertChunk(ctx context.Context, q querier, c *types.CodeChunk) error {
	includes, err := encodeList(c.Includes)
	if err != nil {
		return fmt.Errorf("failed to encode includes for %s: %w", c.ID, err)
	}
	domains, err := encodeList(c.DomainTags)
	if err != nil {
		return fmt.Errorf("failed to encode domain tags for %s: %w", c.ID, err)
	}
	patterns, err := encodeList(c.PatternTags)
	if err != nil {
		return fmt.Errorf("failed to encode pattern tags for %s: %w", c.ID, err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO chunks (
			id, file_path, name, ordinal, subtype, start_line, end_line, source, content_hash,
			includes, purpose, domain_tags, pattern_tags, complexity_score, complexity_level,
			is_exported, is_async, low_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			name = excluded.name,
			ordinal = excluded.ordinal,
			subtype = excluded.subtype,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			source = excluded.source,
			content_hash = excluded.content_hash,
			includes = excluded.includes,
			purpose = excluded.purpose,
			domain_tags = excluded.domain_tags,
			pattern_tags = excluded.pattern_tags,
			complexity_score = excluded.complexity_score,
			complexity_level = excluded.complexity_level,
			is_exported = excluded.is_exported,
			is_async = excluded.is_async,
			low_confidence = excluded.low_confidence
	`,
		c.ID, c.FilePath, c.Name, c.Ordinal, string(c.Subtype), c.StartLine, c.EndLine, c.SourceText,
		encodeHash(c.ContentHash), includes, c.Purpose, domains, patterns,
		c.Complexity.Score, string(c.Complexity.Level), c.IsExported, c.IsAsync, c.LowConfidence)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
	}
	return nil
}

func upsertEmbedding(ctx context.Context, q querier, r *vectorstore.Record, model string) error {
	if !r.Embedded() {
		if _, err := q.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", r.Chunk.ID); err != nil {
			return fmt.Errorf("failed to delete embedding %s: %w", r.Chunk.ID, err)
		}
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, dimension, model, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			dimension = excluded.dimension,
			model = excluded.model,
			vector = excluded.vector
	`, r.Chunk.ID, len(r.Vector), model, serializeVector(r.Vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding %s: %w", r.Chunk.ID, err)
	}
	return nil
}

func writeMeta(ctx context.Context, q querier, meta Meta) error {
	values := map[string]string{
		metaVersion:   strconv.FormatUint(meta.Version, 10),
		metaProvider:  meta.Provider,
		metaModel:     meta.Model,
		metaDimension: strconv.Itoa(meta.Dimension),
		metaSavedAt:   strconv.FormatInt(meta.SavedAt.UnixNano(), 10),
	}
	for key, value := range values {
		_, err := q.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to write meta %s: %w", key, err)
		}
	}
	return nil
}

// Load reads the persisted snapshot
func (s *SQLiteStorage) Load(ctx context.Context, model string) (*vectorstore.Snapshot, Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMeta(ctx, s.db)
	if err != nil {
		return nil, Meta{}, err
	}

	files, err := loadFiles(ctx, s.db)
	if err != nil {
		return nil, Meta{}, corrupt(err)
	}
	vectors, err := loadVectors(ctx, s.db, model)
	if err != nil {
		return nil, Meta{}, corrupt(err)
	}
	records, err := loadRecords(ctx, s.db, vectors)
	if err != nil {
		return nil, Meta{}, corrupt(err)
	}

	snap := vectorstore.NewSnapshot(files, records, meta.Version, meta.SavedAt)
	if err := snap.Validate(); err != nil {
		return nil, Meta{}, corrupt(err)
	}

	if meta.Model == model {
		s.saved = snap
	} else {
		// dropped vectors still sit in the database
		s.saved = nil
	}
	return snap, meta, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", types.ErrCorruptSnapshot, err)
}

func readMeta(ctx context.Context, q querier) (Meta, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM index_meta")
	if err != nil {
		return Meta{}, corrupt(err)
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Meta{}, corrupt(err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return Meta{}, corrupt(err)
	}
	if len(values) == 0 {
		return Meta{}, ErrNoSnapshot
	}

	var meta Meta
	meta.Provider = values[metaProvider]
	meta.Model = values[metaModel]
	if meta.Version, err = strconv.ParseUint(values[metaVersion], 10, 64); err != nil {
		return Meta{}, corrupt(fmt.Errorf("version: %w", err))
	}
	if meta.Dimension, err = strconv.Atoi(values[metaDimension]); err != nil {
		return Meta{}, corrupt(fmt.Errorf("dimension: %w", err))
	}
	savedAt, err := strconv.ParseInt(values[metaSavedAt], 10, 64)
	if err != nil {
		return Meta{}, corrupt(fmt.Errorf("saved_at: %w", err))
	}
	meta.SavedAt = time.Unix(0, savedAt)
	return meta, nil
}

func loadFiles(ctx context.Context, q querier) ([]*types.FileIndexEntry, error) {
	rows, err := q.QueryContext(ctx, "SELECT file_path, content_hash, raw_hash, chunk_ids, last_indexed_at FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.FileIndexEntry
	for rows.Next() {
		var (
			entry                types.FileIndexEntry
			contentHash, rawHash string
			chunkIDs             string
			lastIndexed          int64
		)
		if err := rows.Scan(&entry.FilePath, &contentHash, &rawHash, &chunkIDs, &lastIndexed); err != nil {
			return nil, err
		}
		if entry.ContentHash, err = decodeHash(contentHash); err != nil {
			return nil, fmt.Errorf("file %s content hash: %w", entry.FilePath, err)
		}
		if entry.RawHash, err = decodeHash(rawHash); err != nil {
			return nil, fmt.Errorf("file %s raw hash: %w", entry.FilePath, err)
		}
		if entry.ChunkIDs, err = decodeList(chunkIDs); err != nil {
			return nil, fmt.Errorf("file %s chunk ids: %w", entry.FilePath, err)
		}
		entry.LastIndexedAt = time.Unix(0, lastIndexed)
		files = append(files, &entry)
	}
	return files, rows.Err()
}

// loadVectors returns the vectors written by model, keyed by chunk ID
func loadVectors(ctx context.Context, q querier, model string) (map[string][]float32, error) {
	rows, err := q.QueryContext(ctx, "SELECT chunk_id, dimension, vector FROM embeddings WHERE model = ?", model)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var (
			id        string
			dimension int
			blob      []byte
		)
		if err := rows.Scan(&id, &dimension, &blob); err != nil {
			return nil, err
		}
		v, err := deserializeVector(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", id, err)
		}
		vectors[id] = v
	}
	return vectors, rows.Err()
}

func loadRecords(ctx context.Context, q querier, vectors map[string][]float32) ([]*vectorstore.Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, file_path, name, ordinal, subtype, start_line, end_line, source, content_hash,
			includes, purpose, domain_tags, pattern_tags, complexity_score, complexity_level,
			is_exported, is_async, low_confidence
		FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*vectorstore.Record
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, vectorstore.NewRecord(c, vectors[c.ID]))
	}
	return records, rows.Err()
}

func scanChunk(rows *sql.Rows) (*types.CodeChunk, error) {
	var (
		c                           types.CodeChunk
		subtype, hash, level        string
		includes, domains, patterns string
	)
	err := rows.Scan(&c.ID, &c.FilePath, &c.Name, &c.Ordinal, &subtype, &c.StartLine, &c.EndLine,
		&c.SourceText, &hash, &includes, &c.Purpose, &domains, &patterns,
		&c.Complexity.Score, &level, &c.IsExported, &c.IsAsync, &c.LowConfidence)
	if err != nil {
		return nil, err
	}

	if c.Subtype, err = types.ParseSubtype(subtype); err != nil {
		return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
	}
	if c.ContentHash, err = decodeHash(hash); err != nil {
		return nil, fmt.Errorf("chunk %s content hash: %w", c.ID, err)
	}
	if c.Includes, err = decodeList(includes); err != nil {
		return nil, fmt.Errorf("chunk %s includes: %w", c.ID, err)
	}
	if c.DomainTags, err = decodeList(domains); err != nil {
		return nil, fmt.Errorf("chunk %s domain tags: %w", c.ID, err)
	}
	if c.PatternTags, err = decodeList(patterns); err != nil {
		return nil, fmt.Errorf("chunk %s pattern tags: %w", c.ID, err)
	}
	c.Complexity.Level = types.ComplexityLevel(level)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
	}
	return &c, nil
}

// Reset deletes every persisted row. The schema is kept.
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"embeddings", "chunks", "files", "index_meta"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	s.saved = nil
	return nil
}

