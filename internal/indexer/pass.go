package indexer

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/dshills/livecontext-mcp/internal/chunker"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

type passKind int

const (
	passFailed passKind = iota
	passUnchanged
	passRefreshed // positions moved, chunk content identical
	passIndexed
	passDeleted
)

// passJob is the input of one reindexing pass, captured by the loop
type passJob struct {
	path    string
	gen     uint64
	deleted bool
	prev    *types.FileIndexEntry
	snap    *vectorstore.Snapshot
}

type passResult struct {
	path string
	gen  uint64
	kind passKind
	err  error

	entry    *types.FileIndexEntry
	chunks   []*types.CodeChunk
	vectors  [][]float32 // parallel to chunks, nil = pending
	embedded int         // vectors computed by this pass
}

// runPass reads, extracts, classifies and embeds one file. It only reads
// shared state through job.snap; the loop applies the result.
func (c *Coordinator) runPass(ctx context.Context, job passJob) *passResult {
	res := &passResult{path: job.path, gen: job.gen}
	if job.deleted {
		res.kind = passDeleted
		return res
	}

	src, err := c.source.Read(job.path)
	if errors.Is(err, fs.ErrNotExist) {
		res.kind = passDeleted
		return res
	}
	if err != nil {
		res.kind = passFailed
		res.err = err
		return res
	}

	raw := chunker.HashRaw(src)
	if job.prev != nil && job.prev.RawHash == raw {
		res.kind = passUnchanged
		return res
	}
	c.setState(job.path, StateReindexing)

	chunks := c.chunker.Extract(ctx, job.path, src)
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		c.classifier.Apply(ch)
		ids[i] = ch.ID
	}

	res.chunks = chunks
	res.vectors = make([][]float32, len(chunks))
	res.entry = &types.FileIndexEntry{
		FilePath:      job.path,
		ContentHash:   chunker.FileContentHash(chunks),
		RawHash:       raw,
		ChunkIDs:      ids,
		LastIndexedAt: time.Now(),
	}

	if job.prev != nil && job.prev.ContentHash == res.entry.ContentHash {
		res.kind = passRefreshed
		for i, ch := range chunks {
			if rec, ok := job.snap.Record(ch.ID); ok && rec.Chunk.ContentHash == ch.ContentHash {
				res.vectors[i] = rec.Vector
			}
		}
		return res
	}

	res.kind = passIndexed
	unavailable := false
	for i, ch := range chunks {
		if rec, ok := job.snap.Record(ch.ID); ok && rec.Embedded() && rec.Chunk.ContentHash == ch.ContentHash {
			res.vectors[i] = rec.Vector
			continue
		}
		if unavailable {
			continue
		}

		vec, err := c.embedder.Embed(ctx, embedder.PriorityBulk, chunker.EmbeddingText(ch))
		c.embedCalls.Add(1)
		switch {
		case err == nil:
			res.vectors[i] = vec
			res.embedded++
		case ctx.Err() != nil:
			res.kind = passFailed
			res.err = ctx.Err()
			return res
		default:
			// the remaining chunks stay pending until the retry loop succeeds
			unavailable = true
			c.logger.Warn("embedding unavailable, chunks left pending",
				"path", job.path, "chunk", ch.ID, "error", err)
		}
	}
	return res
}

type retryResult struct {
	chunks  []*types.CodeChunk
	vectors [][]float32
	err     error
}

// startRetry embeds pending chunks of files that are not being reindexed
func (c *Coordinator) startRetry(ctx context.Context) {
	if c.retrying {
		return
	}
	snap := c.current.Load()
	var todo []*types.CodeChunk
	for _, id := range snap.PendingIDs() {
		ch, ok := snap.Chunk(id)
		if !ok {
			continue
		}
		if ft := c.files[ch.FilePath]; ft != nil && (ft.inflight || ft.due || ft.timer != nil) {
			continue
		}
		todo = append(todo, ch)
	}
	if len(todo) == 0 {
		return
	}

	c.retrying = true
	c.track(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := &retryResult{}
		for _, ch := range todo {
			vec, err := c.embedder.Embed(ctx, embedder.PriorityBulk, chunker.EmbeddingText(ch))
			c.embedCalls.Add(1)
			if err != nil {
				res.err = err
				break
			}
			res.chunks = append(res.chunks, ch)
			res.vectors = append(res.vectors, vec)
		}
		select {
		case c.retries <- res:
		case <-c.stopped:
		}
	}()
}

// handleRetry stores vectors for chunks that are still pending and unchanged
func (c *Coordinator) handleRetry(res *retryResult) {
	c.retrying = false
	applied := 0
	for i, ch := range res.chunks {
		rec, ok := c.store.Record(ch.ID)
		if !ok || rec.Embedded() || rec.Chunk != ch {
			continue
		}
		c.store.Upsert(ch, res.vectors[i])
		applied++
	}
	if applied > 0 {
		c.publish()
	}
	if res.err != nil {
		c.logger.Debug("pending embeddings retry stopped", "embedded", applied, "error", res.err)
		return
	}
	c.logger.Debug("pending embeddings retried", "embedded", applied)
}
