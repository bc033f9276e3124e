package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/livecontext-mcp/internal/chunker"
	"github.com/dshills/livecontext-mcp/internal/classifier"
	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/storage"
	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

var (
	// ErrStopped is returned by Enqueue after Run has returned
	ErrStopped = errors.New("coordinator stopped")
	// ErrAlreadyRunning is returned by a second call to Run
	ErrAlreadyRunning = errors.New("coordinator already running")
)

// Source lists and reads the tracked files
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(path string) ([]byte, error)
}

// Embedder produces vectors for chunk text. *embedder.Queue implements it.
type Embedder interface {
	Embed(ctx context.Context, p embedder.Priority, text string) ([]float32, error)
}

// Config contains configuration for the coordinator
type Config struct {
	Debounce            time.Duration // quiet period after the last event for a file
	PersistInterval     time.Duration // minimum time between snapshot saves
	RetryInterval       time.Duration // how often pending chunks are re-embedded
	MaxConcurrentPasses int
	EventQueueSize      int

	// Recorded with persisted snapshots
	Provider string
	Model    string
}

// ConfigFrom converts the application indexer settings
func ConfigFrom(c config.IndexerConfig) Config {
	return Config{
		Debounce:            c.Debounce(),
		PersistInterval:     c.PersistInterval(),
		RetryInterval:       c.RetryInterval(),
		MaxConcurrentPasses: c.MaxConcurrentPasses,
		EventQueueSize:      c.EventQueueSize,
	}
}

func (c *Config) applyDefaults() {
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = 5 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}
	if c.MaxConcurrentPasses <= 0 {
		c.MaxConcurrentPasses = 4
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 1024
	}
}

// Deps are the collaborators of a Coordinator. Store may be nil to disable
// persistence.
type Deps struct {
	Source     Source
	Chunker    *chunker.Chunker
	Classifier *classifier.Classifier
	Embedder   Embedder
	Store      storage.SnapshotStore
	Logger     *slog.Logger
}

// Stats reports coordinator activity since start
type Stats struct {
	Passes     int64 // completed reindexing passes, including discarded ones
	Reindexed  int64 // passes that published changed chunk content
	Discarded  int64 // passes superseded by a newer event
	EmbedCalls int64
	Persists   int64
	Files      int
	Chunks     int
	Pending    int // chunks waiting for a vector
	Version    uint64
}

// Coordinator keeps the index consistent with the file source. Run owns all
// mutation; readers use Snapshot.
type Coordinator struct {
	cfg        Config
	source     Source
	chunker    *chunker.Chunker
	classifier *classifier.Classifier
	embedder   Embedder
	persist    storage.SnapshotStore
	logger     *slog.Logger

	events  chan types.FileEvent
	fired   chan timerFire
	results chan *passResult
	retries chan *retryResult
	stopped chan struct{}
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	running atomic.Bool

	current atomic.Pointer[vectorstore.Snapshot]
	cached  atomic.Bool

	// owned by the Run goroutine
	store    *vectorstore.Store
	files    map[string]*fileTrack
	nextGen  uint64
	retrying bool

	stateMu sync.RWMutex
	states  map[string]FileState
	removed *lru.Cache[string, struct{}]

	idleMu sync.Mutex
	busy   int
	idle   chan struct{}

	persistLock      saveLock
	persistedVersion atomic.Uint64

	passes     atomic.Int64
	reindexed  atomic.Int64
	discarded  atomic.Int64
	embedCalls atomic.Int64
	persists   atomic.Int64
}

// New creates a coordinator. Call Load, then Run.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Source == nil || deps.Chunker == nil || deps.Classifier == nil || deps.Embedder == nil {
		return nil, errors.New("indexer: source, chunker, classifier and embedder are required")
	}
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		cfg:        cfg,
		source:     deps.Source,
		chunker:    deps.Chunker,
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		persist:    deps.Store,
		logger:     logger,
		events:     make(chan types.FileEvent, cfg.EventQueueSize),
		fired:      make(chan timerFire),
		results:    make(chan *passResult),
		retries:    make(chan *retryResult),
		stopped:    make(chan struct{}),
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentPasses)),
		store:      vectorstore.New(),
		files:      make(map[string]*fileTrack),
		states:     make(map[string]FileState),
		idle:       make(chan struct{}),
	}
	// lru.New only fails for a non-positive size
	c.removed, _ = lru.New[string, struct{}](removedHistory)
	close(c.idle)
	c.current.Store(vectorstore.Empty())
	return c, nil
}

// Snapshot returns the latest published snapshot
func (c *Coordinator) Snapshot() *vectorstore.Snapshot {
	return c.current.Load()
}

// Cached reports whether the index was restored from persisted state
func (c *Coordinator) Cached() bool {
	return c.cached.Load()
}

// Stats returns activity counters and the size of the current snapshot
func (c *Coordinator) Stats() Stats {
	snap := c.current.Load()
	return Stats{
		Passes:     c.passes.Load(),
		Reindexed:  c.reindexed.Load(),
		Discarded:  c.discarded.Load(),
		EmbedCalls: c.embedCalls.Load(),
		Persists:   c.persists.Load(),
		Files:      snap.FileCount(),
		Chunks:     snap.Len(),
		Pending:    snap.Len() - snap.EmbeddedCount(),
		Version:    snap.Version(),
	}
}

// Load restores the persisted snapshot. A missing or unreadable snapshot
// leaves the index empty. It must be called before Run.
func (c *Coordinator) Load(ctx context.Context) error {
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.persist == nil {
		return nil
	}

	snap, meta, err := c.persist.Load(ctx, c.cfg.Model)
	switch {
	case errors.Is(err, storage.ErrNoSnapshot):
		c.logger.Info("no persisted index, starting empty")
		return nil
	case err != nil:
		c.logger.Warn("persisted index unreadable, rebuilding", "error", err)
		if rerr := c.persist.Reset(ctx); rerr != nil {
			return fmt.Errorf("failed to clear unreadable index: %w", rerr)
		}
		return nil
	}

	if meta.Model != c.cfg.Model {
		c.logger.Info("embedding model changed, vectors will be recomputed",
			"persisted", meta.Model, "current", c.cfg.Model)
	}

	c.store.Restore(snap)
	for _, entry := range snap.Files() {
		c.setState(entry.FilePath, StateIndexed)
	}
	c.current.Store(snap)
	c.persistedVersion.Store(snap.Version())
	c.cached.Store(true)
	c.logger.Info("restored index", "files", snap.FileCount(), "chunks", snap.Len(),
		"pending", snap.Len()-snap.EmbeddedCount(), "version", snap.Version())
	return nil
}

// Enqueue submits a file event. It blocks while the event queue is full.
func (c *Coordinator) Enqueue(ctx context.Context, ev types.FileEvent) error {
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}

	c.track(1)
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		c.track(-1)
		return ctx.Err()
	case <-c.stopped:
		c.track(-1)
		return ErrStopped
	}
}

// Sync enqueues a created event for every file the source lists and a
// deleted event for every indexed file it no longer lists
func (c *Coordinator) Sync(ctx context.Context) error {
	files, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	present := make(map[string]bool, len(files))
	for _, path := range files {
		present[path] = true
		if err := c.Enqueue(ctx, types.FileEvent{Path: path, Kind: types.FileCreated}); err != nil {
			return err
		}
	}
	for _, entry := range c.current.Load().Files() {
		if present[entry.FilePath] {
			continue
		}
		if err := c.Enqueue(ctx, types.FileEvent{Path: entry.FilePath, Kind: types.FileDeleted}); err != nil {
			return err
		}
	}
	c.logger.Info("sync queued", "files", len(files))
	return nil
}

// WaitIdle blocks until no events are queued, no debounce timer is armed and
// no pass is running
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.idleMu.Lock()
	idle := c.idle
	c.idleMu.Unlock()

	select {
	case <-idle:
		return nil
	default:
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Run processes events until ctx is cancelled, then stops pending work and
// flushes the snapshot to storage
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	persistTicker := time.NewTicker(c.cfg.PersistInterval)
	defer persistTicker.Stop()
	retryTicker := time.NewTicker(c.cfg.RetryInterval)
	defer retryTicker.Stop()

	c.logger.Info("index coordinator started", "debounce", c.cfg.Debounce, "passes", c.cfg.MaxConcurrentPasses)

	for {
		select {
		case <-ctx.Done():
			return c.shutdown(ctx)

		case ev := <-c.events:
			c.handleEvent(ctx, ev)
			c.track(-1)

		case f := <-c.fired:
			c.handleFire(ctx, f)
			c.track(-1)

		case res := <-c.results:
			c.handlePass(ctx, res)
			c.track(-1)

		case res := <-c.retries:
			c.handleRetry(res)
			c.track(-1)

		case <-retryTicker.C:
			c.startRetry(ctx)

		case <-persistTicker.C:
			c.maybePersist(ctx)
		}
	}
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	close(c.stopped)
	for _, ft := range c.files {
		if ft.timer != nil {
			ft.timer.Stop()
		}
	}
	c.wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.Flush(flushCtx); err != nil {
		c.logger.Warn("final index flush failed", "error", err)
	}
	c.logger.Info("index coordinator stopped")
	return nil
}

func (c *Coordinator) handleEvent(ctx context.Context, ev types.FileEvent) {
	ft, known := c.files[ev.Path]
	if !known && ev.Kind == types.FileDeleted {
		if _, indexed := c.store.File(ev.Path); !indexed {
			// a removed directory: expand to the indexed files below it
			prefix := strings.TrimSuffix(ev.Path, "/") + "/"
			for _, entry := range c.store.Files() {
				if strings.HasPrefix(entry.FilePath, prefix) {
					c.handleEvent(ctx, types.FileEvent{Path: entry.FilePath, Kind: types.FileDeleted})
				}
			}
			return
		}
	}
	if !known {
		ft = &fileTrack{}
		c.files[ev.Path] = ft
	}

	c.nextGen++
	ft.gen = c.nextGen
	ft.deleted = ev.Kind == types.FileDeleted
	ft.due = false

	if ft.timer != nil && ft.timer.Stop() {
		c.track(-1)
	}
	c.track(1)
	path, gen := ev.Path, ft.gen
	ft.timer = time.AfterFunc(c.cfg.Debounce, func() {
		select {
		case c.fired <- timerFire{path: path, gen: gen}:
		case <-c.stopped:
		}
	})
}

func (c *Coordinator) handleFire(ctx context.Context, f timerFire) {
	ft, ok := c.files[f.path]
	if !ok || f.gen != ft.gen {
		return // superseded by a later event
	}
	ft.timer = nil
	ft.due = true
	if !ft.inflight {
		c.startPass(ctx, f.path, ft)
	}
}

func (c *Coordinator) startPass(ctx context.Context, path string, ft *fileTrack) {
	ft.due = false
	ft.inflight = true
	ft.passGen = ft.gen

	job := passJob{
		path:    path,
		gen:     ft.gen,
		deleted: ft.deleted,
		snap:    c.current.Load(),
	}
	if entry, ok := c.store.File(path); ok {
		job.prev = entry
	}

	c.track(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var res *passResult
		if err := c.sem.Acquire(ctx, 1); err != nil {
			res = &passResult{path: path, gen: job.gen, kind: passFailed, err: err}
		} else {
			res = c.runPass(ctx, job)
			c.sem.Release(1)
		}
		select {
		case c.results <- res:
		case <-c.stopped:
		}
	}()
}

func (c *Coordinator) handlePass(ctx context.Context, res *passResult) {
	c.passes.Add(1)
	ft := c.files[res.path]
	ft.inflight = false

	if res.gen != ft.gen {
		c.discarded.Add(1)
		c.logger.Debug("discarding superseded pass", "path", res.path, "generation", res.gen,
			"latest", ft.gen, "reason", types.ErrStaleWriteDiscarded)
		switch {
		case ft.due:
			c.startPass(ctx, res.path, ft)
		case res.kind != passUnchanged && res.kind != passFailed:
			// the file differs from the index and a newer event is pending
			c.setState(res.path, StateStale)
		}
		return
	}
	defer c.settle(res.path, ft)

	switch res.kind {
	case passDeleted:
		removed := c.store.DropFile(res.path)
		c.publish()
		c.setState(res.path, StateRemoved)
		c.logger.Debug("file removed from index", "path", res.path, "chunks", len(removed))

	case passUnchanged:
		c.setState(res.path, StateIndexed)

	case passFailed:
		c.logger.Warn("reindexing failed", "path", res.path, "error", res.err)
		if _, ok := c.store.File(res.path); ok {
			c.setState(res.path, StateIndexed)
		} else {
			c.setState(res.path, StateUntracked)
		}

	case passRefreshed, passIndexed:
		c.apply(res)
		c.publish()
		c.setState(res.path, StateIndexed)
		if res.kind == passIndexed {
			c.reindexed.Add(1)
		}
		c.logger.Debug("file indexed", "path", res.path, "chunks", len(res.chunks),
			"embedded", res.embedded, "refresh_only", res.kind == passRefreshed)
	}
}

// apply replaces the chunks of one file with the pass output
func (c *Coordinator) apply(res *passResult) {
	keep := make(map[string]bool, len(res.chunks))
	for _, ch := range res.chunks {
		keep[ch.ID] = true
	}
	if old, ok := c.store.File(res.path); ok {
		for _, id := range old.ChunkIDs {
			if !keep[id] {
				c.store.Remove(id)
			}
		}
	}

	for i, ch := range res.chunks {
		vec := res.vectors[i]
		if vec == nil {
			// a retry may have filled it in while the pass ran
			if r, ok := c.store.Record(ch.ID); ok && r.Embedded() && r.Chunk.ContentHash == ch.ContentHash {
				vec = r.Vector
			}
		}
		c.store.Upsert(ch, vec)
	}
	c.store.PutFile(res.entry)
}

func (c *Coordinator) publish() {
	c.current.Store(c.store.Snapshot())
}

// Flush saves the current snapshot if it changed since the last save
func (c *Coordinator) Flush(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}

	if err := c.persistLock.Acquire(ctx); err != nil {
		return err
	}
	defer c.persistLock.Release()

	return c.save(ctx, c.current.Load())
}

func (c *Coordinator) maybePersist(ctx context.Context) {
	if c.persist == nil {
		return
	}
	snap := c.current.Load()
	if snap.Version() == c.persistedVersion.Load() {
		return
	}
	if !c.persistLock.TryAcquire() {
		return // a save is already running
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.persistLock.Release()
		if err := c.save(ctx, snap); err != nil && ctx.Err() == nil {
			c.logger.Warn("failed to persist index", "error", err)
		}
	}()
}

// save requires persistLock
func (c *Coordinator) save(ctx context.Context, snap *vectorstore.Snapshot) error {
	if snap.Version() == c.persistedVersion.Load() {
		return nil
	}
	start := time.Now()
	err := c.persist.Save(ctx, snap, storage.Meta{
		Version:   snap.Version(),
		Provider:  c.cfg.Provider,
		Model:     c.cfg.Model,
		Dimension: snap.Dimension(),
	})
	if err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Version(), err)
	}
	c.persistedVersion.Store(snap.Version())
	c.persists.Add(1)
	c.logger.Debug("index persisted", "version", snap.Version(), "chunks", snap.Len(), "duration", time.Since(start))
	return nil
}
