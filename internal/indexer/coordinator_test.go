package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/livecontext-mcp/internal/chunker"
	"github.com/dshills/livecontext-mcp/internal/classifier"
	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/storage"
	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

const mathSource = `export function add(a, b) {
  return a + b;
}

export function sub(a, b) {
  return a - b;
}
`

// memSource is an in-memory file tree
type memSource struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemSource(files map[string]string) *memSource {
	if files == nil {
		files = map[string]string{}
	}
	return &memSource{files: files}
}

func (s *memSource) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

func (s *memSource) Read(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return []byte(src), nil
}

func (s *memSource) write(path, src string) {
	s.mu.Lock()
	s.files[path] = src
	s.mu.Unlock()
}

func (s *memSource) remove(path string) {
	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
}

// fakeEmbedder returns hashing vectors. When gate is set every call blocks
// until it is closed.
type fakeEmbedder struct {
	calls   atomic.Int64
	fail    atomic.Bool
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (e *fakeEmbedder) Embed(ctx context.Context, _ embedder.Priority, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.gate != nil {
		e.once.Do(func() { close(e.started) })
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail.Load() {
		return nil, types.ErrEmbeddingUnavailable
	}
	return embedder.HashingVector(text, 16), nil
}

func testConfig() Config {
	return Config{
		Debounce:            10 * time.Millisecond,
		PersistInterval:     time.Hour,
		RetryInterval:       time.Hour,
		MaxConcurrentPasses: 2,
		Provider:            "local",
		Model:               "test-model",
	}
}

type harness struct {
	t      *testing.T
	coord  *Coordinator
	source *memSource
	emb    *fakeEmbedder
	cancel context.CancelFunc
	done   chan error
}

func newCoordinator(t *testing.T, cfg Config, src *memSource, emb *fakeEmbedder, store storage.SnapshotStore) *Coordinator {
	t.Helper()
	cls, err := classifier.New(config.DefaultRules(), config.ComplexityThresholds{Medium: 6, High: 15})
	require.NoError(t, err)
	c, err := New(cfg, Deps{
		Source:     src,
		Chunker:    chunker.New(nil),
		Classifier: cls,
		Embedder:   emb,
		Store:      store,
	})
	require.NoError(t, err)
	return c
}

func startHarness(t *testing.T, cfg Config, src *memSource, emb *fakeEmbedder, store storage.SnapshotStore) *harness {
	t.Helper()
	coord := newCoordinator(t, cfg, src, emb, store)
	require.NoError(t, coord.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, coord: coord, source: src, emb: emb, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- coord.Run(ctx) }()
	return h
}

func (h *harness) stop() {
	h.cancel()
	require.NoError(h.t, <-h.done)
}

func (h *harness) event(path string, kind types.FileEventKind) {
	h.t.Helper()
	require.NoError(h.t, h.coord.Enqueue(context.Background(), types.FileEvent{Path: path, Kind: kind}))
}

func (h *harness) waitIdle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(h.t, h.coord.WaitIdle(ctx))
}

func chunkIDs(c *Coordinator) []string {
	var ids []string
	for _, ch := range c.Snapshot().Chunks() {
		ids = append(ids, ch.ID)
	}
	return ids
}

// requireVectorsMatchText checks that every stored vector is the embedding
// of the text of the chunk it is stored with
func requireVectorsMatchText(t *testing.T, c *Coordinator) {
	t.Helper()
	for _, r := range c.Snapshot().Records() {
		if !r.Embedded() {
			continue
		}
		require.Equal(t, embedder.HashingVector(chunker.EmbeddingText(r.Chunk), 16), r.Vector, r.Chunk.ID)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(testConfig(), Deps{Source: newMemSource(nil)})
	assert.Error(t, err)
}

func TestCoordinatorIndexesFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, testConfig(), src, &fakeEmbedder{}, nil)
	defer h.stop()

	assert.Equal(t, StateUntracked, h.coord.FileState("src/math.js"))
	h.event("src/math.js", types.FileCreated)
	h.waitIdle()

	assert.Equal(t, []string{"src/math.js#add", "src/math.js#sub"}, chunkIDs(h.coord))
	assert.Equal(t, StateIndexed, h.coord.FileState("src/math.js"))

	stats := h.coord.Stats()
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Zero(t, stats.Pending)
	assert.EqualValues(t, 2, stats.EmbedCalls)
	assert.EqualValues(t, 1, stats.Reindexed)

	entry, ok := h.coord.Snapshot().File("src/math.js")
	require.True(t, ok)
	assert.Equal(t, []string{"src/math.js#add", "src/math.js#sub"}, entry.ChunkIDs)
}

func TestCoordinatorDebounceCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.Debounce = 100 * time.Millisecond
	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, cfg, src, &fakeEmbedder{}, nil)
	defer h.stop()

	for range 5 {
		h.event("src/math.js", types.FileModified)
	}
	h.waitIdle()

	stats := h.coord.Stats()
	assert.EqualValues(t, 1, stats.Passes)
	assert.EqualValues(t, 2, stats.EmbedCalls)
}

func TestCoordinatorLastWriteWins(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	emb := &fakeEmbedder{gate: make(chan struct{}), started: make(chan struct{})}
	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, testConfig(), src, emb, nil)
	defer h.stop()

	h.event("src/math.js", types.FileCreated)
	select {
	case <-emb.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never reached the embedder")
	}

	src.write("src/math.js", "export function mul(a, b) {\n  return a * b;\n}\n")
	h.event("src/math.js", types.FileModified)
	// let the second debounce elapse while the first pass is blocked
	time.Sleep(50 * time.Millisecond)
	close(emb.gate)
	h.waitIdle()

	assert.Equal(t, []string{"src/math.js#mul"}, chunkIDs(h.coord))
	stats := h.coord.Stats()
	assert.EqualValues(t, 1, stats.Discarded)
	assert.EqualValues(t, 1, stats.Reindexed)
	assert.Equal(t, StateIndexed, h.coord.FileState("src/math.js"))
}

func TestCoordinatorIncrementalWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, testConfig(), src, &fakeEmbedder{}, nil)
	defer h.stop()

	h.event("src/math.js", types.FileCreated)
	h.waitIdle()
	before := h.coord.Stats()
	version := h.coord.Snapshot().Version()

	t.Run("identical bytes", func(t *testing.T) {
		h.event("src/math.js", types.FileModified)
		h.waitIdle()
		assert.Equal(t, version, h.coord.Snapshot().Version())
		assert.Equal(t, before.EmbedCalls, h.coord.Stats().EmbedCalls)
	})

	t.Run("whitespace only", func(t *testing.T) {
		src.write("src/math.js", "\n\n"+strings.ReplaceAll(mathSource, "  return", "      return"))
		h.event("src/math.js", types.FileModified)
		h.waitIdle()

		stats := h.coord.Stats()
		assert.Equal(t, before.EmbedCalls, stats.EmbedCalls)
		assert.Equal(t, before.Reindexed, stats.Reindexed)
		assert.Zero(t, stats.Pending)

		add, ok := h.coord.Snapshot().Chunk("src/math.js#add")
		require.True(t, ok)
		assert.Equal(t, 3, add.StartLine)
		requireVectorsMatchText(t, h.coord)
	})

	t.Run("one declaration changed", func(t *testing.T) {
		src.write("src/math.js", strings.Replace(mathSource, "a - b", "b - a", 1))
		h.event("src/math.js", types.FileModified)
		h.waitIdle()

		stats := h.coord.Stats()
		assert.Equal(t, before.EmbedCalls+1, stats.EmbedCalls)
		assert.Equal(t, before.Reindexed+1, stats.Reindexed)
		requireVectorsMatchText(t, h.coord)
	})
}

func TestCoordinatorTouchKeepsIndexedState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.Debounce = 50 * time.Millisecond
	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, cfg, src, &fakeEmbedder{}, nil)
	defer h.stop()

	h.event("src/math.js", types.FileCreated)
	h.waitIdle()
	require.Equal(t, StateIndexed, h.coord.FileState("src/math.js"))

	h.event("src/math.js", types.FileModified)
	assert.Never(t, func() bool {
		return h.coord.FileState("src/math.js") != StateIndexed
	}, 150*time.Millisecond, time.Millisecond, "an unchanged file never leaves indexed")
	h.waitIdle()
	assert.EqualValues(t, 2, h.coord.Stats().Passes)
}

func TestCoordinatorPrunesSettledFiles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	files := map[string]string{}
	for i := range 40 {
		files[fmt.Sprintf("src/f%02d.js", i)] = fmt.Sprintf("export function f%d() { return %d; }\n", i, i)
	}
	src := newMemSource(files)
	h := startHarness(t, testConfig(), src, &fakeEmbedder{}, nil)

	require.NoError(t, h.coord.Sync(context.Background()))
	h.waitIdle()
	require.Equal(t, 40, h.coord.Stats().Files)

	for i := range 30 {
		path := fmt.Sprintf("src/f%02d.js", i)
		src.remove(path)
		h.event(path, types.FileDeleted)
	}
	h.waitIdle()
	h.stop()

	tracks, live := h.coord.tracked()
	assert.Zero(t, tracks, "no bookkeeping is kept for settled files")
	assert.Equal(t, 10, live, "only indexed files keep a state")
	assert.Equal(t, StateRemoved, h.coord.FileState("src/f00.js"))
	assert.Equal(t, StateIndexed, h.coord.FileState("src/f35.js"))
	assert.Equal(t, StateUntracked, h.coord.FileState("src/never.js"))
}

// versionedSource renders a file whose every declaration carries the
// revision number, so a snapshot mixing two revisions of one file is visible
func versionedSource(rev int) string {
	var b strings.Builder
	for _, name := range []string{"alpha", "beta", "gamma"} {
		fmt.Fprintf(&b, "export function %s_r%d(x) {\n  return x + %d;\n}\n\n", name, rev, rev)
	}
	return b.String()
}

func TestCoordinatorConcurrentReaders(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.Debounce = time.Millisecond
	paths := []string{"src/a.js", "src/b.js", "src/c.js"}
	src := newMemSource(nil)
	for _, p := range paths {
		src.write(p, versionedSource(0))
	}
	h := startHarness(t, cfg, src, &fakeEmbedder{}, nil)
	defer h.stop()
	require.NoError(t, h.coord.Sync(context.Background()))
	h.waitIdle()

	stop := make(chan struct{})
	var readers sync.WaitGroup
	var reads atomic.Int64
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := h.coord.Snapshot()
				if err := snap.Validate(); err != nil {
					t.Errorf("torn snapshot %d: %v", snap.Version(), err)
					return
				}
				for _, entry := range snap.Files() {
					revs := map[string]bool{}
					for _, id := range entry.ChunkIDs {
						revs[id[strings.LastIndex(id, "_r"):]] = true
					}
					if len(revs) != 1 {
						t.Errorf("snapshot %d mixes revisions of %s: %v", snap.Version(), entry.FilePath, entry.ChunkIDs)
						return
					}
				}
				_ = snap.Search(embedder.HashingVector("return x", 16), 5, -1, nil)
				reads.Add(1)
			}
		}()
	}

	for rev := 1; rev <= 20; rev++ {
		for _, p := range paths {
			src.write(p, versionedSource(rev))
			h.event(p, types.FileModified)
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.waitIdle()
	close(stop)
	readers.Wait()

	assert.Positive(t, reads.Load())
	for _, id := range chunkIDs(h.coord) {
		assert.True(t, strings.HasSuffix(id, "_r20"), id)
	}
	requireVectorsMatchText(t, h.coord)
}

func TestCoordinatorCorruptSnapshotResetsStore(t *testing.T) {
	store := &corruptStore{}
	src := newMemSource(map[string]string{"src/math.js": mathSource})
	coord := newCoordinator(t, testConfig(), src, &fakeEmbedder{}, store)

	require.NoError(t, coord.Load(context.Background()))
	assert.False(t, coord.Cached())
	assert.Zero(t, coord.Snapshot().Len())
	assert.Equal(t, 1, store.resets, "unreadable rows are cleared before the next save")
}

func TestCoordinatorDelete(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := newMemSource(map[string]string{
		"src/a/x.js": "export function x() { return 1; }\n",
		"src/a/y.js": "export function y() { return 2; }\n",
		"src/b.js":   "export function b() { return 3; }\n",
	})
	h := startHarness(t, testConfig(), src, &fakeEmbedder{}, nil)
	defer h.stop()

	require.NoError(t, h.coord.Sync(context.Background()))
	h.waitIdle()
	require.Equal(t, 3, h.coord.Stats().Files)

	t.Run("missing file", func(t *testing.T) {
		src.remove("src/b.js")
		h.event("src/b.js", types.FileModified)
		h.waitIdle()

		_, ok := h.coord.Snapshot().File("src/b.js")
		assert.False(t, ok)
		assert.Equal(t, StateRemoved, h.coord.FileState("src/b.js"))
	})

	t.Run("directory", func(t *testing.T) {
		src.remove("src/a/x.js")
		src.remove("src/a/y.js")
		h.event("src/a", types.FileDeleted)
		h.waitIdle()

		assert.Zero(t, h.coord.Stats().Files)
		assert.Empty(t, h.coord.Snapshot().Chunks())
		assert.Equal(t, StateRemoved, h.coord.FileState("src/a/x.js"))
	})
}

func TestCoordinatorEmbeddingUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.RetryInterval = 20 * time.Millisecond
	emb := &fakeEmbedder{}
	emb.fail.Store(true)
	src := newMemSource(map[string]string{"src/math.js": mathSource})
	h := startHarness(t, cfg, src, emb, nil)
	defer h.stop()

	h.event("src/math.js", types.FileCreated)
	h.waitIdle()

	snap := h.coord.Snapshot()
	assert.Equal(t, 2, snap.Len())
	assert.Zero(t, snap.EmbeddedCount())
	assert.Equal(t, StateIndexed, h.coord.FileState("src/math.js"))

	emb.fail.Store(false)
	require.Eventually(t, func() bool {
		return h.coord.Stats().Pending == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, h.coord.Snapshot().EmbeddedCount())
}

func TestCoordinatorPersistence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	src := newMemSource(map[string]string{
		"src/math.js": mathSource,
		"src/old.js":  "export function old() { return 0; }\n",
	})

	first := startHarness(t, testConfig(), src, &fakeEmbedder{}, store)
	assert.False(t, first.coord.Cached())
	require.NoError(t, first.coord.Sync(context.Background()))
	first.waitIdle()
	want := chunkIDs(first.coord)
	first.stop()
	assert.EqualValues(t, 1, first.coord.Stats().Persists)

	emb := &fakeEmbedder{}
	second := startHarness(t, testConfig(), src, emb, store)
	defer second.stop()

	assert.True(t, second.coord.Cached())
	assert.Equal(t, want, chunkIDs(second.coord))
	assert.Equal(t, StateIndexed, second.coord.FileState("src/math.js"))
	assert.Zero(t, second.coord.Stats().Pending)

	src.remove("src/old.js")
	require.NoError(t, second.coord.Sync(context.Background()))
	second.waitIdle()

	assert.Zero(t, emb.calls.Load(), "unchanged files are not embedded again")
	_, ok := second.coord.Snapshot().File("src/old.js")
	assert.False(t, ok)
	assert.Equal(t, 1, second.coord.Stats().Files)
}

// corruptStore fails every Load as unreadable
type corruptStore struct {
	resets int
}

func (s *corruptStore) Save(context.Context, *vectorstore.Snapshot, storage.Meta) error { return nil }

func (s *corruptStore) Load(context.Context, string) (*vectorstore.Snapshot, storage.Meta, error) {
	return nil, storage.Meta{}, fmt.Errorf("chunk x: %w", types.ErrCorruptSnapshot)
}

func (s *corruptStore) Reset(context.Context) error {
	s.resets++
	return nil
}

func (s *corruptStore) Close() error { return nil }

func TestCoordinatorFlushSkipsUnchanged(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	coord := newCoordinator(t, testConfig(), newMemSource(nil), &fakeEmbedder{}, store)
	require.NoError(t, coord.Flush(context.Background()))
	assert.Zero(t, coord.Stats().Persists)
}

func TestWaitIdleHonorsContext(t *testing.T) {
	coord := newCoordinator(t, testConfig(), newMemSource(nil), &fakeEmbedder{}, nil)
	require.NoError(t, coord.WaitIdle(context.Background()))

	require.NoError(t, coord.Enqueue(context.Background(), types.FileEvent{Path: "a.js", Kind: types.FileCreated}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, coord.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestEnqueueAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := startHarness(t, testConfig(), newMemSource(nil), &fakeEmbedder{}, nil)
	h.stop()

	err := h.coord.Enqueue(context.Background(), types.FileEvent{Path: "a.js", Kind: types.FileCreated})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, h.coord.Run(context.Background()), ErrAlreadyRunning)
}
