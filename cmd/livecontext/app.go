package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/livecontext-mcp/internal/chunker"
	"github.com/dshills/livecontext-mcp/internal/classifier"
	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/embedder"
	"github.com/dshills/livecontext-mcp/internal/indexer"
	"github.com/dshills/livecontext-mcp/internal/searcher"
	"github.com/dshills/livecontext-mcp/internal/storage"
	"github.com/dshills/livecontext-mcp/internal/watcher"
)

// app owns every long-lived component of one process
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.SQLiteStorage
	emb      embedder.Embedder
	queue    *embedder.Queue
	watcher  *watcher.Watcher
	coord    *indexer.Coordinator
	searcher *searcher.Searcher
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.root != "" {
		cfg.Root = opts.root
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevelValue()
	if err != nil {
		return nil, err
	}
	// stdout is reserved for the MCP protocol
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg.Root = root

	rules := config.DefaultRules()
	if cfg.RulesFile != "" {
		if rules, err = config.LoadRules(cfg.ResolvePath(cfg.RulesFile)); err != nil {
			return nil, err
		}
	}
	cls, err := classifier.New(rules, cfg.Complexity)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	emb, err := embedder.New(embedder.ConfigFrom(cfg.Embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	queue := embedder.NewQueue(emb, cfg.Embedder.Workers, cfg.Embedder.QueueSize)

	w, err := watcher.New(root, cfg.Include, cfg.Exclude, logger)
	if err != nil {
		_ = queue.Close()
		return nil, err
	}

	store, err := openStorage(cfg.ResolvePath(cfg.DBPath), logger)
	if err != nil {
		_ = queue.Close()
		return nil, err
	}

	icfg := indexer.ConfigFrom(cfg.Indexer)
	icfg.Provider = queue.Provider()
	icfg.Model = queue.Model()

	coord, err := indexer.New(icfg, indexer.Deps{
		Source:     w,
		Chunker:    chunker.New(logger),
		Classifier: cls,
		Embedder:   queue,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		_ = queue.Close()
		return nil, err
	}
	if err := coord.Load(ctx); err != nil {
		_ = store.Close()
		_ = queue.Close()
		return nil, err
	}

	scfg := searcher.ConfigFrom(cfg.Search)
	scfg.Provider = icfg.Provider
	scfg.Model = icfg.Model

	var bundles searcher.BundleProvider
	if len(cfg.Bundles) > 0 {
		bundles = cfg.Bundles
	}
	srch, err := searcher.NewSearcher(scfg, coord, queue, bundles)
	if err != nil {
		_ = store.Close()
		_ = queue.Close()
		return nil, err
	}

	logger.Info("livecontext ready",
		"version", version,
		"root", root,
		"db", cfg.ResolvePath(cfg.DBPath),
		"provider", icfg.Provider,
		"model", icfg.Model,
		"build", storage.BuildMode)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		emb:      emb,
		queue:    queue,
		watcher:  w,
		coord:    coord,
		searcher: srch,
	}, nil
}

// openStorage opens the index database. A database that cannot be opened is
// moved aside and replaced by a fresh one.
func openStorage(path string, logger *slog.Logger) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(path)
	if err == nil {
		return store, nil
	}
	if errors.Is(err, storage.ErrIncompatibleSchema) {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Warn("index database unusable, starting fresh", "path", path, "moved_to", aside, "error", err)
	if rerr := os.Rename(path, aside); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to move corrupt database: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return storage.NewSQLiteStorage(path)
}

func (a *app) close() {
	_ = a.queue.Close()
	if err := a.emb.Close(); err != nil {
		a.logger.Warn("failed to close embedder", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close index database", "error", err)
	}
}
