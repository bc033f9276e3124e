// Package watcher is the disk-backed file source for the indexer. It lists
// and reads tracked files under a root directory and turns fsnotify events
// into types.FileEvent values.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

var (
	// ErrOutsideRoot is returned when a path escapes the watched root
	ErrOutsideRoot = errors.New("path outside root")
	// ErrNotTracked is returned by Read for paths excluded by the patterns
	ErrNotTracked = errors.New("path not tracked")
)

// Sink receives file events, normally the index coordinator
type Sink interface {
	Enqueue(ctx context.Context, ev types.FileEvent) error
}

// Watcher lists, reads and watches the files under root that match the
// include patterns and none of the exclude patterns. Paths are relative to
// root and use forward slashes.
type Watcher struct {
	root    string
	include []string
	exclude []string
	logger  *slog.Logger
}

// New creates a watcher over root
func New(root string, include, exclude []string, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	for _, p := range slices.Concat(include, exclude) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: abs, include: include, exclude: exclude, logger: logger}, nil
}

// Tracked reports whether the relative path is indexed
func (w *Watcher) Tracked(rel string) bool {
	if w.excluded(rel) {
		return false
	}
	for _, p := range w.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) excluded(rel string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// excludedDir reports whether everything under the relative directory is excluded
func (w *Watcher) excludedDir(rel string) bool {
	if rel == "." {
		return false
	}
	child := rel + "/_"
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, child); ok && strings.HasSuffix(p, "/**") {
			return true
		}
	}
	return false
}

// List returns every tracked file, sorted
func (w *Watcher) List(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := w.rel(path)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.Tracked(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Read returns the content of a tracked file
func (w *Watcher) Read(rel string) ([]byte, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	if !w.Tracked(clean) {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, rel)
	}
	return os.ReadFile(filepath.Join(w.root, filepath.FromSlash(clean)))
}

func (w *Watcher) rel(abs string) (string, error) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	return rel, nil
}

// Run watches the root until ctx is cancelled, forwarding events for tracked
// files to sink. New directories are watched as they appear.
func (w *Watcher) Run(ctx context.Context, sink Sink) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addWatches(fsw, w.root, nil); err != nil {
		return err
	}
	w.logger.Info("watching files", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, sink, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// addWatches watches dir and its subdirectories. When found is non-nil,
// tracked files inside are reported to it.
func (w *Watcher) addWatches(fsw *fsnotify.Watcher, dir string, found func(rel string)) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := w.rel(path)
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if found != nil && d.Type().IsRegular() && w.Tracked(rel) {
				found(rel)
			}
			return nil
		}
		if w.excludedDir(rel) {
			return filepath.SkipDir
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil || visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", rel, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, sink Sink, event fsnotify.Event) {
	rel, err := w.rel(event.Name)
	if err != nil {
		return
	}

	emit := func(path string, kind types.FileEventKind) {
		w.logger.Debug("file event", "path", path, "kind", kind)
		if err := sink.Enqueue(ctx, types.FileEvent{Path: path, Kind: kind}); err != nil && ctx.Err() == nil {
			w.logger.Warn("failed to enqueue file event", "path", path, "error", err)
		}
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// a rename is followed by a create for the new name. The path may
		// have been a directory; the sink expands it to the files below.
		if w.Tracked(rel) || !w.excludedDir(rel) && !w.excluded(rel) {
			emit(rel, types.FileDeleted)
		}
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// files may land before the watch is added
			if err := w.addWatches(fsw, event.Name, func(p string) { emit(p, types.FileCreated) }); err != nil {
				w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return
		}
		if w.Tracked(rel) {
			emit(rel, types.FileCreated)
		}
	case event.Has(fsnotify.Write):
		if w.Tracked(rel) {
			emit(rel, types.FileModified)
		}
	}
}
