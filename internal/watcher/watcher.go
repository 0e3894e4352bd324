// Package watcher re-indexes files as they change on disk. Events are
// collected per path and handed to the indexer in one batch once the
// workspace has been quiet for the debounce interval.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/codesearch/internal/indexer"
)

// DefaultDebounce is the quiet period before a batch is indexed
const DefaultDebounce = 300 * time.Millisecond

// Indexer re-indexes a set of paths under a workspace root
type Indexer interface {
	IndexPaths(ctx context.Context, root string, paths []string, config *indexer.Config) (*indexer.Statistics, error)
}

// Watcher watches a workspace tree with fsnotify
type Watcher struct {
	root     string
	idx      Indexer
	config   *indexer.Config
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before indexing
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for every directory under root
func New(root string, idx Indexer, config *indexer.Config, opts ...Option) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = indexer.DefaultConfig()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		idx:      idx,
		config:   config,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fsw:      fsw,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx ends or the watcher is closed. Pending
// paths are indexed before Run returns on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush with a fresh context; the caller's is already done
			w.flush(context.WithoutCancel(ctx))
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "root", w.root, "error", err)

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// handle queues the paths affected by ev and reports whether any were queued
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if w.ignored(ev.Name) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files may land in a new directory before its watch exists
			files, err := w.addTree(ev.Name)
			if err != nil {
				w.logger.Warn("failed to watch directory", "path", ev.Name, "error", err)
			}
			w.queue(files...)
			return len(files) > 0
		}
	}

	w.queue(ev.Name)
	return true
}

func (w *Watcher) queue(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		w.pending[p] = struct{}{}
	}
}

// flush hands every pending path to the indexer
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	stats, err := w.idx.IndexPaths(ctx, w.root, paths, w.config)
	if err != nil {
		w.logger.Error("re-index failed", "root", w.root, "paths", len(paths), "error", err)
		return
	}
	w.logger.Debug("re-indexed changed files",
		"root", w.root,
		"indexed", stats.FilesIndexed,
		"removed", stats.FilesRemoved,
		"skipped", stats.FilesSkipped)
}

// addTree watches dir and its subdirectories and returns the files found
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		}
		if path != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
	return files, err
}

func (w *Watcher) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return !w.config.IncludeVendor && (name == "vendor" || name == "node_modules")
}

// ignored reports whether path lies inside a skipped directory
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if w.skipDir(dir) {
			return true
		}
	}
	return false
}
