package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/parser"
	"github.com/dshills/codesearch/internal/storage"
)

const (
	// DefaultLockTimeout bounds the wait for the index lock before a commit
	DefaultLockTimeout = 30 * time.Second
	// DefaultMaxFileSize skips files larger than this (default: 1MB)
	DefaultMaxFileSize = 1 << 20

	// binarySniffLen is how much of a file is checked for NUL bytes
	binarySniffLen = 8000
)

// ErrNotDirectory is returned when the workspace root is not a directory
var ErrNotDirectory = errors.New("workspace root is not a directory")

// Invalidator receives change notifications after each commit
type Invalidator interface {
	OnFileChanged(ctx context.Context, path string) error
	OnRecordChanged(ctx context.Context, id int64) error
	OnWorkspaceChanged(ctx context.Context, root string) error
}

// Indexer coordinates the indexing pipeline: walk -> parse -> analyze -> store
type Indexer struct {
	parser      *parser.Parser
	analyzer    *analysis.Analyzer
	storage     storage.Engine
	lock        *lock.Lock
	invalidator Invalidator
	logger      *slog.Logger
	lockTimeout time.Duration
}

// Config contains configuration for the indexer
type Config struct {
	Workers         int      `yaml:"workers"`          // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize       int      `yaml:"batch_size"`       // Number of documents to commit per transaction (default: 50)
	IncludeTests    bool     `yaml:"include_tests"`    // Whether to index test files (default: true)
	IncludeVendor   bool     `yaml:"include_vendor"`   // Whether to index vendor and node_modules (default: false)
	Extensions      []string `yaml:"extensions"`       // Only index these extensions (default: every language the parser knows)
	ExcludePatterns []string `yaml:"exclude_patterns"` // Doublestar globs on workspace-relative paths
	SharedPatterns  []string `yaml:"shared_patterns"`  // Doublestar globs marking shared documents
	MaxFileSize     int64    `yaml:"max_file_size"`    // Larger files are skipped (default: 1MB)
	Force           bool     `yaml:"-"`                // Re-index files even when their hash is unchanged
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		Workers:        runtime.NumCPU(),
		BatchSize:      50,
		IncludeTests:   true,
		IncludeVendor:  false,
		SharedPatterns: []string{"**/shared/**", "**/common/**"},
		MaxFileSize:    DefaultMaxFileSize,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 50
	}
	if out.MaxFileSize <= 0 {
		out.MaxFileSize = DefaultMaxFileSize
	}
	return &out
}

// Validate checks glob syntax
func (c *Config) Validate() error {
	for _, p := range append(append([]string{}, c.ExcludePatterns...), c.SharedPatterns...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	FilesRemoved  int
	Duration      time.Duration
	ErrorMessages []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithInvalidator sets the receiver of change notifications
func WithInvalidator(inv Invalidator) Option {
	return func(idx *Indexer) { idx.invalidator = inv }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithLockTimeout sets how long a commit waits for the index lock
func WithLockTimeout(d time.Duration) Option {
	return func(idx *Indexer) {
		if d > 0 {
			idx.lockTimeout = d
		}
	}
}

// New creates a new Indexer. Commits are serialized through guard, which is
// shared with cache warm-up.
func New(engine storage.Engine, analyzer *analysis.Analyzer, guard *lock.Lock, opts ...Option) *Indexer {
	idx := &Indexer{
		parser:      parser.New(),
		analyzer:    analyzer,
		storage:     engine,
		lock:        guard,
		logger:      slog.Default(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexWorkspace indexes every eligible file under root and removes
// documents whose files no longer exist
func (idx *Indexer) IndexWorkspace(ctx context.Context, root string, config *Config) (*Statistics, error) {
	root, err := workspaceRoot(root)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()

	files, err := idx.discoverFiles(root, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	existing, err := idx.existing(ctx, root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[relPath(root, f)] = struct{}{}
	}
	var removed []storage.PathInfo
	for rel, info := range existing {
		if _, ok := seen[rel]; !ok {
			removed = append(removed, info)
		}
	}

	return idx.run(ctx, root, files, removed, existing, config)
}

// IndexPaths re-indexes specific files under root. Paths that no longer
// exist or no longer pass the filters are removed from the index.
func (idx *Indexer) IndexPaths(ctx context.Context, root string, paths []string, config *Config) (*Statistics, error) {
	root, err := workspaceRoot(root)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()

	existing, err := idx.existing(ctx, root)
	if err != nil {
		return nil, err
	}

	var files []string
	var removed []storage.PathInfo
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		p = filepath.Clean(p)
		rel := relPath(root, p)
		if strings.HasPrefix(rel, "..") {
			continue // outside the workspace
		}

		info, statErr := os.Stat(p)
		if statErr == nil && info.Mode().IsRegular() && idx.eligible(root, p, config) {
			files = append(files, p)
			continue
		}
		if stored, ok := existing[rel]; ok {
			removed = append(removed, stored)
		}
	}

	return idx.run(ctx, root, files, removed, existing, config)
}

// RemoveWorkspace deletes every document of root
func (idx *Indexer) RemoveWorkspace(ctx context.Context, root string) (int, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}

	lease, err := idx.lock.Acquire(ctx, idx.lockTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	n, err := idx.storage.DeleteWorkspace(ctx, root)
	lease.Release()
	if err != nil {
		return 0, err
	}

	if idx.invalidator != nil {
		if err := idx.invalidator.OnWorkspaceChanged(ctx, root); err != nil {
			return n, err
		}
	}
	return n, nil
}

func workspaceRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (idx *Indexer) existing(ctx context.Context, root string) (map[string]storage.PathInfo, error) {
	paths, err := idx.storage.ListPaths(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed documents: %w", err)
	}
	out := make(map[string]storage.PathInfo, len(paths))
	for _, p := range paths {
		out[p.Path] = p
	}
	return out, nil
}

// discoverFiles finds all eligible files in the workspace
func (idx *Indexer) discoverFiles(root string, config *Config) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDir(d.Name(), config) || excluded(relPath(root, path), config) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if idx.eligible(root, path, config) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func skipDir(name string, config *Config) bool {
	// Skip hidden directories
	if strings.HasPrefix(name, ".") {
		return true
	}
	if !config.IncludeVendor && (name == "vendor" || name == "node_modules") {
		return true
	}
	return false
}

// eligible applies the file filters. Directory filters are checked against
// every parent so single-path updates follow the same rules as a walk.
func (idx *Indexer) eligible(root, path string, config *Config) bool {
	rel := relPath(root, path)
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if skipDir(dir, config) {
			return false
		}
	}
	if excluded(rel, config) {
		return false
	}

	if len(config.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		found := false
		for _, want := range config.Extensions {
			if strings.EqualFold(ext, want) || strings.EqualFold(ext, "."+strings.TrimPrefix(want, ".")) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if !idx.parser.Supported(path) {
		return false
	}

	if !config.IncludeTests && isTestFile(rel) {
		return false
	}
	return true
}

func excluded(rel string, config *Config) bool {
	for _, pattern := range config.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func shared(rel string, config *Config) bool {
	for _, pattern := range config.SharedPatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// isTestFile recognizes test files by the conventions of the supported languages
func isTestFile(rel string) bool {
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case strings.HasSuffix(stem, "_test"),
		strings.HasPrefix(stem, "test_"),
		strings.HasSuffix(stem, "Test"), strings.HasSuffix(stem, "Tests"),
		strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		switch dir {
		case "test", "tests", "__tests__", "spec":
			return true
		}
	}
	return false
}

// outcome of preparing one file
type prepared struct {
	doc     *storage.Document
	skipped bool
}

// run prepares files concurrently, commits the result under the index lock
// and then notifies the invalidator
func (idx *Indexer) run(ctx context.Context, root string, files []string, removed []storage.PathInfo,
	existing map[string]storage.PathInfo, config *Config) (*Statistics, error) {

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	results := make([]prepared, len(files))
	var failed atomic.Int32
	var mu sync.Mutex // Protect stats.ErrorMessages

	// Use errgroup for concurrent processing with error propagation
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := idx.prepareFile(root, path, existing, config)
			if err != nil {
				failed.Add(1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				// Continue with other files
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var docs []*storage.Document
	for _, res := range results {
		switch {
		case res.skipped:
			stats.FilesSkipped++
		case res.doc != nil:
			docs = append(docs, res.doc)
		}
	}
	stats.FilesFailed = int(failed.Load())

	if err := idx.commit(ctx, root, docs, removed, config.BatchSize); err != nil {
		return nil, err
	}
	stats.FilesIndexed = len(docs)
	stats.FilesRemoved = len(removed)

	if err := idx.notify(ctx, root, docs, removed, existing, config.Force); err != nil {
		return stats, fmt.Errorf("failed to invalidate cache: %w", err)
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("indexed workspace",
		"root", root,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"removed", stats.FilesRemoved,
		"duration", stats.Duration)
	return stats, nil
}

// prepareFile reads, hashes, parses and analyzes one file. Unchanged, binary
// and oversized files are skipped.
func (idx *Indexer) prepareFile(root, path string, existing map[string]storage.PathInfo, config *Config) (prepared, error) {
	info, err := os.Stat(path)
	if err != nil {
		return prepared{}, err
	}
	if info.Size() > config.MaxFileSize {
		return prepared{skipped: true}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return prepared{}, err
	}
	if bytes.IndexByte(content[:min(len(content), binarySniffLen)], 0) >= 0 {
		return prepared{skipped: true}, nil
	}

	rel := relPath(root, path)
	hash := sha256.Sum256(content)
	if stored, ok := existing[rel]; ok && stored.ContentHash == hash && !config.Force {
		return prepared{skipped: true}, nil
	}

	result := idx.parser.Parse(path, content)
	if result.HasErrors() {
		idx.logger.Debug("parse errors", "path", rel, "error", result.Errors[0].Message)
	}

	names := make([]string, 0, len(result.Symbols))
	for _, sym := range result.Symbols {
		names = append(names, sym.Name)
	}

	text := string(content)
	return prepared{doc: &storage.Document{
		Workspace:        root,
		Path:             rel,
		Language:         result.Language,
		Content:          text,
		AnalyzedContent:  idx.analyzer.Analyze(text, analysis.FieldContent),
		AnalyzedSymbols:  idx.analyzer.Analyze(strings.Join(names, " "), analysis.FieldSymbols),
		AnalyzedPatterns: idx.analyzer.Analyze(text, analysis.FieldPatterns),
		TypeNames:        result.TypeNames(),
		Definition:       result.Definition(rel),
		ModifiedAt:       info.ModTime(),
		IsShared:         shared(rel, config),
		ContentHash:      hash,
		SizeBytes:        info.Size(),
	}}, nil
}

// commit writes documents in batches while holding the index lock
func (idx *Indexer) commit(ctx context.Context, root string, docs []*storage.Document,
	removed []storage.PathInfo, batchSize int) error {

	lease, err := idx.lock.Acquire(ctx, idx.lockTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer lease.Release()

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		if err := idx.commitBatch(ctx, docs[i:end], nil, ""); err != nil {
			return err
		}
	}
	return idx.commitBatch(ctx, nil, removed, root)
}

// commitBatch runs one transaction. A non-empty root also stamps the
// workspace index time.
func (idx *Indexer) commitBatch(ctx context.Context, docs []*storage.Document, removed []storage.PathInfo, root string) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if err := tx.UpsertDocument(ctx, doc); err != nil {
			return err
		}
	}
	for _, info := range removed {
		if err := tx.DeleteDocument(ctx, info.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if root != "" {
		if err := tx.TouchWorkspace(ctx, root, time.Now()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notify fans committed changes out to the invalidator. A removed file can
// only drop out of responses that listed it, so removals invalidate by file
// and record. A written document can start matching any query of the
// workspace, so writes also invalidate the workspace.
func (idx *Indexer) notify(ctx context.Context, root string, docs []*storage.Document,
	removed []storage.PathInfo, existing map[string]storage.PathInfo, force bool) error {

	if idx.invalidator == nil {
		return nil
	}

	for _, doc := range docs {
		if _, ok := existing[doc.Path]; !ok {
			continue
		}
		if err := idx.invalidator.OnFileChanged(ctx, filepath.Join(root, filepath.FromSlash(doc.Path))); err != nil {
			return err
		}
		if err := idx.invalidator.OnRecordChanged(ctx, doc.ID); err != nil {
			return err
		}
	}
	for _, info := range removed {
		if err := idx.invalidator.OnFileChanged(ctx, filepath.Join(root, filepath.FromSlash(info.Path))); err != nil {
			return err
		}
		if err := idx.invalidator.OnRecordChanged(ctx, info.ID); err != nil {
			return err
		}
	}

	if len(docs) > 0 || force {
		return idx.invalidator.OnWorkspaceChanged(ctx, root)
	}
	return nil
}
