package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/storage"
)

// recorder implements Invalidator for testing
type recorder struct {
	mu         sync.Mutex
	files      []string
	records    []int64
	workspaces []string
}

func (r *recorder) OnFileChanged(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, path)
	return nil
}

func (r *recorder) OnRecordChanged(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, id)
	return nil
}

func (r *recorder) OnWorkspaceChanged(_ context.Context, root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces = append(r.workspaces, root)
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files, r.records, r.workspaces = nil, nil, nil
}

func setupTestStorage(t testing.TB) *storage.SQLiteEngine {
	t.Helper()

	store, err := storage.NewSQLiteEngine(context.Background(), ":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestIndexer(t testing.TB, opts ...Option) (*Indexer, *storage.SQLiteEngine, *recorder) {
	t.Helper()
	store := setupTestStorage(t)
	rec := &recorder{}
	opts = append([]Option{WithInvalidator(rec)}, opts...)
	idx := New(store, analysis.New(analysis.DefaultOptions()), lock.New("index"), opts...)
	return idx, store, rec
}

// createTestFile creates a file under dir for testing
func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	err := os.MkdirAll(filepath.Dir(filePath), 0755)
	require.NoError(t, err)

	err = os.WriteFile(filePath, []byte(content), 0644)
	require.NoError(t, err)

	return filePath
}

func indexedPaths(t *testing.T, store *storage.SQLiteEngine, root string) []string {
	t.Helper()
	list, err := store.ListPaths(context.Background(), root)
	require.NoError(t, err)
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Path
	}
	return out
}

func TestIndexWorkspace_Success(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "src/UserService.java", `package com.example;

public class UserService implements IUserService {
}
`)
	createTestFile(t, tmpDir, "main.go", "package main\n\nfunc main() {}\n")
	createTestFile(t, tmpDir, "shared/util.py", "def helper():\n    pass\n")

	idx, store, rec := newTestIndexer(t)
	stats, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Greater(t, stats.Duration, time.Duration(0))

	doc, err := store.DocumentByPath(context.Background(), tmpDir, "src/UserService.java")
	require.NoError(t, err)
	assert.Equal(t, "java", doc.Language)
	assert.Equal(t, []string{"UserService"}, doc.TypeNames)
	assert.Equal(t, "UserService", doc.Definition)
	assert.Contains(t, doc.AnalyzedSymbols, "UserService")
	assert.False(t, doc.IsShared)
	assert.False(t, doc.ModifiedAt.IsZero())

	util, err := store.DocumentByPath(context.Background(), tmpDir, "shared/util.py")
	require.NoError(t, err)
	assert.True(t, util.IsShared)

	// New documents can change any cached query of the workspace
	assert.Equal(t, []string{tmpDir}, rec.workspaces)
	assert.Empty(t, rec.files)

	stored, err := store.Stats(context.Background(), tmpDir)
	require.NoError(t, err)
	assert.False(t, stored.LastIndexedAt.IsZero())
}

func TestIndexWorkspace_EmptyWorkspace(t *testing.T) {
	idx, _, rec := newTestIndexer(t)

	stats, err := idx.IndexWorkspace(context.Background(), t.TempDir(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.Empty(t, rec.workspaces)
}

func TestIndexWorkspace_NotDirectory(t *testing.T) {
	idx, _, _ := newTestIndexer(t)
	file := createTestFile(t, t.TempDir(), "main.go", "package main")

	_, err := idx.IndexWorkspace(context.Background(), file, nil)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = idx.IndexWorkspace(context.Background(), "/nonexistent/workspace", nil)
	assert.Error(t, err)
}

func TestIndexWorkspace_IncrementalUpdate(t *testing.T) {
	tmpDir := t.TempDir()
	file1Path := createTestFile(t, tmpDir, "file1.go", "package main\nfunc Foo() {}\n")
	createTestFile(t, tmpDir, "file2.go", "package main\nfunc Bar() {}\n")

	idx, store, rec := newTestIndexer(t)

	// First indexing
	stats1, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats1.FilesIndexed)
	assert.Equal(t, 0, stats1.FilesSkipped)

	before, err := store.DocumentByPath(context.Background(), tmpDir, "file1.go")
	require.NoError(t, err)
	rec.reset()

	// Modify one file
	err = os.WriteFile(file1Path, []byte("package main\nfunc FooModified() {}\n"), 0644)
	require.NoError(t, err)

	// Second indexing - should skip unchanged file
	stats2, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats2.FilesIndexed, "Only modified file should be re-indexed")
	assert.Equal(t, 1, stats2.FilesSkipped, "Unchanged file should be skipped")

	// An edit reaches responses that listed the file and any query the new
	// content may now match
	assert.Equal(t, []string{file1Path}, rec.files)
	assert.Equal(t, []int64{before.ID}, rec.records)
	assert.Equal(t, []string{tmpDir}, rec.workspaces)
}

func TestIndexWorkspace_Force(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.go", "package a\n")

	idx, _, rec := newTestIndexer(t)
	_, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	rec.reset()

	cfg := DefaultConfig()
	cfg.Force = true
	stats, err := idx.IndexWorkspace(context.Background(), tmpDir, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, []string{tmpDir}, rec.workspaces)
}

func TestIndexWorkspace_RemovesDeletedFiles(t *testing.T) {
	tmpDir := t.TempDir()
	gone := createTestFile(t, tmpDir, "gone.go", "package main\n")
	createTestFile(t, tmpDir, "kept.go", "package main\n\nfunc Kept() {}\n")

	idx, store, rec := newTestIndexer(t)
	_, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, os.Remove(gone))
	stats, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, []string{"kept.go"}, indexedPaths(t, store, tmpDir))
	assert.Equal(t, []string{gone}, rec.files)
	assert.Len(t, rec.records, 1)
	// Removal only affects responses that listed the file
	assert.Empty(t, rec.workspaces)
}

func TestIndexPaths(t *testing.T) {
	tmpDir := t.TempDir()
	a := createTestFile(t, tmpDir, "a.go", "package main\nfunc A() {}\n")
	b := createTestFile(t, tmpDir, "b.go", "package main\nfunc B() {}\n")

	idx, store, rec := newTestIndexer(t)
	_, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, os.WriteFile(a, []byte("package main\nfunc AChanged() {}\n"), 0644))
	require.NoError(t, os.Remove(b))
	c := createTestFile(t, tmpDir, "c.go", "package main\nfunc C() {}\n")

	stats, err := idx.IndexPaths(context.Background(), tmpDir, []string{a, "b.go", c, "/elsewhere/x.go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, []string{"a.go", "c.go"}, indexedPaths(t, store, tmpDir))

	sort.Strings(rec.files)
	assert.Equal(t, []string{a, b}, rec.files)
	assert.Equal(t, []string{tmpDir}, rec.workspaces)
}

func TestDiscoverFiles(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "main.go", "package main")
	createTestFile(t, tmpDir, "main_test.go", "package main")
	createTestFile(t, tmpDir, "web/app.spec.ts", "describe()")
	createTestFile(t, tmpDir, "web/app.ts", "export class App {}")
	createTestFile(t, tmpDir, "README.md", "# readme")
	createTestFile(t, tmpDir, "vendor/lib/lib.go", "package lib")
	createTestFile(t, tmpDir, "node_modules/pkg/index.js", "module.exports = {}")
	createTestFile(t, tmpDir, ".git/hooks/pre-commit.py", "print()")
	createTestFile(t, tmpDir, "gen/models.pb.go", "package gen")

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
			want:   []string{"gen/models.pb.go", "main.go", "main_test.go", "web/app.spec.ts", "web/app.ts"},
		},
		{
			name:   "exclude tests",
			mutate: func(c *Config) { c.IncludeTests = false },
			want:   []string{"gen/models.pb.go", "main.go", "web/app.ts"},
		},
		{
			name:   "include vendor",
			mutate: func(c *Config) { c.IncludeVendor = true; c.IncludeTests = false },
			want:   []string{"gen/models.pb.go", "main.go", "node_modules/pkg/index.js", "vendor/lib/lib.go", "web/app.ts"},
		},
		{
			name:   "extensions",
			mutate: func(c *Config) { c.Extensions = []string{"md", ".ts"} },
			want:   []string{"README.md", "web/app.spec.ts", "web/app.ts"},
		},
		{
			name:   "exclude patterns",
			mutate: func(c *Config) { c.ExcludePatterns = []string{"gen/**", "**/*.spec.ts"} },
			want:   []string{"main.go", "main_test.go", "web/app.ts"},
		},
	}

	idx, _, _ := newTestIndexer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			files, err := idx.discoverFiles(tmpDir, cfg.withDefaults())
			require.NoError(t, err)

			rel := make([]string, len(files))
			for i, f := range files {
				rel[i] = relPath(tmpDir, f)
			}
			sort.Strings(rel)
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestIndexWorkspace_SkipsBinaryAndLargeFiles(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "blob.go", "package main\x00\x01\x02")
	createTestFile(t, tmpDir, "big.go", "package main\n// "+string(make([]byte, 64))+"\n")
	createTestFile(t, tmpDir, "ok.go", "package main\n")

	idx, store, _ := newTestIndexer(t)
	cfg := DefaultConfig()
	cfg.MaxFileSize = 32

	stats, err := idx.IndexWorkspace(context.Background(), tmpDir, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Equal(t, []string{"ok.go"}, indexedPaths(t, store, tmpDir))
}

func TestIndexWorkspace_WithParseErrors(t *testing.T) {
	tmpDir := t.TempDir()

	// Syntax errors do not fail a file; it is indexed as text
	createTestFile(t, tmpDir, "broken.go", "this is not valid Go code at all!!!")

	idx, store, _ := newTestIndexer(t)
	stats, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)

	doc, err := store.DocumentByPath(context.Background(), tmpDir, "broken.go")
	require.NoError(t, err)
	assert.Empty(t, doc.TypeNames)
}

func TestIndexWorkspace_ContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	for i := 0; i < 20; i++ {
		createTestFile(t, tmpDir, fmt.Sprintf("file%d.go", i), fmt.Sprintf("package main\nfunc F%d() {}\n", i))
	}

	idx, store, _ := newTestIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.IndexWorkspace(ctx, tmpDir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, lock.ErrOperationCancelled), err.Error())
	assert.Empty(t, indexedPaths(t, store, tmpDir))
}

func TestIndexWorkspace_LockTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.go", "package a\n")

	store := setupTestStorage(t)
	guard := lock.New("index")
	idx := New(store, analysis.New(analysis.DefaultOptions()), guard, WithLockTimeout(20*time.Millisecond))

	lease, err := guard.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer lease.Release()

	_, err = idx.IndexWorkspace(context.Background(), tmpDir, nil)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.True(t, lock.IsRetryable(err))
}

func TestRemoveWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.go", "package a\n")
	createTestFile(t, tmpDir, "b.go", "package b\n")

	idx, store, rec := newTestIndexer(t)
	_, err := idx.IndexWorkspace(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	rec.reset()

	n, err := idx.RemoveWorkspace(context.Background(), tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, indexedPaths(t, store, tmpDir))
	assert.Equal(t, []string{tmpDir}, rec.workspaces)
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"pkg/server_test.go", true},
		{"tests/helpers.py", true},
		{"src/test_utils.py", true},
		{"src/UserServiceTest.java", true},
		{"web/app.spec.ts", true},
		{"web/__tests__/app.js", true},
		{"src/latest.go", false},
		{"src/contest.go", false},
		{"src/UserService.java", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isTestFile(tt.path))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ExcludePatterns = []string{"[unclosed"}
	assert.Error(t, cfg.Validate())
}
