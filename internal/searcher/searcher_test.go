package searcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/cache"
	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/scoring"
	"github.com/dshills/codesearch/internal/storage"
	"github.com/dshills/codesearch/pkg/types"
)

var testFiles = map[string]string{
	"src/UserService.java": `package com.example;

public class UserService {
    public void save(User user) {}
}
`,
	"src/UserController.java": `package com.example;

public class UserController {
    private UserService userService;

    public UserService service() { return userService; }
}
`,
	"src/Order.java": `package com.example;

public class Order {
    private long id;
}
`,
}

type fixture struct {
	searcher *Searcher
	indexer  *indexer.Indexer
	store    *storage.SQLiteEngine
	cache    *cache.MultiLevel
	inv      *invalidation.Service
	guard    *lock.Lock
	root     string
}

func writeFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// setupTestSearcher indexes testFiles into an in-memory store and wires the
// searcher to a two-level cache
func setupTestSearcher(t testing.TB) *fixture {
	t.Helper()
	ctx := context.Background()

	root := t.TempDir()
	for rel, content := range testFiles {
		writeFile(t, root, rel, content)
	}

	store, err := storage.NewSQLiteEngine(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := cache.DefaultOptions()
	opts.Dir = t.TempDir()
	c, err := cache.New(opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	inv := invalidation.New(c, invalidation.Options{}, nil)
	c.SetKeySource(inv)
	t.Cleanup(func() { _ = inv.Close() })

	analyzer := analysis.New(analysis.DefaultOptions())
	scorer := scoring.NewComposite(scoring.NewDefaultRegistry(nil, scoring.TemporalDefault), nil)
	guard := lock.New("index")

	idx := indexer.New(store, analyzer, guard, indexer.WithInvalidator(inv))
	_, err = idx.IndexWorkspace(ctx, root, nil)
	require.NoError(t, err)

	s := New(store, analyzer, scorer, WithCache(c, inv), WithLock(guard, time.Second))
	return &fixture{searcher: s, indexer: idx, store: store, cache: c, inv: inv, guard: guard, root: root}
}

func resultPaths(resp *SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Path
	}
	return out
}

func TestSearch_DefinitionRanksFirst(t *testing.T) {
	f := setupTestSearcher(t)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{
		Workspace: f.root,
		Query:     "UserService",
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "src/UserService.java", resp.Results[0].Path)
	assert.Equal(t, "src/UserController.java", resp.Results[1].Path)
	assert.Equal(t, 2, resp.TotalResults)
	assert.False(t, resp.CacheHit)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, f.root, r.Workspace)
		assert.Equal(t, "java", r.Language)
		assert.NoError(t, r.Validate())
		assert.Nil(t, r.Explanation)
	}
	assert.Equal(t, []string{"UserService"}, resp.Results[0].TypeNames)
	assert.Equal(t, "public class UserService {", resp.Results[0].Snippet)
	assert.Greater(t, resp.Results[0].RelevanceScore, resp.Results[1].RelevanceScore)
}

func TestSearch_Validation(t *testing.T) {
	f := setupTestSearcher(t)

	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"empty query", SearchRequest{Workspace: f.root}, types.ErrEmptyQuery},
		{"blank query", SearchRequest{Workspace: f.root, Query: "   "}, types.ErrEmptyQuery},
		{"no workspace", SearchRequest{Query: "Order"}, types.ErrEmptyWorkspace},
		{"unknown factor", SearchRequest{Workspace: f.root, Query: "Order", Scoring: &ScoringOptions{Factors: []string{"popularity"}}}, ErrUnknownFactor},
		{"unknown field", SearchRequest{Workspace: f.root, Query: "Order", Field: "comments"}, ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.searcher.Search(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearch_Limit(t *testing.T) {
	f := setupTestSearcher(t)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{
		Workspace: f.root,
		Query:     "class",
		Limit:     1,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 3, resp.BaseHits)
}

func TestSearch_NoMatches(t *testing.T) {
	f := setupTestSearcher(t)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{
		Workspace: f.root,
		Query:     "PaymentGateway",
		UseCache:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_Explain(t *testing.T) {
	f := setupTestSearcher(t)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{
		Workspace: f.root,
		Query:     "UserService",
		Explain:   true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	for _, r := range resp.Results {
		require.NotNil(t, r.Explanation)
		assert.InDelta(t, r.RelevanceScore, r.Explanation.FinalScore, 1e-9)
		assert.InDelta(t, r.BaseScore, r.Explanation.BaseScore, 1e-9)
		assert.Len(t, r.Explanation.Factors, 4)
	}
}

func TestSearch_ScoringOptions(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		resp, err := f.searcher.Search(ctx, SearchRequest{
			Workspace: f.root,
			Query:     "UserService",
			Scoring:   &ScoringOptions{Disabled: true},
		})
		require.NoError(t, err)
		for _, r := range resp.Results {
			assert.InDelta(t, r.BaseScore, r.RelevanceScore, 1e-9)
		}
	})

	t.Run("single factor", func(t *testing.T) {
		resp, err := f.searcher.Search(ctx, SearchRequest{
			Workspace: f.root,
			Query:     "UserService",
			Scoring:   &ScoringOptions{Factors: []string{scoring.TypeDefinitionBoostName}},
			Explain:   true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "src/UserService.java", resp.Results[0].Path)
		require.Len(t, resp.Results[0].Explanation.Factors, 1)
		assert.Equal(t, scoring.TypeDefinitionBoostName, resp.Results[0].Explanation.Factors[0].Name)
	})
}

func TestSearch_WorkspaceIsolation(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	other := t.TempDir()
	writeFile(t, other, "lib/Order.java", "public class Order {}\n")
	_, err := f.indexer.IndexWorkspace(ctx, other, nil)
	require.NoError(t, err)

	resp, err := f.searcher.Search(ctx, SearchRequest{Workspace: other, Query: "Order"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/Order.java"}, resultPaths(resp))

	resp, err = f.searcher.Search(ctx, SearchRequest{Workspace: f.root, Query: "Order"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Order.java"}, resultPaths(resp))
}

func TestSearch_CacheHit(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	first, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, resultPaths(first), resultPaths(second))
	assert.Equal(t, first.Results[0].RelevanceScore, second.Results[0].RelevanceScore)

	stats := f.searcher.Stats()
	assert.Equal(t, int64(1), stats.Cache.L1Hits)
	assert.Equal(t, int64(1), stats.Cache.L1Entries)
	assert.Equal(t, int64(1), stats.Cache.L2Entries)
	assert.Equal(t, 1, stats.Invalidation.Registered)
	assert.Equal(t, string(invalidation.Immediate), stats.Strategy)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestSearch_RecordsAccess(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	resp, err := f.searcher.Search(ctx, SearchRequest{Workspace: f.root, Query: "Order"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	doc, err := f.store.Document(ctx, resp.Results[0].DocID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.AccessCount)
}

func TestSearch_InvalidatedByFileChange(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	_, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)

	path := writeFile(t, f.root, "src/UserService.java", "public class UserService {\n    public void delete() {}\n}\n")
	_, err = f.indexer.IndexPaths(ctx, f.root, []string{path}, nil)
	require.NoError(t, err)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Contains(t, resultPaths(resp), "src/UserService.java")
	assert.Equal(t, int64(1), f.inv.Stats().Invalidated)
}

func TestSearch_EditedFileStartsMatching(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	first, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.NotContains(t, resultPaths(first), "src/Order.java")

	path := writeFile(t, f.root, "src/Order.java", "public class Order {\n    private UserService owner;\n}\n")
	_, err = f.indexer.IndexPaths(ctx, f.root, []string{path}, nil)
	require.NoError(t, err)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.ElementsMatch(t,
		[]string{"src/UserService.java", "src/UserController.java", "src/Order.java"},
		resultPaths(resp))
}

func TestSearch_UnrelatedRemovalKeepsCache(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	_, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)

	path := filepath.Join(f.root, "src", "Order.java")
	require.NoError(t, os.Remove(path))
	stats, err := f.indexer.IndexPaths(ctx, f.root, []string{path}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesRemoved)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
}

// indexingEngine runs onQuery once, right after the first base query has
// read its hits
type indexingEngine struct {
	storage.Engine
	once    sync.Once
	onQuery func()
}

func (e *indexingEngine) Query(ctx context.Context, workspace string, q storage.BaseQuery, limit int) ([]storage.BaseHit, error) {
	hits, err := e.Engine.Query(ctx, workspace, q, limit)
	e.once.Do(e.onQuery)
	return hits, err
}

func TestSearch_ChangeDuringQueryIsNotCached(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	const rewritten = "// UserService v2\npublic class UserService {\n    public void archive() {}\n}\n"
	engine := &indexingEngine{Engine: f.store}
	engine.onQuery = func() {
		path := writeFile(t, f.root, "src/UserService.java", rewritten)
		_, err := f.indexer.IndexPaths(ctx, f.root, []string{path}, nil)
		assert.NoError(t, err)
	}
	s := New(engine, analysis.New(analysis.DefaultOptions()), f.searcher.scorer,
		WithCache(f.cache, f.inv), WithLock(f.guard, time.Second))

	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}
	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, int64(0), f.cache.Stats().L1Entries)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.CacheHit)

	snippets := make(map[string]string)
	for _, r := range second.Results {
		snippets[r.Path] = r.Snippet
	}
	assert.Equal(t, "// UserService v2", snippets["src/UserService.java"])

	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
}

func TestSearch_InvalidatedByNewFile(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	first, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Results, 2)

	writeFile(t, f.root, "src/UserServiceImpl.java", "public class UserServiceImpl extends UserService {}\n")
	_, err = f.indexer.IndexWorkspace(ctx, f.root, nil)
	require.NoError(t, err)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Len(t, resp.Results, 3)
}

func TestSearch_LazyInvalidation(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	require.NoError(t, f.inv.SetStrategy(invalidation.Lazy))
	req := SearchRequest{Workspace: f.root, Query: "UserService", UseCache: true}

	_, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.searcher.Invalidate(ctx, invalidation.Event{
		Kind: invalidation.FileChanged,
		Path: filepath.Join(f.root, "src", "UserController.java"),
	}))
	// Marked, not yet removed
	assert.Equal(t, 1, f.inv.Stats().Pending)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestInvalidate_Workspace(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	for _, q := range []string{"UserService", "Order"} {
		_, err := f.searcher.Search(ctx, SearchRequest{Workspace: f.root, Query: q, UseCache: true})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.inv.Stats().Registered)

	require.NoError(t, f.searcher.Invalidate(ctx, invalidation.Event{Kind: invalidation.WorkspaceChanged, Path: f.root}))
	assert.Equal(t, 0, f.inv.Stats().Registered)
	assert.Equal(t, int64(0), f.cache.Stats().L1Entries)
}

func TestWarmUp(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()

	n, err := f.searcher.WarmUp(ctx, f.root, []string{"UserService", "Order", "   "}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), f.cache.Stats().Warmups)
	assert.False(t, f.guard.Held())

	resp, err := f.searcher.Search(ctx, SearchRequest{Workspace: f.root, Query: "Order", Limit: 5, UseCache: true})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
}

func TestWarmUp_LockHeld(t *testing.T) {
	f := setupTestSearcher(t)
	s := New(f.store, analysis.New(analysis.DefaultOptions()), f.searcher.scorer,
		WithCache(f.cache, f.inv), WithLock(f.guard, 20*time.Millisecond))

	lease, err := f.guard.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer lease.Release()

	_, err = s.WarmUp(context.Background(), f.root, []string{"Order"}, 5)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, int64(0), f.cache.Stats().Warmups)
}

func TestClearCache(t *testing.T) {
	f := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "Order", UseCache: true}

	_, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)

	f.searcher.ClearCache()
	assert.Equal(t, int64(0), f.cache.Stats().L1Entries)

	resp, err := f.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestCacheKey(t *testing.T) {
	base := SearchRequest{Workspace: "/repo", Query: "UserService", Limit: 10, Field: analysis.FieldContent}

	key := CacheKey(base)
	assert.True(t, strings.HasPrefix(key, "search:/repo/"))
	assert.Equal(t, key, CacheKey(base), "keys are deterministic")

	variants := []SearchRequest{
		{Workspace: "/other", Query: "UserService", Limit: 10, Field: analysis.FieldContent},
		{Workspace: "/repo", Query: "UserServices", Limit: 10, Field: analysis.FieldContent},
		{Workspace: "/repo", Query: "UserService", Limit: 20, Field: analysis.FieldContent},
		{Workspace: "/repo", Query: "UserService", Limit: 10, Field: analysis.FieldSymbols},
		{Workspace: "/repo", Query: "UserService", Limit: 10, Field: analysis.FieldContent, Explain: true},
		{Workspace: "/repo", Query: "UserService", Limit: 10, Field: analysis.FieldContent, Scoring: &ScoringOptions{Disabled: true}},
	}
	for _, v := range variants {
		assert.NotEqual(t, key, CacheKey(v))
	}

	// UseCache and CacheTTL do not change what is computed
	same := base
	same.UseCache = true
	same.CacheTTL = time.Minute
	assert.Equal(t, key, CacheKey(same))
}

func TestWorkspacePattern(t *testing.T) {
	key := CacheKey(SearchRequest{Workspace: "/repo/app", Query: "x"})

	ok, err := doublestar.Match(WorkspacePattern("/repo/app"), key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = doublestar.Match(WorkspacePattern("/repo/other"), key)
	require.NoError(t, err)
	assert.False(t, ok)

	bracketKey := CacheKey(SearchRequest{Workspace: "/repo/[v2]", Query: "x"})
	ok, err = doublestar.Match(WorkspacePattern("/repo/[v2]"), bracketKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnippet(t *testing.T) {
	content := "package main\n\n// Foo does things\nfunc Foo() {}\n"

	assert.Equal(t, "// Foo does things", snippet(content, []string{"foo"}))
	assert.Equal(t, "package main", snippet(content, []string{"missing"}))
	assert.Equal(t, "", snippet("", []string{"foo"}))

	long := strings.Repeat("é", 150)
	got := snippet(long, nil)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), snippetMaxLen+3)
}
