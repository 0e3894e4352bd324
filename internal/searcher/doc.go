// Package searcher answers code search queries with cached, re-ranked results.
//
// A search runs in four steps:
//
//  1. The query is tokenized with the same analyzer chain used at index time.
//  2. The base engine returns BM25 candidates from the chosen field, three
//     times the requested limit so re-ranking can promote lower hits.
//  3. The composite scorer blends each candidate's base score with the
//     registered factors and applies override factors.
//  4. The top results are returned and their documents' access counts bumped.
//
// # Basic Usage
//
//	s := searcher.New(engine, analyzer, scorer,
//	    searcher.WithCache(c, inv),
//	    searcher.WithLock(indexLock, 30*time.Second))
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Workspace: "/path/to/project",
//	    Query:     "UserService",
//	    Limit:     10,
//	    UseCache:  true,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (score: %.3f)\n", r.Rank, r.Path, r.RelevanceScore)
//	}
//
// # Caching
//
// With UseCache set, responses are stored in the multi-level cache under
// CacheKey(req), which is "search:<workspace>/<digest>". Concurrent identical
// misses compute once. Every cached response registers its dependencies with
// the invalidation service: the workspace root, each result file and each
// result document id. A later change to any of them removes the entry under
// the service's current strategy.
//
// Adding or editing a file can make it match any cached query, so the
// indexer reports every write as a workspace change. Removals stay precise.
// A response whose computation overlapped a change event is returned but
// not kept in the cache.
//
// # Warm-up
//
// WarmUp runs a list of queries while holding the index lock so no commit
// interleaves with the reads, then seeds the cache with the responses.
//
// # Scoring options
//
// A request may disable re-ranking or restrict it to named factors:
//
//	s.Search(ctx, searcher.SearchRequest{
//	    Workspace: root,
//	    Query:     "Repository",
//	    Scoring:   &searcher.ScoringOptions{Factors: []string{"type_definition_boost"}},
//	    Explain:   true,
//	})
//
// Explain attaches a per-factor breakdown to every result.
package searcher
