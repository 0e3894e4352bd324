// Package indexer walks a workspace and keeps the search engine in sync with
// its files.
//
// # Basic Usage
//
//	idx := indexer.New(engine, analyzer, indexLock,
//	    indexer.WithInvalidator(invalidationService),
//	    indexer.WithLogger(logger))
//
//	stats, err := idx.IndexWorkspace(ctx, "/path/to/repo", nil)
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Discovery: walk the workspace, skip hidden, vendor and excluded paths
//  2. Incremental decision: compare SHA-256 content hashes, skip unchanged files
//  3. Parse & analyze: extract type names and build the three analyzed
//     token streams (parallel, bounded by Config.Workers)
//  4. Store: upsert in batched transactions while holding the index lock
//  5. Invalidate: notify the invalidation service of what changed
//
// Files that disappeared since the last run are deleted in the same commit.
// IndexPaths runs the same pipeline for a handful of paths and is what the
// file watcher calls.
//
// # Error Handling
//
// Per-file read failures are counted in Statistics.FilesFailed and do not
// stop the run. Syntax errors never fail a file. Storage, lock and
// cancellation errors abort the run:
//
//	stats, err := idx.IndexWorkspace(ctx, root, cfg)
//	if lock.IsRetryable(err) {
//	    // another commit or a cache warm-up held the lock too long
//	}
package indexer
