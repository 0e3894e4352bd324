// Package storage is the base full-text search engine behind codesearch.
//
// Documents are stored with their raw content and three pre-analyzed token
// streams. The streams are produced by internal/analysis and indexed by an
// FTS5 table whose tokenizer keeps code punctuation inside tokens, so terms
// like std::vector<int>, >= and @Override round-trip unchanged.
//
// # Database Schema
//
// Tables:
//   - workspaces: indexed roots and their last index time
//   - documents: one row per file, unique on (workspace, path)
//   - documents_fts: external-content FTS5 index over the analyzed columns
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	engine, err := storage.NewSQLiteEngine(ctx, "~/.codesearch/index.db")
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	tokens := analyzer.Tokenize("UserService", analysis.FieldQuery)
//	q := storage.QueryFromTokens(tokens, analysis.FieldContent)
//	hits, err := engine.Query(ctx, "/repo", q, 20)
//
// Hits are ordered by BM25 and carry a normalized score in (0,1) where
// higher is better.
//
// # Transactions
//
//	tx, err := engine.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, doc := range docs {
//	    if err := tx.UpsertDocument(ctx, doc); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler.
// Building with -tags "sqlite_cgo,sqlite_fts5" switches to
// github.com/mattn/go-sqlite3.
package storage
