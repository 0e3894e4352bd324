package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned when a query has no searchable terms
	ErrEmptyQuery = errors.New("empty search query")
)

// SQLiteEngine implements the Engine interface using SQLite FTS5
type SQLiteEngine struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteEngine opens the database at dbPath and applies migrations
func NewSQLiteEngine(ctx context.Context, dbPath string) (*SQLiteEngine, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteEngine{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteEngine) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteEngine) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return upsertDocument(ctx, t.tx, doc)
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id int64) error {
	return deleteDocument(ctx, t.tx, id)
}

func (t *sqliteTx) DeleteWorkspace(ctx context.Context, workspace string) (int, error) {
	return deleteWorkspace(ctx, t.tx, workspace)
}

func (t *sqliteTx) TouchWorkspace(ctx context.Context, workspace string, indexedAt time.Time) error {
	return touchWorkspace(ctx, t.tx, workspace, indexedAt)
}

// Document operations

const documentColumns = `
	d.id, d.workspace, d.path, d.language, d.content,
	d.analyzed_content, d.analyzed_symbols, d.analyzed_patterns,
	d.type_names, d.definition, d.created_at, d.modified_at,
	d.access_count, d.is_shared, d.content_hash, d.size_bytes, d.indexed_at`

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument reads documentColumns plus any trailing destinations
func scanDocument(row scanner, extra ...any) (*Document, error) {
	var doc Document
	var language, typeNames, definition sql.NullString
	var created, modified, indexed sql.NullInt64
	var hash []byte

	dest := append([]any{
		&doc.ID, &doc.Workspace, &doc.Path, &language, &doc.Content,
		&doc.AnalyzedContent, &doc.AnalyzedSymbols, &doc.AnalyzedPatterns,
		&typeNames, &definition, &created, &modified,
		&doc.AccessCount, &doc.IsShared, &hash, &doc.SizeBytes, &indexed,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	doc.Language = language.String
	doc.Definition = definition.String
	if typeNames.String != "" {
		doc.TypeNames = strings.Fields(typeNames.String)
	}
	doc.CreatedAt = fromMillis(created)
	doc.ModifiedAt = fromMillis(modified)
	doc.IndexedAt = fromMillis(indexed)
	copy(doc.ContentHash[:], hash)
	return &doc, nil
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

func toMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func upsertDocument(ctx context.Context, q querier, doc *Document) error {
	query := `
		INSERT INTO documents (workspace, path, language, content,
			analyzed_content, analyzed_symbols, analyzed_patterns,
			type_names, definition, created_at, modified_at,
			is_shared, content_hash, size_bytes, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace, path) DO UPDATE SET
			language = excluded.language,
			content = excluded.content,
			analyzed_content = excluded.analyzed_content,
			analyzed_symbols = excluded.analyzed_symbols,
			analyzed_patterns = excluded.analyzed_patterns,
			type_names = excluded.type_names,
			definition = excluded.definition,
			modified_at = excluded.modified_at,
			is_shared = excluded.is_shared,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			indexed_at = excluded.indexed_at
		RETURNING id, created_at, access_count
	`
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.ModifiedAt.IsZero() {
		doc.ModifiedAt = now
	}

	var created sql.NullInt64
	err := q.QueryRowContext(ctx, query,
		doc.Workspace, doc.Path, doc.Language, doc.Content,
		doc.AnalyzedContent, doc.AnalyzedSymbols, doc.AnalyzedPatterns,
		strings.Join(doc.TypeNames, " "), doc.Definition,
		toMillis(doc.CreatedAt), toMillis(doc.ModifiedAt),
		doc.IsShared, doc.ContentHash[:], doc.SizeBytes, toMillis(now),
	).Scan(&doc.ID, &created, &doc.AccessCount)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Path, err)
	}

	// An update keeps the original creation time
	doc.CreatedAt = fromMillis(created)
	doc.IndexedAt = time.UnixMilli(now.UnixMilli())
	return nil
}

func (s *SQLiteEngine) UpsertDocument(ctx context.Context, doc *Document) error {
	return upsertDocument(ctx, s.db, doc)
}

func (s *SQLiteEngine) Document(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return doc, nil
}

func (s *SQLiteEngine) DocumentByPath(ctx context.Context, workspace, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.workspace = ? AND d.path = ?`,
		workspace, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return doc, nil
}

func deleteDocument(ctx context.Context, q querier, id int64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteEngine) DeleteDocument(ctx context.Context, id int64) error {
	return deleteDocument(ctx, s.db, id)
}

func deleteWorkspace(ctx context.Context, q querier, workspace string) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM documents WHERE workspace = ?", workspace)
	if err != nil {
		return 0, fmt.Errorf("failed to delete workspace documents: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := q.ExecContext(ctx, "DELETE FROM workspaces WHERE root_path = ?", workspace); err != nil {
		return int(n), fmt.Errorf("failed to delete workspace: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteEngine) DeleteWorkspace(ctx context.Context, workspace string) (int, error) {
	return deleteWorkspace(ctx, s.db, workspace)
}

func touchWorkspace(ctx context.Context, q querier, workspace string, indexedAt time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO workspaces (root_path, last_indexed_at) VALUES (?, ?)
		ON CONFLICT(root_path) DO UPDATE SET last_indexed_at = excluded.last_indexed_at
	`, workspace, toMillis(indexedAt))
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return nil
}

func (s *SQLiteEngine) TouchWorkspace(ctx context.Context, workspace string, indexedAt time.Time) error {
	return touchWorkspace(ctx, s.db, workspace, indexedAt)
}

func (s *SQLiteEngine) ListPaths(ctx context.Context, workspace string) ([]PathInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, content_hash FROM documents WHERE workspace = ? ORDER BY path", workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []PathInfo
	for rows.Next() {
		var info PathInfo
		var hash []byte
		if err := rows.Scan(&info.ID, &info.Path, &hash); err != nil {
			return nil, err
		}
		copy(info.ContentHash[:], hash)
		paths = append(paths, info)
	}
	return paths, rows.Err()
}

// RecordAccess increments the access count of every returned document
func (s *SQLiteEngine) RecordAccess(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET access_count = access_count + 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// Search operations

// Query runs an analyzed query against one workspace and returns hits ordered
// by BM25
func (s *SQLiteEngine) Query(ctx context.Context, workspace string, q BaseQuery, limit int) ([]BaseHit, error) {
	match := buildMatch(q)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`, bm25(documents_fts) AS score
		FROM documents_fts
		INNER JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?
		AND d.workspace = ?
		ORDER BY score
		LIMIT ?
	`, match, workspace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []BaseHit
	for rows.Next() {
		var raw float64
		doc, err := scanDocument(rows, &raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, BaseHit{DocID: doc.ID, Score: normalizeBM25(raw), Doc: doc})
	}
	return hits, rows.Err()
}

// Status operations

func (s *SQLiteEngine) Stats(ctx context.Context, workspace string) (*Stats, error) {
	stats := &Stats{Workspace: workspace}

	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(size_bytes) FROM documents WHERE workspace = ?", workspace,
	).Scan(&stats.Documents, &total)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	stats.TotalBytes = total.Int64

	var indexed sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT last_indexed_at FROM workspaces WHERE root_path = ?", workspace).Scan(&indexed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	stats.LastIndexedAt = fromMillis(indexed)

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var ftsName string
	ftsErr := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='documents_fts'").Scan(&ftsName)
	stats.Health = HealthStatus{
		DatabaseAccessible: true,
		FTSIndexBuilt:      ftsErr == nil,
	}

	return stats, nil
}
