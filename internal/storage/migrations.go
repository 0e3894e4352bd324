package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

// ftsTokenizer keeps the analyzer's code punctuation inside tokens. Documents
// are stored pre-analyzed as space-separated token streams, so FTS5 only has
// to split on whitespace and fold case.
const ftsTokenizer = `unicode61 tokenchars '_$.:<>-=!&|+*/%^~?@#[](){};,'`

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Workspaces table
CREATE TABLE IF NOT EXISTS workspaces (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    root_path TEXT NOT NULL UNIQUE,
    last_indexed_at INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Documents table, one row per source file
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    workspace TEXT NOT NULL,
    path TEXT NOT NULL,
    language TEXT,
    content TEXT NOT NULL,
    analyzed_content TEXT NOT NULL,
    analyzed_symbols TEXT NOT NULL,
    analyzed_patterns TEXT NOT NULL,
    type_names TEXT,
    definition TEXT,
    created_at INTEGER,
    modified_at INTEGER,
    access_count INTEGER DEFAULT 0,
    is_shared BOOLEAN DEFAULT 0,
    content_hash BLOB NOT NULL,
    size_bytes INTEGER,
    indexed_at INTEGER,
    UNIQUE(workspace, path)
);

CREATE INDEX IF NOT EXISTS idx_documents_workspace ON documents(workspace);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

-- Full-text search over the analyzed fields
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    analyzed_content, analyzed_symbols, analyzed_patterns,
    content='documents',
    content_rowid='id',
    tokenize = "` + ftsTokenizer + `"
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, analyzed_content, analyzed_symbols, analyzed_patterns)
    VALUES (new.id, new.analyzed_content, new.analyzed_symbols, new.analyzed_patterns);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, analyzed_content, analyzed_symbols, analyzed_patterns)
    VALUES ('delete', old.id, old.analyzed_content, old.analyzed_symbols, old.analyzed_patterns);
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF analyzed_content, analyzed_symbols, analyzed_patterns ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, analyzed_content, analyzed_symbols, analyzed_patterns)
    VALUES ('delete', old.id, old.analyzed_content, old.analyzed_symbols, old.analyzed_patterns);
    INSERT INTO documents_fts(rowid, analyzed_content, analyzed_symbols, analyzed_patterns)
    VALUES (new.id, new.analyzed_content, new.analyzed_symbols, new.analyzed_patterns);
END;
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS documents_au;
DROP TRIGGER IF EXISTS documents_ad;
DROP TRIGGER IF EXISTS documents_ai;

DROP TABLE IF EXISTS documents_fts;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS workspaces;
DROP TABLE IF EXISTS schema_version;
`

// Recency and popularity lookups used by temporal scoring and stats
const migrationV11Up = `
CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(workspace, modified_at);
CREATE INDEX IF NOT EXISTS idx_documents_access ON documents(workspace, access_count);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_documents_access;
DROP INDEX IF EXISTS idx_documents_modified;
`

// schemaVersion returns the highest applied migration version, or 0.0.0 for
// a fresh database
func schemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has second resolution, so order by version instead
	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return errors.New("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// The first migration's Down drops schema_version itself
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil && migration != &AllMigrations[0] {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}
