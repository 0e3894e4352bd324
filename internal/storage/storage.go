package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/scoring"
)

// Engine is the base full-text search engine. It stores pre-analyzed
// documents and answers term queries with BM25-ranked hits.
type Engine interface {
	Writer

	// Search operations
	Query(ctx context.Context, workspace string, q BaseQuery, limit int) ([]BaseHit, error)

	// Document operations
	Document(ctx context.Context, id int64) (*Document, error)
	DocumentByPath(ctx context.Context, workspace, path string) (*Document, error)
	ListPaths(ctx context.Context, workspace string) ([]PathInfo, error)
	RecordAccess(ctx context.Context, ids []int64) error

	// Status operations
	Stats(ctx context.Context, workspace string) (*Stats, error)

	// Database operations
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Writer holds the mutating operations shared by the engine and transactions
type Writer interface {
	UpsertDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id int64) error
	DeleteWorkspace(ctx context.Context, workspace string) (int, error)
	TouchWorkspace(ctx context.Context, workspace string, indexedAt time.Time) error
}

// Tx represents a database transaction
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// Document is one indexed source file
type Document struct {
	ID        int64
	Workspace string // Absolute workspace root
	Path      string // Relative to workspace root
	Language  string
	Content   string

	// Analyzer output, one space-separated token stream per field
	AnalyzedContent  string
	AnalyzedSymbols  string
	AnalyzedPatterns string

	TypeNames  []string
	Definition string // Primary type declared by the file, if any

	CreatedAt   time.Time
	ModifiedAt  time.Time
	AccessCount int64
	IsShared    bool

	ContentHash [32]byte
	SizeBytes   int64
	IndexedAt   time.Time
}

// Field returns a stored text field by name
func (d *Document) Field(name string) (string, bool) {
	switch name {
	case scoring.FieldPath:
		return d.Path, d.Path != ""
	case scoring.FieldContent:
		return d.Content, true
	case scoring.FieldTypeNames:
		return strings.Join(d.TypeNames, " "), len(d.TypeNames) > 0
	case scoring.FieldDefinition:
		return d.Definition, d.Definition != ""
	case "language":
		return d.Language, d.Language != ""
	case "workspace":
		return d.Workspace, d.Workspace != ""
	}
	return "", false
}

// Numeric returns a numeric field by name. Times are unix milliseconds.
func (d *Document) Numeric(name string) (int64, bool) {
	switch name {
	case scoring.FieldCreated:
		return d.CreatedAt.UnixMilli(), !d.CreatedAt.IsZero()
	case scoring.FieldModified:
		return d.ModifiedAt.UnixMilli(), !d.ModifiedAt.IsZero()
	case scoring.FieldAccessCount:
		return d.AccessCount, true
	case scoring.FieldIsShared:
		if d.IsShared {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// String identifies the document in logs
func (d *Document) String() string {
	return d.Workspace + ":" + d.Path + "#" + strconv.FormatInt(d.ID, 10)
}

// BaseQuery is an analyzed query. Each group holds the tokens emitted at one
// position: the original token followed by its sub-words.
type BaseQuery struct {
	Groups [][]string
	Field  analysis.FieldKind
	// MatchAny joins groups with OR instead of AND
	MatchAny bool
}

// BaseHit is a document matched by the base engine
type BaseHit struct {
	DocID int64
	Score float64 // Normalized BM25 in (0,1), higher is better
	Doc   *Document
}

// PathInfo is the incremental indexing view of a stored document
type PathInfo struct {
	ID          int64
	Path        string
	ContentHash [32]byte
}

// Stats contains statistics about an indexed workspace
type Stats struct {
	Workspace     string
	Documents     int
	TotalBytes    int64
	IndexSizeMB   float64
	LastIndexedAt time.Time
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	FTSIndexBuilt      bool
}
