package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidDocID          = errors.New("invalid document ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be non-negative")
	ErrMissingPath           = errors.New("file path is required")

	// Query errors
	ErrEmptyQuery      = errors.New("query cannot be empty")
	ErrEmptyWorkspace  = errors.New("workspace path is required")
	ErrNoAnalyzedTerms = errors.New("query produced no searchable terms")
)
