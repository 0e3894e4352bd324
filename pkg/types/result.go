package types

// SearchResult represents a single ranked search result
type SearchResult struct {
	// Identification
	DocID int64
	Rank  int // Position in result set (1-based)

	// Scoring
	RelevanceScore float64 // Composite score after heuristic re-ranking
	BaseScore      float64 // Normalized BM25 score from the search engine

	// Metadata
	Workspace string
	Path      string // Relative to workspace root
	Language  string
	TypeNames []string
	Snippet   string

	// Populated only when explanation was requested
	Explanation *ScoreExplanation `json:",omitempty"`
}

// ScoreExplanation breaks a composite score down into its parts
type ScoreExplanation struct {
	BaseScore     float64
	FactorAverage float64
	Overrides     float64 // Product of multiplicative override factors
	FinalScore    float64
	Factors       []FactorContribution
}

// FactorContribution records how one scoring factor influenced a result
type FactorContribution struct {
	Name         string
	Score        float64
	Weight       float64
	Contribution float64
	Override     bool
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.DocID <= 0 {
		return ErrInvalidDocID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < 0 {
		return ErrInvalidRelevanceScore
	}

	if sr.Path == "" {
		return ErrMissingPath
	}

	return nil
}
