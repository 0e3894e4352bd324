package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/cache"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/scoring"
	"github.com/dshills/codesearch/internal/storage"
	"github.com/dshills/codesearch/pkg/types"
)

const (
	// DefaultLimit is used when a request does not set one
	DefaultLimit = 10
	// MaxLimit caps the number of results per request
	MaxLimit = 100
	// candidateFactor widens the base query so re-ranking can promote hits
	// the engine placed below the limit
	candidateFactor = 3
	// snippetMaxLen truncates result snippets
	snippetMaxLen = 200
	// keyPrefix starts every search cache key: search:<workspace>/<digest>
	keyPrefix = "search:"
)

// ErrUnknownFactor is returned when a request names a factor that is not registered
var ErrUnknownFactor = errors.New("unknown scoring factor")

// ErrUnknownField is returned when a request names a field that is not indexed
var ErrUnknownField = errors.New("unknown search field")

// ScoringOptions selects how hits are re-ranked for one request
type ScoringOptions struct {
	// Disabled ranks by the base score alone
	Disabled bool `json:"disabled,omitempty"`
	// Factors restricts re-ranking to the named factors; empty means all
	Factors []string `json:"factors,omitempty"`
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Workspace string
	Query     string
	Limit     int
	Field     analysis.FieldKind // Analyzed column to match (default: content)
	MatchAny  bool               // OR query terms instead of AND
	Scoring   *ScoringOptions
	UseCache  bool
	CacheTTL  time.Duration // <= 0 uses the cache defaults
	Explain   bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	BaseHits     int // Candidates returned by the engine before truncation
	Duration     time.Duration
	CacheHit     bool
}

// Stats combines the cache and invalidation counters
type Stats struct {
	Cache        cache.Stats        `json:"cache"`
	HitRate      float64            `json:"hit_rate"`
	Invalidation invalidation.Stats `json:"invalidation"`
	Strategy     string             `json:"strategy"`
}

// Searcher runs queries against the base engine, re-ranks the hits and
// caches responses with their dependencies registered for invalidation.
type Searcher struct {
	storage     storage.Engine
	analyzer    *analysis.Analyzer
	scorer      *scoring.Composite
	cache       *cache.MultiLevel
	invalidator *invalidation.Service
	lock        *lock.Lock
	logger      *slog.Logger
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Searcher
type Option func(*Searcher)

// WithCache enables response caching with dependency tracking
func WithCache(c *cache.MultiLevel, inv *invalidation.Service) Option {
	return func(s *Searcher) {
		s.cache = c
		s.invalidator = inv
	}
}

// WithLock sets the guard shared with the indexer. Warm-up requires it.
func WithLock(guard *lock.Lock, timeout time.Duration) Option {
	return func(s *Searcher) {
		s.lock = guard
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new Searcher
func New(engine storage.Engine, analyzer *analysis.Analyzer, scorer *scoring.Composite, opts ...Option) *Searcher {
	s := &Searcher{
		storage:     engine,
		analyzer:    analyzer,
		scorer:      scorer,
		logger:      slog.Default(),
		lockTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}
	tokens := s.analyzer.Tokenize(req.Query, req.Field)
	if len(tokens) == 0 {
		return nil, types.ErrNoAnalyzedTerms
	}

	var response *SearchResponse
	if req.UseCache && s.cache != nil {
		key := CacheKey(req)
		if s.invalidator != nil && s.invalidator.Check(key) {
			s.logger.Debug("discarded stale cache entry", "key", key)
		}

		computed := false
		epoch := s.epoch()
		var cached SearchResponse
		err := s.cache.GetOrCompute(ctx, key, &cached, req.CacheTTL, func(ctx context.Context) (any, error) {
			computed = true
			resp, err := s.execute(ctx, req, tokens)
			if err != nil {
				return nil, err
			}
			s.register(key, req.Workspace, resp)
			return resp, nil
		})
		if err != nil {
			return nil, err
		}
		// A change reported while the query ran may not have seen this key
		if computed && s.epoch() != epoch {
			s.cache.Remove(key)
			s.logger.Debug("dropped response computed during a change", "key", key)
		}
		response = &cached
		response.CacheHit = !computed
	} else {
		var err error
		response, err = s.execute(ctx, req, tokens)
		if err != nil {
			return nil, err
		}
	}

	s.recordAccess(ctx, response.Results)
	response.Duration = time.Since(startTime)
	return response, nil
}

// Invalidate forwards a change event to the invalidation service
func (s *Searcher) Invalidate(ctx context.Context, ev invalidation.Event) error {
	if s.invalidator == nil {
		return nil
	}
	if ev.Path != "" {
		abs, err := filepath.Abs(ev.Path)
		if err != nil {
			return err
		}
		ev.Path = abs
	}
	return s.invalidator.Invalidate(ctx, ev)
}

// WarmUp runs queries against workspace while holding the index lock and
// stores the responses in the cache. It returns the number of entries seeded.
func (s *Searcher) WarmUp(ctx context.Context, workspace string, queries []string, limit int) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	if s.lock == nil {
		return 0, errors.New("warm-up requires the index lock")
	}

	lease, err := s.lock.Acquire(ctx, s.lockTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer lease.Release()

	warmed := 0
	for _, q := range queries {
		req := SearchRequest{Workspace: workspace, Query: q, Limit: limit, UseCache: true}
		if err := s.validateRequest(&req); err != nil {
			s.logger.Warn("skipping warm-up query", "query", q, "error", err)
			continue
		}
		tokens := s.analyzer.Tokenize(req.Query, req.Field)
		if len(tokens) == 0 {
			continue
		}

		resp, err := s.execute(ctx, req, tokens)
		if err != nil {
			if ctx.Err() != nil {
				return warmed, ctx.Err()
			}
			s.logger.Warn("warm-up query failed", "query", q, "error", err)
			continue
		}

		key := CacheKey(req)
		s.register(key, req.Workspace, resp)
		if err := s.cache.Set(ctx, key, resp, req.CacheTTL); err != nil {
			return warmed, err
		}
		s.cache.RecordWarmup()
		warmed++
	}

	s.logger.Info("cache warm-up complete", "workspace", workspace, "queries", len(queries), "seeded", warmed)
	return warmed, nil
}

// Stats returns the cache and invalidation counters
func (s *Searcher) Stats() Stats {
	var st Stats
	if s.cache != nil {
		st.Cache = s.cache.Stats()
		st.HitRate = st.Cache.HitRate()
	}
	if s.invalidator != nil {
		st.Invalidation = s.invalidator.Stats()
		st.Strategy = string(s.invalidator.Strategy())
	}
	return st
}

// ClearCache empties both cache levels
func (s *Searcher) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// execute queries the engine and re-ranks the candidates
func (s *Searcher) execute(ctx context.Context, req SearchRequest, tokens []analysis.Token) (*SearchResponse, error) {
	scorer, err := s.scorerFor(req.Scoring)
	if err != nil {
		return nil, err
	}

	q := storage.QueryFromTokens(tokens, req.Field)
	q.MatchAny = req.MatchAny

	baseHits, err := s.storage.Query(ctx, req.Workspace, q, min(req.Limit*candidateFactor, MaxLimit*candidateFactor))
	if err != nil {
		return nil, fmt.Errorf("base query failed: %w", err)
	}

	hits := make([]scoring.BaseHit, len(baseHits))
	for i, h := range baseHits {
		hits[i] = scoring.BaseHit{DocID: h.DocID, BaseScore: h.Score, Doc: h.Doc}
	}

	sc := scoring.NewContext(req.Query, req.Workspace, s.now())
	scored, err := scorer.Rescore(ctx, hits, sc, req.Explain)
	if err != nil {
		return nil, err
	}
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	results := make([]types.SearchResult, 0, len(scored))
	for i, hit := range scored {
		result := types.SearchResult{
			DocID:          hit.DocID,
			Rank:           i + 1,
			RelevanceScore: hit.Score,
			BaseScore:      hit.BaseScore,
			Workspace:      req.Workspace,
			Explanation:    hit.Explanation,
		}
		if doc, ok := hit.Doc.(*storage.Document); ok {
			result.Path = doc.Path
			result.Language = doc.Language
			result.TypeNames = doc.TypeNames
			result.Snippet = snippet(doc.Content, sc.Terms())
		}
		results = append(results, result)
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		BaseHits:     len(baseHits),
	}, nil
}

// scorerFor returns the composite for a request's scoring options. A
// restricted scorer shares the main registry's factors and weights.
func (s *Searcher) scorerFor(opts *ScoringOptions) (*scoring.Composite, error) {
	if opts == nil || (!opts.Disabled && len(opts.Factors) == 0) {
		return s.scorer, nil
	}

	main := s.scorer.Registry()
	reg := scoring.NewRegistry(main.Weights())
	if !opts.Disabled {
		for _, name := range opts.Factors {
			f, ok := main.Factor(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFactor, name)
			}
			if err := reg.Register(f); err != nil {
				return nil, err
			}
		}
	}
	return scoring.NewComposite(reg, s.logger), nil
}

func (s *Searcher) epoch() uint64 {
	if s.invalidator == nil {
		return 0
	}
	return s.invalidator.Epoch()
}

// register records what a response was computed from
func (s *Searcher) register(key, workspace string, resp *SearchResponse) {
	if s.invalidator == nil {
		return
	}
	deps := invalidation.Dependencies{Workspaces: []string{workspace}}
	for _, r := range resp.Results {
		deps.Files = append(deps.Files, filepath.Join(workspace, filepath.FromSlash(r.Path)))
		deps.Records = append(deps.Records, r.DocID)
	}
	s.invalidator.Register(key, deps)
}

func (s *Searcher) recordAccess(ctx context.Context, results []types.SearchResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.DocID
	}
	if err := s.storage.RecordAccess(ctx, ids); err != nil {
		s.logger.Warn("failed to record document access", "error", err)
	}
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return types.ErrEmptyQuery
	}
	if req.Workspace == "" {
		return types.ErrEmptyWorkspace
	}
	abs, err := filepath.Abs(req.Workspace)
	if err != nil {
		return err
	}
	req.Workspace = abs

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	switch req.Field {
	case "":
		req.Field = analysis.FieldContent
	case analysis.FieldContent, analysis.FieldSymbols, analysis.FieldPatterns:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, req.Field)
	}
	return nil
}

// CacheKey derives the cache key of a normalized request. Keys are grouped
// by workspace so "search:<workspace>/**" matches every entry of a workspace.
func CacheKey(req SearchRequest) string {
	payload, _ := json.Marshal(struct {
		Query    string
		Limit    int
		Field    analysis.FieldKind
		MatchAny bool
		Scoring  *ScoringOptions
		Explain  bool
	}{req.Query, req.Limit, req.Field, req.MatchAny, req.Scoring, req.Explain})

	sum := sha256.Sum256(payload)
	return keyPrefix + filepath.ToSlash(req.Workspace) + "/" + hex.EncodeToString(sum[:16])
}

// WorkspacePattern returns the glob matching every cache key of workspace
func WorkspacePattern(workspace string) string {
	return keyPrefix + escapeGlob(filepath.ToSlash(workspace)) + "/**"
}

// snippet returns the first line mentioning a query term, or the first
// non-blank line
func snippet(content string, terms []string) string {
	var first string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		lower := strings.ToLower(line)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return truncate(line)
			}
		}
	}
	return truncate(first)
}

func truncate(s string) string {
	if len(s) <= snippetMaxLen {
		return s
	}
	cut := snippetMaxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// escapeGlob quotes doublestar metacharacters in a literal path
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
