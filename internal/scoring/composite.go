package scoring

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codesearch/pkg/types"
)

// Blend shares
const (
	BaseShare   = 0.6
	FactorShare = 0.4
)

// BaseHit is a document returned by the base engine with its normalized score
type BaseHit struct {
	DocID     int64
	BaseScore float64
	Doc       Document
}

// Scored is a re-ranked hit
type Scored struct {
	BaseHit
	Score       float64
	Explanation *types.ScoreExplanation
}

// Composite blends the base relevance with the registered factors:
//
//	final = base*0.6 + (avg*base)*0.4
//
// avg is the weighted mean of the non-override factors, so with factor
// scores in [0,1] the final score stays within [0.6*base, base]. Override
// factors then multiply the result.
type Composite struct {
	registry *Registry
	logger   *slog.Logger
	limit    int
}

// NewComposite creates a composite scorer over registry
func NewComposite(registry *Registry, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		registry: registry,
		logger:   logger,
		limit:    runtime.GOMAXPROCS(0),
	}
}

// Registry returns the factor registry
func (c *Composite) Registry() *Registry {
	return c.registry
}

// Score returns the final relevance of one document
func (c *Composite) Score(baseScore float64, doc Document, docID int64, sc Context) float64 {
	return c.Explain(baseScore, doc, docID, sc).FinalScore
}

// Explain scores one document and records every factor's contribution
func (c *Composite) Explain(baseScore float64, doc Document, docID int64, sc Context) types.ScoreExplanation {
	factors := c.registry.Factors()
	contributions := make([]types.FactorContribution, 0, len(factors))

	var weighted, totalWeight float64
	overrides := 1.0
	for _, f := range factors {
		w := f.Weight()
		override := isOverride(f)
		score := c.safeCompute(f, override, doc, docID, sc)

		contributions = append(contributions, types.FactorContribution{
			Name:     f.Name(),
			Score:    score,
			Weight:   w,
			Override: override,
		})

		if w <= 0 {
			continue
		}
		if override {
			overrides *= score
			continue
		}
		weighted += score * w
		totalWeight += w
	}

	// No active factors leaves the base score untouched
	avg := 1.0
	if totalWeight > 0 {
		avg = weighted / totalWeight
	}

	for i := range contributions {
		fc := &contributions[i]
		switch {
		case fc.Weight <= 0:
		case fc.Override:
			fc.Contribution = fc.Score
		default:
			fc.Contribution = fc.Score * fc.Weight / totalWeight * baseScore * FactorShare
		}
	}

	return types.ScoreExplanation{
		BaseScore:     baseScore,
		FactorAverage: avg,
		Overrides:     overrides,
		FinalScore:    Blend(baseScore, avg) * overrides,
		Factors:       contributions,
	}
}

// Blend combines a base score with a factor average
func Blend(baseScore, avg float64) float64 {
	return baseScore*BaseShare + (avg*baseScore)*FactorShare
}

// Rescore scores hits in parallel and sorts them by final score. It never
// drops a hit: the output has the same length as the input.
func (c *Composite) Rescore(ctx context.Context, hits []BaseHit, sc Context, explain bool) ([]Scored, error) {
	out := make([]Scored, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.limit, 1))
	for i := range hits {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exp := c.Explain(hits[i].BaseScore, hits[i].Doc, hits[i].DocID, sc)
			out[i] = Scored{BaseHit: hits[i], Score: exp.FinalScore}
			if explain {
				out[i].Explanation = &exp
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].BaseScore > out[j].BaseScore
	})
	return out, nil
}

// safeCompute runs a factor and substitutes a neutral score for errors,
// panics and non-finite results
func (c *Composite) safeCompute(f Factor, override bool, doc Document, docID int64, sc Context) (score float64) {
	neutral := NeutralScore
	if override {
		neutral = neutralOverride
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("scoring factor panicked", "factor", f.Name(), "doc_id", docID, "panic", r)
			score = neutral
		}
	}()

	s, err := f.Compute(doc, docID, sc)
	if err != nil {
		c.logger.Debug("scoring factor failed", "factor", f.Name(), "doc_id", docID, "error", err)
		return neutral
	}
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return neutral
	}
	if !override {
		s = math.Min(s, 1)
	}
	return s
}
