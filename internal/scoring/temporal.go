package scoring

import (
	"fmt"
	"math"
	"time"
)

// TemporalScoringName is the registry name of the recency factor
const TemporalScoringName = "temporal"

// DecayFunction selects the age curve used by TemporalScoring
type DecayFunction string

const (
	DecayExponential DecayFunction = "exponential"
	DecayLinear      DecayFunction = "linear"
	DecayGaussian    DecayFunction = "gaussian"
)

const (
	temporalFloor    = 0.1
	accessBoostCap   = 1.2
	accessBoostScale = 0.05
)

// TemporalOptions tunes the recency curve
type TemporalOptions struct {
	DecayRate float64       `yaml:"decay_rate"`
	HalfLife  time.Duration `yaml:"half_life"`
	Decay     DecayFunction `yaml:"decay"`
}

// Temporal presets
var (
	TemporalDefault    = TemporalOptions{DecayRate: 0.95, HalfLife: 30 * 24 * time.Hour, Decay: DecayExponential}
	TemporalAggressive = TemporalOptions{DecayRate: 0.9, HalfLife: 7 * 24 * time.Hour, Decay: DecayExponential}
	TemporalGentle     = TemporalOptions{DecayRate: 0.98, HalfLife: 90 * 24 * time.Hour, Decay: DecayLinear}
)

// TemporalPreset returns the named preset
func TemporalPreset(name string) (TemporalOptions, error) {
	switch name {
	case "", "default":
		return TemporalDefault, nil
	case "aggressive":
		return TemporalAggressive, nil
	case "gentle":
		return TemporalGentle, nil
	}
	return TemporalOptions{}, fmt.Errorf("unknown temporal preset %q", name)
}

// TemporalScoring favors recently modified and frequently accessed files
type TemporalScoring struct {
	base
	opts TemporalOptions
}

// NewTemporalScoring creates the recency factor. Zero options use
// TemporalDefault.
func NewTemporalScoring(w *Weight, opts TemporalOptions) *TemporalScoring {
	if opts.HalfLife <= 0 {
		opts.HalfLife = TemporalDefault.HalfLife
	}
	if opts.DecayRate <= 0 || opts.DecayRate > 1 {
		opts.DecayRate = TemporalDefault.DecayRate
	}
	if opts.Decay == "" {
		opts.Decay = TemporalDefault.Decay
	}
	return &TemporalScoring{
		base: base{name: TemporalScoringName, weight: w},
		opts: opts,
	}
}

// Compute decays by the age of the newer of the created and modified times
func (t *TemporalScoring) Compute(doc Document, _ int64, sc Context) (float64, error) {
	created, hasCreated := doc.Numeric(FieldCreated)
	modified, hasModified := doc.Numeric(FieldModified)
	if !hasCreated && !hasModified {
		return 0, ErrMissingField
	}

	now := sc.Now
	if now.IsZero() {
		now = time.Now()
	}
	ts := time.UnixMilli(max(created, modified))
	age := max(now.Sub(ts), 0)

	decay, err := t.decay(age)
	if err != nil {
		return 0, err
	}

	count, _ := doc.Numeric(FieldAccessCount)
	boost := math.Min(accessBoostCap, 1+accessBoostScale*math.Log10(float64(max(count, 0))+1))

	return clamp(decay*boost, temporalFloor, 1.0), nil
}

func (t *TemporalScoring) decay(age time.Duration) (float64, error) {
	ratio := float64(age) / float64(t.opts.HalfLife)
	switch t.opts.Decay {
	case DecayExponential:
		return math.Pow(t.opts.DecayRate, ratio), nil
	case DecayLinear:
		return math.Max(temporalFloor, 1-ratio/10), nil
	case DecayGaussian:
		return math.Exp(-(ratio * ratio)), nil
	}
	return 0, fmt.Errorf("unknown decay function %q", t.opts.Decay)
}
