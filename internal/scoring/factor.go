package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// NeutralScore is returned by a blended factor that cannot score a document
const NeutralScore = 0.5

// neutralOverride leaves the score unchanged when an override factor fails
const neutralOverride = 1.0

var (
	// ErrMissingField is returned when a document lacks a field a factor needs
	ErrMissingField = errors.New("document field missing")
	// ErrUnknownFactor is returned when a weight is set for an unregistered factor
	ErrUnknownFactor = errors.New("unknown scoring factor")
	// ErrInvalidWeight is returned for negative or non-finite weights
	ErrInvalidWeight = errors.New("weight must be a finite non-negative number")
	// ErrDuplicateFactor is returned when two factors share a name
	ErrDuplicateFactor = errors.New("duplicate scoring factor")
)

// Document field names read by the built-in factors
const (
	FieldPath        = "path"
	FieldContent     = "content"
	FieldTypeNames   = "type_names" // whitespace-separated declared type names
	FieldDefinition  = "definition" // primary type declared by the file
	FieldCreated     = "created"    // unix milliseconds
	FieldModified    = "modified"   // unix milliseconds
	FieldAccessCount = "access_count"
	FieldIsShared    = "is_shared"
)

// Document gives factors read access to stored and numeric fields
type Document interface {
	Field(name string) (string, bool)
	Numeric(name string) (int64, bool)
}

// Context is the per-query input shared by every factor. It is built once per
// query and passed by value; factors must not retain or modify it.
type Context struct {
	QueryText     string
	WorkspacePath string
	Now           time.Time

	terms []string
}

// NewContext creates a scoring context for one query
func NewContext(query, workspace string, now time.Time) Context {
	return Context{
		QueryText:     query,
		WorkspacePath: workspace,
		Now:           now,
		terms:         queryTerms(query),
	}
}

// Terms returns the lower-cased identifier words of the query
func (c Context) Terms() []string {
	if c.terms == nil && c.QueryText != "" {
		return queryTerms(c.QueryText)
	}
	return c.terms
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, strings.ToLower(f))
	}
	return terms
}

// Factor is a pluggable relevance heuristic. Compute must be free of side
// effects; errors are absorbed by the composite scorer.
type Factor interface {
	Name() string
	Weight() float64
	SetWeight(w float64)
	Compute(doc Document, docID int64, sc Context) (float64, error)
}

// Override marks factors whose score scales the final result instead of
// joining the weighted average. Such scores may exceed 1.
type Override interface {
	Override() bool
}

func isOverride(f Factor) bool {
	o, ok := f.(Override)
	return ok && o.Override()
}

// Weight is a factor weight that can be changed while queries are running.
// Readers may observe either the old or the new value.
type Weight struct {
	bits atomic.Uint64
}

// NewWeight creates a weight with an initial value
func NewWeight(v float64) *Weight {
	w := &Weight{}
	w.Store(v)
	return w
}

// Load returns the current weight
func (w *Weight) Load() float64 {
	return math.Float64frombits(w.bits.Load())
}

// Store replaces the weight
func (w *Weight) Store(v float64) {
	w.bits.Store(math.Float64bits(v))
}

// Weights holds the tunable weight of every factor by name
type Weights struct {
	mu     sync.RWMutex
	values map[string]*Weight
}

// NewWeights creates a weight table from initial values
func NewWeights(initial map[string]float64) *Weights {
	ws := &Weights{values: make(map[string]*Weight, len(initial))}
	for name, v := range initial {
		ws.values[name] = NewWeight(v)
	}
	return ws
}

// For returns the shared weight for name, creating it with def if absent
func (ws *Weights) For(name string, def float64) *Weight {
	ws.mu.RLock()
	w, ok := ws.values[name]
	ws.mu.RUnlock()
	if ok {
		return w
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w, ok := ws.values[name]; ok {
		return w
	}
	w = NewWeight(def)
	ws.values[name] = w
	return w
}

// Snapshot returns the current weights
func (ws *Weights) Snapshot() map[string]float64 {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make(map[string]float64, len(ws.values))
	for name, w := range ws.values {
		out[name] = w.Load()
	}
	return out
}

// base carries the name and shared weight common to all built-in factors
type base struct {
	name   string
	weight *Weight
}

func (b *base) Name() string        { return b.name }
func (b *base) Weight() float64     { return b.weight.Load() }
func (b *base) SetWeight(w float64) { b.weight.Store(w) }

// Registry is the ordered set of factors used by the composite scorer
type Registry struct {
	mu      sync.RWMutex
	weights *Weights
	factors []Factor
	byName  map[string]Factor
}

// NewRegistry creates an empty registry backed by weights
func NewRegistry(weights *Weights) *Registry {
	if weights == nil {
		weights = NewWeights(nil)
	}
	return &Registry{
		weights: weights,
		byName:  make(map[string]Factor),
	}
}

// Weights returns the weight table owned by the registry
func (r *Registry) Weights() *Weights {
	return r.weights
}

// Register appends a factor; names must be unique
func (r *Registry) Register(f Factor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[f.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFactor, f.Name())
	}
	r.factors = append(r.factors, f)
	r.byName[f.Name()] = f
	return nil
}

// Factors returns the registered factors in registration order
func (r *Registry) Factors() []Factor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Factor, len(r.factors))
	copy(out, r.factors)
	return out
}

// Factor returns the factor registered under name
func (r *Registry) Factor(name string) (Factor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// SetWeight changes a factor weight at runtime
func (r *Registry) SetWeight(name string, w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, w)
	}
	f, ok := r.Factor(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFactor, name)
	}
	f.SetWeight(w)
	return nil
}

// Default factor weights
var DefaultWeights = map[string]float64{
	PathRelevanceName:           1.0,
	TypeDefinitionBoostName:     1.0,
	InterfaceImplementationName: 1.0,
	TemporalScoringName:         0.5,
}

// NewDefaultRegistry registers the built-in factors. Weights missing from
// weights fall back to DefaultWeights.
func NewDefaultRegistry(weights map[string]float64, temporal TemporalOptions) *Registry {
	merged := make(map[string]float64, len(DefaultWeights))
	for name, w := range DefaultWeights {
		merged[name] = w
	}
	for name, w := range weights {
		merged[name] = w
	}

	ws := NewWeights(merged)
	r := NewRegistry(ws)
	// Names are distinct constants, so registration cannot fail here
	_ = r.Register(NewPathRelevance(ws.For(PathRelevanceName, 1.0)))
	_ = r.Register(NewTypeDefinitionBoost(ws.For(TypeDefinitionBoostName, 1.0)))
	_ = r.Register(NewInterfaceImplementation(ws.For(InterfaceImplementationName, 1.0)))
	_ = r.Register(NewTemporalScoring(ws.For(TemporalScoringName, 0.5), temporal))
	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
