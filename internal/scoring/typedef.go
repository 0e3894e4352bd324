package scoring

import (
	"strings"
)

// TypeDefinitionBoostName is the registry name of the type definition factor
const TypeDefinitionBoostName = "type_definition_boost"

const (
	definitionBoost    = 10.0
	typeMatchStep      = 0.5
	typeMatchCap       = 3.0
	minTypeMatchLength = 3
)

// TypeDefinitionBoost multiplies the score of files that declare the types a
// query names. A file whose definition is exactly the query term is boosted
// far above everything else.
type TypeDefinitionBoost struct {
	base
}

// NewTypeDefinitionBoost creates the type definition factor
func NewTypeDefinitionBoost(w *Weight) *TypeDefinitionBoost {
	return &TypeDefinitionBoost{base: base{name: TypeDefinitionBoostName, weight: w}}
}

// Override reports that this factor scales the final score
func (t *TypeDefinitionBoost) Override() bool { return true }

// Compute returns 10 for an exact definition match, 1 + 0.5 per overlapping
// type name (at most 3) otherwise, and 1 when nothing overlaps
func (t *TypeDefinitionBoost) Compute(doc Document, _ int64, sc Context) (float64, error) {
	terms := sc.Terms()
	if len(terms) == 0 {
		return neutralOverride, nil
	}

	if def, ok := doc.Field(FieldDefinition); ok && def != "" {
		lowerDef := strings.ToLower(def)
		for _, term := range terms {
			if term == lowerDef {
				return definitionBoost, nil
			}
		}
	}

	names, ok := doc.Field(FieldTypeNames)
	if !ok || strings.TrimSpace(names) == "" {
		return neutralOverride, nil
	}

	matches := 0
	for _, name := range strings.Fields(names) {
		lowerName := strings.ToLower(name)
		for _, term := range terms {
			if len(term) < minTypeMatchLength {
				continue
			}
			if lowerName == term || strings.Contains(lowerName, term) {
				matches++
				break
			}
		}
	}
	if matches == 0 {
		return neutralOverride, nil
	}

	return min(typeMatchCap, 1+typeMatchStep*float64(matches)), nil
}
