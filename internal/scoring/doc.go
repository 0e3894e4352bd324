// Package scoring re-ranks base engine hits with code-aware heuristics.
//
// Each Factor rates a document in [0,1]. The Composite scorer averages the
// factors by weight and blends the average with the base score, so a factor
// can demote a hit by at most 40% but never promote it. Factors that
// implement Override (TypeDefinitionBoost) multiply the final score instead
// and may push a hit above its base score.
//
// Weights live in a Weights table owned by the Registry and can be changed
// while queries run:
//
//	reg := scoring.NewDefaultRegistry(nil, scoring.TemporalDefault)
//	_ = reg.SetWeight(scoring.TemporalScoringName, 0.2)
//	scorer := scoring.NewComposite(reg, logger)
package scoring
