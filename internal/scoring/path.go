package scoring

import (
	"math"
	"path"
	"strings"
)

// PathRelevanceName is the registry name of the path factor
const PathRelevanceName = "path_relevance"

const (
	unknownSegmentScore = 0.7
	rootFileScore       = 0.8
	depthPenaltyStep    = 0.02
	depthPenaltyFloor   = 0.7
	testFilePenalty     = 0.5
)

// segmentScores rates well-known directory names
var segmentScores = map[string]float64{
	"src":          1.0,
	"lib":          0.9,
	"core":         0.9,
	"internal":     0.9,
	"pkg":          0.9,
	"app":          0.9,
	"services":     0.9,
	"cmd":          0.8,
	"test":         0.4,
	"tests":        0.4,
	"__tests__":    0.4,
	"spec":         0.4,
	"mocks":        0.3,
	"examples":     0.5,
	"docs":         0.5,
	"vendor":       0.2,
	"dist":         0.2,
	"build":        0.2,
	"node_modules": 0.1,
	"bin":          0.1,
	"obj":          0.1,
	".git":         0.05,
}

// PathRelevance rates a document by where it lives in the tree
type PathRelevance struct {
	base
}

// NewPathRelevance creates the path factor
func NewPathRelevance(w *Weight) *PathRelevance {
	return &PathRelevance{base: base{name: PathRelevanceName, weight: w}}
}

// Compute averages the directory segment scores, then applies the depth and
// test-file penalties
func (p *PathRelevance) Compute(doc Document, _ int64, sc Context) (float64, error) {
	filePath, ok := doc.Field(FieldPath)
	if !ok || filePath == "" {
		return 0, ErrMissingField
	}

	segments := dirSegments(filePath)
	score := rootFileScore
	if len(segments) > 0 {
		var sum float64
		for _, seg := range segments {
			s, known := segmentScores[strings.ToLower(seg)]
			if !known {
				s = unknownSegmentScore
			}
			sum += s
		}
		score = sum / float64(len(segments))
	}

	score *= math.Max(depthPenaltyFloor, 1-depthPenaltyStep*float64(len(segments)))

	if isTestPath(filePath) && !strings.Contains(strings.ToLower(sc.QueryText), "test") {
		score *= testFilePenalty
	}

	return clamp(score, 0, 1), nil
}

// productionPathScore is the lowest segment score of a production directory
const productionPathScore = 0.8

// productionPath reports whether no directory of p is rated below
// productionPathScore, so vendored copies and examples do not qualify
func productionPath(p string) bool {
	for _, seg := range dirSegments(p) {
		if s, known := segmentScores[strings.ToLower(seg)]; known && s < productionPathScore {
			return false
		}
	}
	return true
}

// dirSegments returns the directory components of a slash or backslash path
func dirSegments(p string) []string {
	dir := path.Dir(strings.ReplaceAll(p, "\\", "/"))
	var out []string
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out
}

var testDirs = map[string]bool{
	"test": true, "tests": true, "__tests__": true, "spec": true, "specs": true,
	"testing": true, "testdata": true,
}

var mockDirs = map[string]bool{
	"mock": true, "mocks": true, "fake": true, "fakes": true, "stub": true, "stubs": true,
	"__mocks__": true,
}

// isTestPath recognizes test files by directory or naming convention
func isTestPath(p string) bool {
	for _, seg := range dirSegments(p) {
		if testDirs[strings.ToLower(seg)] {
			return true
		}
	}

	stem := fileStem(p)
	if strings.HasSuffix(stem, "Test") || strings.HasSuffix(stem, "Tests") {
		return true
	}
	lower := strings.ToLower(baseName(p))
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasPrefix(lower, "test_"):
		return true
	case strings.Contains(lower, ".test."), strings.Contains(lower, ".spec."):
		return true
	}
	return false
}

// isMockPath recognizes mock, fake and stub files by directory or name
func isMockPath(p string) bool {
	for _, seg := range dirSegments(p) {
		if mockDirs[strings.ToLower(seg)] {
			return true
		}
	}
	stem := strings.ToLower(fileStem(p))
	for _, marker := range []string{"mock", "fake", "stub"} {
		if strings.HasPrefix(stem, marker) || strings.HasSuffix(stem, marker) || strings.HasSuffix(stem, marker+"s") {
			return true
		}
	}
	return false
}

func baseName(p string) string {
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}

// fileStem returns the file name without its final extension
func fileStem(p string) string {
	name := baseName(p)
	return strings.TrimSuffix(name, path.Ext(name))
}
