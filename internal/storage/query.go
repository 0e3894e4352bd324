package storage

import (
	"math"
	"strings"
	"unicode"

	"github.com/dshills/codesearch/internal/analysis"
)

// ftsTokenChars mirrors the tokenchars option of ftsTokenizer
const ftsTokenChars = "_$.:<>-=!&|+*/%^~?@#[](){};,"

// columnFor maps an analysis field to its FTS5 column. The empty field
// searches every column.
func columnFor(field analysis.FieldKind) string {
	switch field {
	case analysis.FieldContent:
		return "analyzed_content"
	case analysis.FieldSymbols:
		return "analyzed_symbols"
	case analysis.FieldPatterns:
		return "analyzed_patterns"
	}
	return ""
}

// indexable reports whether the FTS5 tokenizer keeps any part of term
func indexable(term string) bool {
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(ftsTokenChars, r) {
			return true
		}
	}
	return false
}

// quoteTerm renders term as an FTS5 string so operators like >= and NOT are
// matched literally
func quoteTerm(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// buildMatch converts an analyzed query into an FTS5 MATCH expression.
// Tokens of one group are alternatives; groups are joined with AND, or OR
// when MatchAny is set. It returns "" when no group has an indexable term.
func buildMatch(q BaseQuery) string {
	var groups []string
	for _, group := range q.Groups {
		seen := make(map[string]struct{}, len(group))
		var terms []string
		for _, term := range group {
			if !indexable(term) {
				continue
			}
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, quoteTerm(term))
		}
		switch len(terms) {
		case 0:
		case 1:
			groups = append(groups, terms[0])
		default:
			groups = append(groups, "("+strings.Join(terms, " OR ")+")")
		}
	}
	if len(groups) == 0 {
		return ""
	}

	op := " AND "
	if q.MatchAny {
		op = " OR "
	}
	expr := strings.Join(groups, op)
	if col := columnFor(q.Field); col != "" {
		return col + " : (" + expr + ")"
	}
	return expr
}

// QueryFromTokens groups analyzer output by position for Query
func QueryFromTokens(tokens []analysis.Token, field analysis.FieldKind) BaseQuery {
	groups := analysis.Groups(tokens)
	q := BaseQuery{Groups: make([][]string, 0, len(groups)), Field: field}
	for _, g := range groups {
		q.Groups = append(q.Groups, analysis.Terms(g))
	}
	return q
}

// normalizeBM25 maps an FTS5 bm25() value (negative, lower is better) into
// (0,1) with higher meaning more relevant
func normalizeBM25(raw float64) float64 {
	b := math.Abs(raw)
	if b == 0 {
		// Tiny corpora can score a match at exactly zero
		return 0.5
	}
	return b / (1 + b)
}
