package analysis

import "strings"

// TokenType classifies a token by the code construct it was read from
type TokenType string

const (
	TypeIdentifier     TokenType = "identifier"
	TypeOperator       TokenType = "operator"
	TypeAnnotation     TokenType = "annotation"
	TypeQualifiedName  TokenType = "qualified_name"
	TypeGenericType    TokenType = "generic_type"
	TypeTypeAnnotation TokenType = "type_annotation"
)

// Token is a span of source text tagged with a type and a position.
// A PositionIncrement of 0 marks an alternate reading of the previous slot.
type Token struct {
	Text              string
	StartOffset       int
	EndOffset         int
	Type              TokenType
	PositionIncrement int
}

// exemptFromLength reports whether a token keeps its meaning at any length
func (t Token) exemptFromLength() bool {
	return t.Type == TypeOperator || t.Type == TypeAnnotation
}

// Terms returns the text of every token in order
func Terms(tokens []Token) []string {
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Text
	}
	return terms
}

// Join renders tokens as the whitespace-separated form stored in the search engine
func Join(tokens []Token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text)
	}
	return b.String()
}

// Groups splits a token stream into position slots. Each group starts with the
// token that advanced the position and carries its alternate readings.
func Groups(tokens []Token) [][]Token {
	var groups [][]Token
	for _, tok := range tokens {
		if tok.PositionIncrement > 0 || len(groups) == 0 {
			groups = append(groups, []Token{tok})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], tok)
	}
	return groups
}
