package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitFilter follows every non-operator token with its sub-words at
// position increment 0, so phrase matching on the original still works.
func splitFilter(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens)*2)
	for _, tok := range tokens {
		out = append(out, tok)
		if tok.Type == TypeOperator {
			continue
		}
		for _, part := range SplitIdentifier(tok.Text) {
			out = append(out, Token{
				Text:              part,
				StartOffset:       tok.StartOffset,
				EndOffset:         tok.EndOffset,
				Type:              TypeIdentifier,
				PositionIncrement: 0,
			})
		}
	}
	return out
}

// lengthFilter drops short tokens except operators and annotations. The
// position increment of a dropped token carries over to the next kept one.
func lengthFilter(tokens []Token, minLength int) []Token {
	out := make([]Token, 0, len(tokens))
	pending := 0
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok.Text) < minLength && !tok.exemptFromLength() {
			pending += tok.PositionIncrement
			continue
		}
		tok.PositionIncrement += pending
		pending = 0
		out = append(out, tok)
	}
	return out
}

// SplitIdentifier decomposes an identifier along separator, case and digit
// boundaries. The input itself is never part of the result.
//
//	SplitIdentifier("XMLParser")      // [XML Parser]
//	SplitIdentifier("OAuth2Provider") // [OAuth 2 Provider]
//	SplitIdentifier("user_id")        // [user id]
func SplitIdentifier(text string) []string {
	seen := map[string]struct{}{text: {}}
	var parts []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		parts = append(parts, s)
	}

	segments := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, seg := range segments {
		add(seg)
		words := splitWord(seg)
		if len(words) > 1 {
			for _, w := range words {
				add(w)
			}
		}
		for _, w := range words {
			if stem, ok := interfaceStem(w); ok {
				add(stem)
			}
		}
	}
	return parts
}

// splitWord splits one alphanumeric run on lower→upper, letter↔digit and
// acronym boundaries. Two-letter capital prefixes stay whole ("OAuth").
func splitWord(seg string) []string {
	runes := []rune(seg)
	if len(runes) < 2 {
		return []string{seg}
	}

	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsDigit(prev) != unicode.IsDigit(cur):
			boundary = true
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			runStart := i
			for runStart > start && unicode.IsUpper(runes[runStart-1]) {
				runStart--
			}
			boundary = i-runStart+1 >= 3
		}
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}

// interfaceStem strips the I prefix from names like IUserService
func interfaceStem(word string) (string, bool) {
	runes := []rune(word)
	if len(runes) < 3 || runes[0] != 'I' {
		return "", false
	}
	if unicode.IsUpper(runes[1]) && unicode.IsLower(runes[2]) {
		return string(runes[1:]), true
	}
	return "", false
}
