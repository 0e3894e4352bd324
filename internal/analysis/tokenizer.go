package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxOperatorLen is the longest entry in the operator table
const maxOperatorLen = 4

// maxGenericLen bounds the lookahead spent on a single <...> parameter list
const maxGenericLen = 128

// maxAttributeLen bounds the lookahead spent on a bracketed attribute
const maxAttributeLen = 200

// operators are matched greedily, longest first, so ">=" wins over ">" then "="
var operators = toSet(
	">>>=",
	"...", "===", "!==", "<<=", ">>=", ">>>", "**=", "&&=", "||=", "??=", "<=>",
	"::", "->", "=>", ">=", "<=", "==", "!=", "&&", "||", "??", "?.", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>", "..", ":=", "**", "<-",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "&", "|", "^", "~", "?", ":", ".", "@", "#",
)

// punctuation is only emitted when Options.IndexPunctuation is set
var punctuation = toSet(",", ";", "(", ")", "{", "}", "[", "]", `"`, "'", "`", "\\")

func toSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// IsOperator reports whether s is an entry of the operator or punctuation tables
func IsOperator(s string) bool {
	if _, ok := operators[s]; ok {
		return true
	}
	_, ok := punctuation[s]
	return ok
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// tokenizer is a single-pass scanner over source text
type tokenizer struct {
	src         string
	pos         int
	punctuation bool
	tokens      []Token
}

// tokenize scans src into code-aware tokens, all at position increment 1
func tokenize(src string, punctuation bool) []Token {
	t := &tokenizer{src: src, punctuation: punctuation}

	for t.pos < len(t.src) {
		r, size := t.runeAt(t.pos)
		switch {
		case unicode.IsSpace(r):
			t.pos += size
		case r == '@' && t.identStartAt(t.pos+1):
			t.readAnnotation()
		case (r == '[' || (r == '#' && t.byteAt(t.pos+1) == '[')) && t.attributeAllowed():
			if !t.readAttribute() {
				t.readOperator()
			}
		case isIdentStart(r):
			t.readIdentifier()
		case unicode.IsDigit(r):
			t.readNumber()
		case r == ':' && t.typeAnnotationAllowed():
			if !t.readTypeAnnotation() {
				t.readOperator()
			}
		default:
			t.readOperator()
		}
	}

	return t.tokens
}

func (t *tokenizer) emit(start, end int, typ TokenType) {
	t.emitText(t.src[start:end], start, end, typ)
}

func (t *tokenizer) emitText(text string, start, end int, typ TokenType) {
	t.tokens = append(t.tokens, Token{
		Text:              text,
		StartOffset:       start,
		EndOffset:         end,
		Type:              typ,
		PositionIncrement: 1,
	})
}

func (t *tokenizer) runeAt(i int) (rune, int) {
	if i >= len(t.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(t.src[i:])
}

func (t *tokenizer) byteAt(i int) byte {
	if i < 0 || i >= len(t.src) {
		return 0
	}
	return t.src[i]
}

func (t *tokenizer) identStartAt(i int) bool {
	r, size := t.runeAt(i)
	return size > 0 && isIdentStart(r)
}

// scanIdent returns the end offset of the identifier starting at i
func (t *tokenizer) scanIdent(i int) int {
	for i < len(t.src) {
		r, size := t.runeAt(i)
		if !isIdentPart(r) {
			break
		}
		i += size
	}
	return i
}

// qualifierAt returns the length of a member-access separator at i, or 0
func (t *tokenizer) qualifierAt(i int) int {
	switch {
	case strings.HasPrefix(t.src[i:], "::"):
		return 2
	case strings.HasPrefix(t.src[i:], "->"):
		return 2
	case t.byteAt(i) == '.':
		return 1
	}
	return 0
}

// scanQualified extends an identifier across ::, . and -> separators
func (t *tokenizer) scanQualified(i int) (int, bool) {
	qualified := false
	for i < len(t.src) {
		sep := t.qualifierAt(i)
		if sep == 0 || !t.identStartAt(i+sep) {
			break
		}
		i = t.scanIdent(i + sep)
		qualified = true
	}
	return i, qualified
}

// genericEnd returns the offset just past a balanced <...> list starting at i
func (t *tokenizer) genericEnd(i int) (int, bool) {
	if t.byteAt(i) != '<' {
		return 0, false
	}

	depth := 0
	for j := i; j < len(t.src) && j-i <= maxGenericLen; j++ {
		c := t.src[j]
		switch {
		case c == '<':
			depth++
		case c == '>':
			depth--
			if depth == 0 {
				return j + 1, true
			}
		case c == ' ', c == ',', c == '.', c == ':', c == '[', c == ']', c == '?', c == '_', c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c >= utf8.RuneSelf:
		default:
			return 0, false
		}
	}
	return 0, false
}

func (t *tokenizer) readIdentifier() {
	start := t.pos
	end, qualified := t.scanQualified(t.scanIdent(start))

	typ := TypeIdentifier
	if qualified {
		typ = TypeQualifiedName
	}
	text := t.src[start:end]
	if genericEnd, ok := t.genericEnd(end); ok {
		end = genericEnd
		typ = TypeGenericType
		text = compact(t.src[start:end])
	}

	t.emitText(text, start, end, typ)
	t.pos = end
}

// compact drops the spaces allowed inside generic parameter lists
func compact(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func (t *tokenizer) readNumber() {
	start := t.pos
	i := start
	for i < len(t.src) {
		r, size := t.runeAt(i)
		if isIdentPart(r) {
			i += size
			continue
		}
		if r == '.' && i+1 < len(t.src) && t.src[i+1] >= '0' && t.src[i+1] <= '9' {
			i++
			continue
		}
		break
	}
	t.emit(start, i, TypeIdentifier)
	t.pos = i
}

// readAnnotation reads @Name and @qualified.Name
func (t *tokenizer) readAnnotation() {
	start := t.pos
	end, _ := t.scanQualified(t.scanIdent(start + 1))
	t.emit(start, end, TypeAnnotation)
	t.pos = end
}

// attributeAllowed rejects index expressions such as items[i]
func (t *tokenizer) attributeAllowed() bool {
	if t.pos == 0 {
		return true
	}
	prev := t.src[t.pos-1]
	switch prev {
	case ' ', '\t', '\n', '\r', '(', ',', ';', '{', '}':
		return true
	}
	return false
}

// readAttribute reads [Name], [Name(args)] and #[name(args)] as one token
func (t *tokenizer) readAttribute() bool {
	start := t.pos
	i := start
	if t.src[i] == '#' {
		i++
	}
	i++ // '['
	if !t.identStartAt(i) {
		return false
	}
	i, _ = t.scanQualified(t.scanIdent(i))

	if t.byteAt(i) == '(' {
		depth := 0
		for ; i < len(t.src); i++ {
			c := t.src[i]
			if c == '\n' || i-start > maxAttributeLen {
				return false
			}
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
		if depth != 0 {
			return false
		}
	}

	if t.byteAt(i) != ']' {
		return false
	}
	end := i + 1
	t.emit(start, end, TypeAnnotation)
	t.pos = end
	return true
}

// typeAnnotationAllowed matches name: Type but not a ? b : c or x := y
func (t *tokenizer) typeAnnotationAllowed() bool {
	next := t.byteAt(t.pos + 1)
	if next == ':' || next == '=' {
		return false
	}
	if t.pos == 0 {
		return false
	}
	prev, _ := utf8.DecodeLastRuneInString(t.src[:t.pos])
	return isIdentPart(prev) || prev == ')' || prev == '?' || prev == ']'
}

// readTypeAnnotation emits ": TypeName<...>" normalized to ":TypeName<...>"
func (t *tokenizer) readTypeAnnotation() bool {
	start := t.pos
	i := start + 1
	for t.byteAt(i) == ' ' || t.byteAt(i) == '\t' {
		i++
	}
	if !t.identStartAt(i) {
		return false
	}

	typeStart := i
	end, _ := t.scanQualified(t.scanIdent(i))
	if genericEnd, ok := t.genericEnd(end); ok {
		end = genericEnd
	}
	for strings.HasPrefix(t.src[end:], "[]") {
		end += 2
	}

	t.emitText(":"+compact(t.src[typeStart:end]), start, end, TypeTypeAnnotation)
	t.pos = end
	return true
}

func (t *tokenizer) readOperator() {
	for n := maxOperatorLen; n >= 1; n-- {
		if t.pos+n > len(t.src) {
			continue
		}
		candidate := t.src[t.pos : t.pos+n]
		if _, ok := operators[candidate]; ok {
			t.emit(t.pos, t.pos+n, TypeOperator)
			t.pos += n
			return
		}
	}

	r, size := t.runeAt(t.pos)
	if _, ok := punctuation[string(r)]; ok && t.punctuation {
		t.emit(t.pos, t.pos+size, TypeOperator)
	}
	t.pos += size
}

// whitespaceTokens splits on whitespace only and keeps every character verbatim
func whitespaceTokens(src string) []Token {
	var tokens []Token
	start := -1
	for i, r := range src {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, patternToken(src[start:i], start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, patternToken(src[start:], start, len(src)))
	}
	return tokens
}

func patternToken(text string, start, end int) Token {
	typ := TypeIdentifier
	switch {
	case IsOperator(text):
		typ = TypeOperator
	case strings.HasPrefix(text, "@"), strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		typ = TypeAnnotation
	}
	return Token{Text: text, StartOffset: start, EndOffset: end, Type: typ, PositionIncrement: 1}
}
