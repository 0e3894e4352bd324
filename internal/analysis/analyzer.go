package analysis

// FieldKind selects the analysis chain applied to a field
type FieldKind string

const (
	// FieldContent is the default chain for file content
	FieldContent FieldKind = "content"
	// FieldSymbols always splits identifiers and drops single-character terms
	FieldSymbols FieldKind = "symbols"
	// FieldPatterns splits on whitespace only and keeps punctuation verbatim
	FieldPatterns FieldKind = "patterns"

	// FieldQuery routes query text through the content chain. It is an alias
	// rather than a separate chain so index and query tokenization cannot drift.
	FieldQuery = FieldContent
)

// symbolsMinLength is the minimum term length in the symbols field
const symbolsMinLength = 2

// Options configures the content chain. The zero value is the default chain.
type Options struct {
	MinLength        int  // Tokens shorter than this are dropped (default: 1)
	DisableSplitting bool // Skip camelCase/snake_case/digit sub-words (default: false)
	IndexPunctuation bool // Emit , ; ( ) { } [ ] and quotes as operator tokens (default: false)
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		MinLength:        1,
		DisableSplitting: false,
		IndexPunctuation: false,
	}
}

// Analyzer converts text into code-aware token streams. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer
func New(opts Options) *Analyzer {
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	return &Analyzer{opts: opts}
}

// Options returns the analyzer configuration
func (a *Analyzer) Options() Options {
	return a.opts
}

// Tokenize runs the chain for field over text
func (a *Analyzer) Tokenize(text string, field FieldKind) []Token {
	switch field {
	case FieldSymbols:
		tokens := splitFilter(tokenize(text, false))
		return lengthFilter(tokens, max(symbolsMinLength, a.opts.MinLength))
	case FieldPatterns:
		return whitespaceTokens(text)
	default:
		tokens := tokenize(text, a.opts.IndexPunctuation)
		if !a.opts.DisableSplitting {
			tokens = splitFilter(tokens)
		}
		return lengthFilter(tokens, a.opts.MinLength)
	}
}

// Analyze returns the stored form of text for field
func (a *Analyzer) Analyze(text string, field FieldKind) string {
	return Join(a.Tokenize(text, field))
}
