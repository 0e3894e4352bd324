package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/codesearch/pkg/types"
)

// modifiers matches the declaration prefixes shared by most C-family and
// scripting languages
const modifiers = `^\s*(?:template\s*<[^>]*>\s*)?(?:(?:public|private|protected|internal|fileprivate|open|static|abstract|sealed|final|partial|export|default|declare|readonly|async|unsafe|virtual|override|inline|const|data|case|implicit|extern(?:\s+"[^"]*")?|pub(?:\([^)]*\))?)\s+)*`

// keywordKinds maps a declaration keyword to a symbol kind
var keywordKinds = map[string]types.SymbolKind{
	"class":       types.KindClass,
	"record":      types.KindClass,
	"object":      types.KindClass,
	"interface":   types.KindInterface,
	"@interface":  types.KindInterface,
	"protocol":    types.KindInterface,
	"struct":      types.KindStruct,
	"union":       types.KindStruct,
	"enum":        types.KindEnum,
	"trait":       types.KindTrait,
	"type":        types.KindType,
	"typealias":   types.KindType,
	"module":      types.KindModule,
	"mod":         types.KindModule,
	"namespace":   types.KindModule,
	"def":         types.KindFunction,
	"fn":          types.KindFunction,
	"fun":         types.KindFunction,
	"func":        types.KindFunction,
	"function":    types.KindFunction,
	"function*":   types.KindFunction,
	"enum class":  types.KindEnum,
	"enum struct": types.KindEnum,
}

// language describes how the line scanner reads one language
type language struct {
	name       string
	extensions []string
	comments   []string // Line prefixes that start a comment
	pubOnly    bool     // Declarations are private unless marked pub

	pkg     *regexp.Regexp   // First group captures the package or namespace
	imports []*regexp.Regexp // First non-empty group captures the import
	decls   []*regexp.Regexp // Named groups kw and name
}

func decl(keywords string) *regexp.Regexp {
	return regexp.MustCompile(modifiers + `(?P<kw>` + keywords + `)\s+(?P<name>[A-Za-z_$][\w$]*)`)
}

var (
	cComments      = []string{"//", "/*", "*"}
	scriptComments = []string{"#"}
)

var languages = []*language{
	{
		name:       "java",
		extensions: []string{".java"},
		comments:   cComments,
		pkg:        regexp.MustCompile(`^\s*package\s+([\w.]+)`),
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.*]+)`)},
		decls:      []*regexp.Regexp{decl(`class|interface|@interface|enum|record`)},
	},
	{
		name:       "kotlin",
		extensions: []string{".kt", ".kts"},
		comments:   cComments,
		pkg:        regexp.MustCompile(`^\s*package\s+([\w.]+)`),
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*import\s+([\w.*]+)`)},
		decls:      []*regexp.Regexp{decl(`enum class|class|interface|object|typealias|fun`)},
	},
	{
		name:       "scala",
		extensions: []string{".scala"},
		comments:   cComments,
		pkg:        regexp.MustCompile(`^\s*package\s+([\w.]+)`),
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*import\s+([\w.{}, ]+)`)},
		decls:      []*regexp.Regexp{decl(`class|trait|object|type|def`)},
	},
	{
		name:       "csharp",
		extensions: []string{".cs"},
		comments:   cComments,
		pkg:        regexp.MustCompile(`^\s*namespace\s+([\w.]+)`),
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*using\s+(?:static\s+)?([\w.]+)\s*;`)},
		decls:      []*regexp.Regexp{decl(`class|interface|enum|struct|record`)},
	},
	{
		name:       "typescript",
		extensions: []string{".ts", ".tsx", ".mts", ".cts"},
		comments:   cComments,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*import\s.*?from\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`),
		},
		decls: []*regexp.Regexp{decl(`class|interface|enum|type|namespace|function\*?`)},
	},
	{
		name:       "javascript",
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		comments:   cComments,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*import\s.*?from\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		decls: []*regexp.Regexp{decl(`class|function\*?`)},
	},
	{
		name:       "python",
		extensions: []string{".py", ".pyi"},
		comments:   scriptComments,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`),
			regexp.MustCompile(`^\s*import\s+([\w.]+)`),
		},
		decls: []*regexp.Regexp{decl(`class|def`)},
	},
	{
		name:       "rust",
		extensions: []string{".rs"},
		comments:   []string{"//", "/*", "*", "#["},
		pubOnly:    true,
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*(?:pub\s+)?use\s+([\w:]+)`)},
		decls:      []*regexp.Regexp{decl(`struct|enum|trait|type|union|mod|fn`)},
	},
	{
		name:       "cpp",
		extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".h"},
		comments:   cComments,
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)},
		decls:      []*regexp.Regexp{decl(`enum class|enum struct|class|struct|enum|union|namespace`)},
	},
	{
		name:       "c",
		extensions: []string{".c"},
		comments:   cComments,
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)},
		decls:      []*regexp.Regexp{decl(`struct|enum|union`)},
	},
	{
		name:       "swift",
		extensions: []string{".swift"},
		comments:   cComments,
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*import\s+(\w+)`)},
		decls:      []*regexp.Regexp{decl(`class|struct|enum|protocol|typealias|func`)},
	},
	{
		name:       "ruby",
		extensions: []string{".rb"},
		comments:   scriptComments,
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)},
		decls: []*regexp.Regexp{
			decl(`class|module`),
			regexp.MustCompile(`^\s*(?P<kw>def)\s+(?:self\.)?(?P<name>[A-Za-z_]\w*[?!]?)`),
		},
	},
	{
		name:       "php",
		extensions: []string{".php"},
		comments:   []string{"//", "/*", "*", "#"},
		pkg:        regexp.MustCompile(`^\s*namespace\s+([\w\\]+)`),
		imports:    []*regexp.Regexp{regexp.MustCompile(`^\s*use\s+([\w\\]+)`)},
		decls:      []*regexp.Regexp{decl(`class|interface|trait|enum|function`)},
	},
}

// privateMarkers downgrade a declaration to unexported
var privateMarkers = []string{"private ", "fileprivate ", "internal ", "protected "}

// scan reads content line by line. A declaration never spans lines here;
// multi-line signatures still yield their first line.
func (l *language) scan(content []byte) *types.ParseResult {
	result := &types.ParseResult{Language: l.name}
	if !utf8.Valid(content) {
		result.AddError("", 0, 0, "content is not valid UTF-8")
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || l.isComment(trimmed) {
			continue
		}

		if l.pkg != nil && result.PackageName == "" {
			if m := l.pkg.FindStringSubmatch(line); m != nil {
				result.PackageName = m[1]
				continue
			}
		}
		if imp := l.matchImport(line); imp != "" {
			result.Imports = append(result.Imports, imp)
			continue
		}
		if sym, ok := l.matchDecl(line, trimmed, lineNo); ok {
			result.Symbols = append(result.Symbols, sym)
		}
	}
	if err := sc.Err(); err != nil {
		result.AddError("", lineNo, 0, err.Error())
	}
	return result
}

func (l *language) isComment(trimmed string) bool {
	for _, prefix := range l.comments {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func (l *language) matchImport(line string) string {
	for _, re := range l.imports {
		m := re.FindStringSubmatch(line)
		for i := 1; i < len(m); i++ {
			if m[i] != "" {
				return strings.TrimSpace(m[i])
			}
		}
	}
	return ""
}

func (l *language) matchDecl(line, trimmed string, lineNo int) (types.Symbol, bool) {
	for _, re := range l.decls {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		kw := strings.Join(strings.Fields(m[re.SubexpIndex("kw")]), " ")
		name := m[re.SubexpIndex("name")]
		// Single letters are template parameters or loop helpers, not types
		if utf8.RuneCountInString(name) < 2 {
			continue
		}
		kind, ok := keywordKinds[kw]
		if !ok {
			continue
		}
		pos := types.Position{Line: lineNo, Column: strings.Index(line, m[re.SubexpIndex("kw")]) + 1}
		return types.Symbol{
			Name:      name,
			Kind:      kind,
			Signature: trimmed,
			Scope:     l.scope(trimmed, name),
			Start:     pos,
			End:       pos,
		}, true
	}
	return types.Symbol{}, false
}

func (l *language) scope(trimmed, name string) types.SymbolScope {
	if l.pubOnly {
		if strings.HasPrefix(trimmed, "pub") {
			return types.ScopeExported
		}
		return types.ScopeUnexported
	}
	if strings.HasPrefix(name, "_") {
		return types.ScopeUnexported
	}
	for _, marker := range privateMarkers {
		if strings.Contains(trimmed, marker) {
			return types.ScopeUnexported
		}
	}
	return types.ScopeExported
}
