package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/codesearch/pkg/types"
)

// LanguageGo is parsed with go/parser; every other language goes through
// the line scanner in languages.go
const LanguageGo = "go"

// Parser extracts declaration metadata from source files. It holds no
// mutable state and is safe for concurrent use.
type Parser struct {
	byExt map[string]*language
}

// New creates a new Parser instance
func New() *Parser {
	byExt := make(map[string]*language)
	for _, lang := range languages {
		for _, ext := range lang.extensions {
			byExt[ext] = lang
		}
	}
	return &Parser{byExt: byExt}
}

// Language returns the language name for path, or "" when the extension is
// not recognized
func (p *Parser) Language(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".go" {
		return LanguageGo
	}
	if lang, ok := p.byExt[ext]; ok {
		return lang.name
	}
	return ""
}

// Supported reports whether path has a recognized extension
func (p *Parser) Supported(path string) bool {
	return p.Language(path) != ""
}

// ParseFile reads and parses a source file
func (p *Parser) ParseFile(filePath string) (*types.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(filePath, content), nil
}

// Parse extracts metadata from content. Syntax errors are recorded on the
// result; whatever could be extracted is still returned.
func (p *Parser) Parse(filePath string, content []byte) *types.ParseResult {
	if p.Language(filePath) == LanguageGo {
		return parseGo(filePath, content)
	}
	lang, ok := p.byExt[strings.ToLower(filepath.Ext(filePath))]
	if !ok {
		return &types.ParseResult{}
	}
	return lang.scan(content)
}

// parseGo extracts package, imports and top-level declarations from Go source
func parseGo(filePath string, content []byte) *types.ParseResult {
	result := &types.ParseResult{Language: LanguageGo}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.SkipObjectResolution)
	if err != nil {
		// Syntax errors are non-fatal; parser.ParseFile may return a partial AST
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}
	for _, imp := range file.Imports {
		result.Imports = append(result.Imports, strings.Trim(imp.Path.Value, `"`))
	}

	e := &symbolExtractor{fset: fset}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					e.extractTypeSpec(ts)
				}
			}
		}
	}
	result.Symbols = e.symbols
	return result
}

// symbolExtractor collects top-level Go declarations
type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

// extractFunction extracts function and method declarations
func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:      funcDecl.Name.Name,
		Kind:      types.KindFunction,
		Scope:     scopeOf(funcDecl.Name.Name),
		Signature: e.functionSignature(funcDecl),
		Start:     e.position(funcDecl.Pos()),
		End:       e.position(funcDecl.End()),
	}

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverType(funcDecl.Recv.List[0].Type)
	}

	e.symbols = append(e.symbols, sym)
}

// extractTypeSpec extracts struct, interface and named type declarations
func (e *symbolExtractor) extractTypeSpec(typeSpec *ast.TypeSpec) {
	sym := types.Symbol{
		Name:  typeSpec.Name.Name,
		Kind:  types.KindType,
		Scope: scopeOf(typeSpec.Name.Name),
		Start: e.position(typeSpec.Pos()),
		End:   e.position(typeSpec.End()),
	}

	switch typeSpec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct", sym.Name)
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface", sym.Name)
	default:
		sym.Signature = fmt.Sprintf("type %s %s", sym.Name, exprToString(typeSpec.Type))
	}

	e.symbols = append(e.symbols, sym)
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// functionSignature builds a function signature string
func (e *symbolExtractor) functionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(funcDecl.Name.Name)

	sig.WriteString("(")
	sig.WriteString(fieldListToString(funcDecl.Type.Params))
	sig.WriteString(")")

	if results := funcDecl.Type.Results; results != nil && len(results.List) > 0 {
		if results.NumFields() > 1 {
			sig.WriteString(" (" + fieldListToString(results) + ")")
		} else {
			sig.WriteString(" " + fieldListToString(results))
		}
	}

	return sig.String()
}

// fieldListToString converts a field list to a string representation
func fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

// exprToString renders a type expression
func exprToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	default:
		return "..."
	}
}

func scopeOf(name string) types.SymbolScope {
	if token.IsExported(name) {
		return types.ScopeExported
	}
	return types.ScopeUnexported
}

func (e *symbolExtractor) position(pos token.Pos) types.Position {
	position := e.fset.Position(pos)
	return types.Position{
		Line:   position.Line,
		Column: position.Column,
	}
}
