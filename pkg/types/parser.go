package types

import (
	"path/filepath"
	"strings"
)

// ParseResult is the metadata extracted from one source file
type ParseResult struct {
	Language    string
	PackageName string // Go package, Java/Kotlin package or C# namespace
	Symbols     []Symbol
	Imports     []string

	// Errors encountered during parsing
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// TypeNames returns the distinct type names declared in the file, in
// declaration order
func (pr *ParseResult) TypeNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for i := range pr.Symbols {
		sym := &pr.Symbols[i]
		if !sym.IsType() {
			continue
		}
		if _, dup := seen[sym.Name]; dup {
			continue
		}
		seen[sym.Name] = struct{}{}
		names = append(names, sym.Name)
	}
	return names
}

// Definition picks the primary type of the file at path: the type named
// after the file (user_service.go names UserService), else the only type
// declared. It returns "" when the
// choice is ambiguous.
func (pr *ParseResult) Definition(path string) string {
	names := pr.TypeNames()
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", "", "-", "").Replace(stem)
	for _, name := range names {
		if strings.EqualFold(name, stem) {
			return name
		}
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}
