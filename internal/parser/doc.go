// Package parser extracts declaration metadata from source files.
//
// Go files are parsed with go/parser. Other languages are read by a line
// scanner driven by a per-language table of regular expressions, which is
// enough to find type declarations, functions, imports and the package or
// namespace without a full grammar.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.ParseFile("/repo/src/UserService.java")
//	if err != nil {
//	    return err
//	}
//	result.TypeNames()                         // [UserService UserStatistics]
//	result.Definition("src/UserService.java")  // UserService
//
// # Supported Languages
//
// go, java, kotlin, scala, csharp, typescript, javascript, python, rust,
// cpp, c, swift, ruby and php. Files with other extensions produce an empty
// result.
//
// # Error Handling
//
// Syntax errors never fail a parse. They are recorded on the result and the
// declarations that could be read are still returned, so indexing continues
// over broken files.
package parser
