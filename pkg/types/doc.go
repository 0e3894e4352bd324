// Package types provides shared type definitions for codesearch.
//
// Symbol and ParseResult carry the metadata extracted from a source file by
// internal/parser. The indexer stores TypeNames and Definition alongside each
// document so scoring can boost files that declare the queried type:
//
//	result, _ := p.ParseFile("src/UserService.java")
//	result.TypeNames()                          // [UserService UserStatistics]
//	result.Definition("src/UserService.java")   // UserService
//
// SearchResult is the ranked hit returned by the searcher. When explanation
// is requested it carries a ScoreExplanation with one FactorContribution per
// scoring factor.
package types
