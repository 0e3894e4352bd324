// Package analysis converts source text and query strings into token streams
// that preserve code syntax.
//
// The same Analyzer must be used when documents are indexed and when queries
// are parsed. Any difference between the two token streams silently loses
// recall, so the query chain is the content chain (FieldQuery == FieldContent).
//
// # Tokenizer
//
// A naive word splitter destroys most of what makes code searchable. The
// tokenizer keeps these constructs as single tokens:
//
//	std::vector          qualified name (::, . and ->)
//	List<Map<K, V>>      generic type, nested angle brackets tracked by depth
//	name: string         type annotation, stored as ":string"
//	@Override [HttpGet]  annotations and bracketed attributes
//	>>= === ?. :=        multi-character operators, longest match first
//
// # Filters
//
// The split filter emits the untouched token first and its sub-words after it
// at position increment 0:
//
//	UserService     -> UserService, User, Service
//	XMLParser       -> XMLParser, XML, Parser
//	OAuth2Provider  -> OAuth2Provider, OAuth, 2, Provider
//	user_service    -> user_service, user, service
//
// The length filter removes short tokens but never operators or annotations.
//
// # Fields
//
//	content   split + MinLength (default 1)
//	symbols   always split, minimum length 2
//	patterns  whitespace split only, e.g. ": ITool" stays [":", "ITool"]
package analysis
