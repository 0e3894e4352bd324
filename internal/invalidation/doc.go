// Package invalidation tracks which cache keys depend on which files, records
// and workspaces, and removes those keys when a source changes.
//
// Three strategies are available and can be switched at runtime:
//
//	immediate  remove dependent keys when the change is reported
//	delayed    queue keys and remove them in one batch per window
//	lazy       mark keys stale and remove them on the next Check
//
// A workspace change also invalidates every key registered against a file
// inside that workspace.
package invalidation
