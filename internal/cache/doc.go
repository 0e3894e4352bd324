// Package cache provides the two-level result cache used by the searcher.
//
// L1 is an in-memory LRU bounded by entry count and bytes. L2 stores one JSON
// file per key under the cache directory, named by the SHA-256 of the key, and
// survives restarts. Writes go to both levels; reads promote L2 hits into L1.
//
// Values are serialized once on Set. Every Get decodes a fresh copy, so a
// caller mutating its result cannot affect other readers.
//
// Cache failures never fail a search: I/O and decode errors are logged,
// counted in Stats.Errors and reported as misses.
package cache
