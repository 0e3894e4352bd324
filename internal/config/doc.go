// Package config loads codesearch settings from YAML with environment
// overrides.
//
// Precedence, lowest first: built-in defaults, the YAML file, then the
// CODESEARCH_DB_PATH, CODESEARCH_CACHE_DIR and CODESEARCH_LOG_LEVEL
// variables. The file path is the argument to Load, else $CODESEARCH_CONFIG,
// else ~/.codesearch/config.yaml.
//
//	db_path: ~/.codesearch/codesearch.db
//	cache_dir: ~/.codesearch/cache   # "" disables the disk cache
//	lock_timeout: 30s
//	cache:
//	  l1_max_entries: 1000
//	  l1_ttl: 15m
//	  l2_max_bytes: 536870912
//	invalidation:
//	  strategy: immediate            # immediate, delayed or lazy
//	  batch_window: 2s
//	scoring:
//	  temporal: default              # default, aggressive or gentle
//	  weights:
//	    path_relevance: 1.0
//	    temporal: 0.5
//	indexer:
//	  include_tests: true
//	  exclude_patterns: ["**/generated/**"]
//	log:
//	  level: info
//	  format: text
package config
