package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory is the in-process L1 level: an LRU bounded by entry count and by
// total value bytes
type Memory struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, *Entry]
	maxBytes   int64
	bytes      atomic.Int64
	defaultTTL time.Duration
	stats      *counters
	now        func() time.Time
}

// NewMemory creates an L1 level. maxBytes <= 0 disables the byte cap.
func NewMemory(maxEntries int, maxBytes int64, defaultTTL time.Duration, stats *counters) (*Memory, error) {
	if stats == nil {
		stats = &counters{}
	}
	m := &Memory{
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
		stats:      stats,
		now:        time.Now,
	}

	// The callback fires for capacity evictions and explicit removals alike;
	// it only keeps the byte total in step with the LRU contents
	cache, err := lru.NewWithEvict[string, *Entry](maxEntries, func(_ string, e *Entry) {
		m.bytes.Add(-e.SizeBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}
	m.lru = cache
	return m, nil
}

// Get returns a copy of the live entry for key. Expired entries are removed
// and reported as a miss.
func (m *Memory) Get(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	now := m.now()
	if e.Expired(now) {
		m.lru.Remove(key)
		m.stats.expirations.Add(1)
		return nil, false
	}
	e.LastAccessed = now
	e.AccessCount++
	return e.clone(), true
}

// Set stores a copy of e. An entry without expiry picks up the level's
// default TTL.
func (m *Memory) Set(e *Entry) {
	e = e.clone()
	now := m.now()
	if e.ExpiresAt == nil && m.defaultTTL > 0 {
		e.setTTL(m.defaultTTL, now)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.lru.Peek(e.Key); ok {
		m.bytes.Add(-old.SizeBytes)
	}
	m.bytes.Add(e.SizeBytes)
	if m.lru.Add(e.Key, e) {
		m.stats.evictions.Add(1)
	}

	for m.maxBytes > 0 && m.bytes.Load() > m.maxBytes && m.lru.Len() > 0 {
		if _, _, ok := m.lru.RemoveOldest(); !ok {
			break
		}
		m.stats.evictions.Add(1)
	}
}

// Remove deletes key and reports whether it was present
func (m *Memory) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Remove(key)
}

// Keys returns the cached keys, oldest first
func (m *Memory) Keys() []string {
	return m.lru.Keys()
}

// PurgeExpired drops every expired entry and returns how many were removed
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, key := range m.lru.Keys() {
		e, ok := m.lru.Peek(key)
		if ok && e.Expired(now) {
			m.lru.Remove(key)
			removed++
		}
	}
	m.stats.expirations.Add(int64(removed))
	return removed
}

// Clear removes every entry
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Purge()
	m.bytes.Store(0)
}

// Len returns the number of entries
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Bytes returns the total size of cached entries
func (m *Memory) Bytes() int64 {
	return m.bytes.Load()
}
