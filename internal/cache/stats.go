package cache

import "sync/atomic"

// Stats is a point-in-time view of cache activity. Counters are cumulative
// since the cache was created or last cleared.
type Stats struct {
	L1Hits      int64 `json:"l1_hits"`
	L1Misses    int64 `json:"l1_misses"`
	L2Hits      int64 `json:"l2_hits"`
	L2Misses    int64 `json:"l2_misses"`
	L1Entries   int64 `json:"l1_entries"`
	L2Entries   int64 `json:"l2_entries"`
	L1Bytes     int64 `json:"l1_bytes"`
	L2Bytes     int64 `json:"l2_bytes"`
	Evictions   int64 `json:"evictions"`
	Promotions  int64 `json:"promotions"`
	Warmups     int64 `json:"warmups"`
	Expirations int64 `json:"expirations"`
	Errors      int64 `json:"errors"`
}

// HitRate returns the fraction of lookups answered by either level
func (s Stats) HitRate() float64 {
	hits := s.L1Hits + s.L2Hits
	// every L2 lookup follows an L1 miss
	total := s.L1Hits + s.L1Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// counters are shared by both levels and updated without locks
type counters struct {
	l1Hits      atomic.Int64
	l1Misses    atomic.Int64
	l2Hits      atomic.Int64
	l2Misses    atomic.Int64
	evictions   atomic.Int64
	promotions  atomic.Int64
	warmups     atomic.Int64
	expirations atomic.Int64
	errors      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		L1Hits:      c.l1Hits.Load(),
		L1Misses:    c.l1Misses.Load(),
		L2Hits:      c.l2Hits.Load(),
		L2Misses:    c.l2Misses.Load(),
		Evictions:   c.evictions.Load(),
		Promotions:  c.promotions.Load(),
		Warmups:     c.warmups.Load(),
		Expirations: c.expirations.Load(),
		Errors:      c.errors.Load(),
	}
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.l1Hits, &c.l1Misses, &c.l2Hits, &c.l2Misses, &c.evictions,
		&c.promotions, &c.warmups, &c.expirations, &c.errors,
	} {
		v.Store(0)
	}
}
