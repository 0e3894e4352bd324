package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/singleflight"
)

// ErrBadPattern is returned by RemoveByPattern for malformed glob patterns
var ErrBadPattern = errors.New("invalid cache key pattern")

// KeySource lists keys known outside the cache levels, such as the keys
// registered with the invalidation service
type KeySource interface {
	Keys() []string
}

// Options configures both cache levels
type Options struct {
	L1MaxEntries     int
	L1MaxBytes       int64
	L1TTL            time.Duration
	Dir              string // empty disables L2
	L2MaxBytes       int64
	L2TTL            time.Duration
	WriteConcurrency int64
	L1SweepInterval  time.Duration
	L2SweepInterval  time.Duration
}

// DefaultOptions returns the default cache sizing
func DefaultOptions() Options {
	return Options{
		L1MaxEntries:     1000,
		L1MaxBytes:       64 << 20,
		L1TTL:            15 * time.Minute,
		L2MaxBytes:       512 << 20,
		L2TTL:            24 * time.Hour,
		WriteConcurrency: defaultWriteConcurrency,
		L1SweepInterval:  time.Minute,
		L2SweepInterval:  10 * time.Minute,
	}
}

// MultiLevel is a write-through cache over a memory level and an optional
// disk level. Reads check L1, then L2, and promote L2 hits into L1.
type MultiLevel struct {
	l1      *Memory
	l2      *Disk
	stats   *counters
	group   singleflight.Group
	sweeper *Sweeper
	logger  *slog.Logger

	keySource KeySource
}

// New creates a multi-level cache
func New(opts Options, logger *slog.Logger) (*MultiLevel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.L1MaxEntries <= 0 {
		opts.L1MaxEntries = DefaultOptions().L1MaxEntries
	}

	stats := &counters{}
	l1, err := NewMemory(opts.L1MaxEntries, opts.L1MaxBytes, opts.L1TTL, stats)
	if err != nil {
		return nil, err
	}

	c := &MultiLevel{
		l1:     l1,
		stats:  stats,
		logger: logger,
	}

	if opts.Dir != "" {
		l2, err := OpenDisk(DiskOptions{
			Dir:              opts.Dir,
			MaxBytes:         opts.L2MaxBytes,
			DefaultTTL:       opts.L2TTL,
			WriteConcurrency: opts.WriteConcurrency,
		}, stats, logger)
		if err != nil {
			return nil, err
		}
		c.l2 = l2
	}

	c.sweeper = NewSweeper(c, opts.L1SweepInterval, opts.L2SweepInterval, logger)
	return c, nil
}

// SetKeySource adds an external key listing to pattern removal
func (c *MultiLevel) SetKeySource(ks KeySource) {
	c.keySource = ks
}

// Sweeper returns the background expiry sweeper
func (c *MultiLevel) Sweeper() *Sweeper {
	return c.sweeper
}

// Get decodes the cached value for key into out and reports whether it was
// found. Level failures are logged and treated as misses; the only error
// returned is the context's.
func (c *MultiLevel) Get(ctx context.Context, key string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if e, ok := c.l1.Get(key); ok {
		err := e.Decode(out)
		if err == nil {
			c.stats.l1Hits.Add(1)
			return true, nil
		}
		// L2 may still hold a good copy
		c.logger.Warn("discarding undecodable L1 entry", "key", key, "error", err)
		c.stats.errors.Add(1)
		c.l1.Remove(key)
	}
	c.stats.l1Misses.Add(1)

	if c.l2 == nil {
		return false, nil
	}

	e, ok := c.l2.Get(ctx, key)
	if !ok {
		c.stats.l2Misses.Add(1)
		return false, nil
	}
	if err := e.Decode(out); err != nil {
		c.decodeFailed(key, err)
		c.stats.l2Misses.Add(1)
		return false, nil
	}
	c.stats.l2Hits.Add(1)

	c.l1.Set(e)
	c.stats.promotions.Add(1)
	return true, nil
}

func (c *MultiLevel) decodeFailed(key string, err error) {
	c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
	c.stats.errors.Add(1)
	c.Remove(key)
}

// Set stores value in both levels. ttl <= 0 uses each level's default. Only
// a failure to encode value is returned; level write failures are logged.
func (c *MultiLevel) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	e, err := newEntry(key, value, ttl, time.Now())
	if err != nil {
		return err
	}
	c.setEntry(ctx, e)
	return nil
}

func (c *MultiLevel) setEntry(ctx context.Context, e *Entry) {
	c.l1.Set(e)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, e); err != nil {
		c.logger.Warn("L2 cache write failed", "key", e.Key, "error", err)
		c.stats.errors.Add(1)
	}
}

// Remove deletes key from both levels and reports whether either held it
func (c *MultiLevel) Remove(key string) bool {
	removed := c.l1.Remove(key)
	if c.l2 != nil && c.l2.Remove(key) {
		removed = true
	}
	return removed
}

// RemoveByPattern removes every key matching a doublestar glob such as
// "search:/repo/**". Candidates come from both levels and the key source.
func (c *MultiLevel) RemoveByPattern(pattern string) (int, error) {
	if !doublestar.ValidatePattern(pattern) {
		return 0, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}

	candidates := make(map[string]struct{})
	add := func(keys []string) {
		for _, k := range keys {
			candidates[k] = struct{}{}
		}
	}
	add(c.l1.Keys())
	if c.l2 != nil {
		add(c.l2.Keys())
	}
	if c.keySource != nil {
		add(c.keySource.Keys())
	}

	removed := 0
	for key := range candidates {
		match, err := doublestar.Match(pattern, key)
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrBadPattern, err)
		}
		if match && c.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// GetOrCompute returns the cached value for key, or runs compute once for all
// concurrent callers and caches its result. The shared computation is not
// cancelled with any single caller; each caller stops waiting when its own
// ctx is done.
func (c *MultiLevel) GetOrCompute(ctx context.Context, key string, out any, ttl time.Duration, compute func(context.Context) (any, error)) error {
	found, err := c.Get(ctx, key, out)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := compute(shared)
		if err != nil {
			return nil, err
		}
		e, err := newEntry(key, value, ttl, time.Now())
		if err != nil {
			return nil, err
		}
		c.setEntry(shared, e)
		return e.Value, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}

	if err := json.Unmarshal(res.Val.(json.RawMessage), out); err != nil {
		return fmt.Errorf("failed to decode computed value for %q: %w", key, err)
	}
	return nil
}

// RecordWarmup counts a cache entry seeded ahead of demand
func (c *MultiLevel) RecordWarmup() {
	c.stats.warmups.Add(1)
}

// PurgeExpired sweeps both levels once
func (c *MultiLevel) PurgeExpired() int {
	n := c.l1.PurgeExpired()
	if c.l2 != nil {
		n += c.l2.Sweep()
	}
	return n
}

// Stats returns counters and the current size of each level
func (c *MultiLevel) Stats() Stats {
	s := c.stats.snapshot()
	s.L1Entries = int64(c.l1.Len())
	s.L1Bytes = c.l1.Bytes()
	if c.l2 != nil {
		s.L2Entries = int64(c.l2.Len())
		s.L2Bytes = c.l2.Bytes()
	}
	return s
}

// Clear empties both levels and resets the counters
func (c *MultiLevel) Clear() {
	c.l1.Clear()
	if c.l2 != nil {
		c.l2.Clear()
	}
	c.stats.reset()
}

// Close stops background sweeping. Cached files stay on disk.
func (c *MultiLevel) Close() error {
	c.sweeper.Stop()
	return nil
}
