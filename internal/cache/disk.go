package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	fileSuffix = ".cache"
	tempSuffix = ".tmp"

	// evictTarget is the fraction of MaxBytes kept after cap enforcement
	evictTarget = 0.8

	defaultWriteConcurrency = 10
)

// DiskOptions configures the L2 level
type DiskOptions struct {
	Dir              string
	MaxBytes         int64 // <= 0 disables the cap
	DefaultTTL       time.Duration
	WriteConcurrency int64
}

// diskMeta is the in-memory index record for one cache file
type diskMeta struct {
	file         string
	size         int64
	lastAccessed time.Time
	expiresAt    *time.Time
}

// Disk is the persistent L2 level: one JSON file per key
type Disk struct {
	opts   DiskOptions
	sem    *semaphore.Weighted
	logger *slog.Logger
	stats  *counters
	now    func() time.Time

	mu    sync.RWMutex
	index map[string]*diskMeta
	bytes int64
}

// OpenDisk opens or creates the cache directory and rebuilds the key index
// from the files found in it
func OpenDisk(opts DiskOptions, stats *counters, logger *slog.Logger) (*Disk, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = defaultWriteConcurrency
	}
	if stats == nil {
		stats = &counters{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &Disk{
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.WriteConcurrency),
		logger: logger,
		stats:  stats,
		now:    time.Now,
		index:  make(map[string]*diskMeta),
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// FileName returns the cache file name for key
func FileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + fileSuffix
}

// scan rebuilds the index. Corrupt files and leftover temp files are removed.
func (d *Disk) scan() error {
	entries, err := os.ReadDir(d.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = make(map[string]*diskMeta, len(entries))
	d.bytes = 0

	for _, de := range entries {
		name := de.Name()
		path := filepath.Join(d.opts.Dir, name)
		if strings.HasSuffix(name, tempSuffix) {
			_ = os.Remove(path)
			continue
		}
		if de.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}

		e, err := readEntry(path)
		if err == nil && FileName(e.Key) != name {
			err = fmt.Errorf("file name does not match key %q", e.Key)
		}
		if err != nil {
			d.logger.Warn("removing corrupt cache file", "file", name, "error", err)
			d.stats.errors.Add(1)
			_ = os.Remove(path)
			continue
		}

		size := fileSize(de, e)
		d.index[e.Key] = &diskMeta{
			file:         name,
			size:         size,
			lastAccessed: e.LastAccessed,
			expiresAt:    e.ExpiresAt,
		}
		d.bytes += size
	}
	return nil
}

func fileSize(de os.DirEntry, e *Entry) int64 {
	if info, err := de.Info(); err == nil {
		return info.Size()
	}
	return e.SizeBytes
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Key == "" {
		return nil, errors.New("cache file has no key")
	}
	return &e, nil
}

// Get reads the entry for key. Missing, corrupt and expired files are misses.
func (d *Disk) Get(_ context.Context, key string) (*Entry, bool) {
	d.mu.RLock()
	meta, ok := d.index[key]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := d.now()
	if meta.expiresAt != nil && !now.Before(*meta.expiresAt) {
		d.Remove(key)
		d.stats.expirations.Add(1)
		return nil, false
	}

	e, err := readEntry(filepath.Join(d.opts.Dir, meta.file))
	if err != nil || e.Key != key {
		if err == nil {
			err = fmt.Errorf("cache file holds key %q", e.Key)
		}
		d.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		d.stats.errors.Add(1)
		d.Remove(key)
		return nil, false
	}

	d.mu.Lock()
	meta.lastAccessed = now
	d.mu.Unlock()

	e.LastAccessed = now
	e.AccessCount++
	return e, true
}

// Set writes e to disk atomically, then enforces the size cap
func (d *Disk) Set(ctx context.Context, e *Entry) error {
	if e.ExpiresAt == nil && d.opts.DefaultTTL > 0 {
		e = e.clone()
		e.setTTL(d.opts.DefaultTTL, d.now())
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	name := FileName(e.Key)
	if err := writeFileAtomic(d.opts.Dir, name, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	d.mu.Lock()
	if old, ok := d.index[e.Key]; ok {
		d.bytes -= old.size
	}
	d.index[e.Key] = &diskMeta{
		file:         name,
		size:         int64(len(data)),
		lastAccessed: e.LastAccessed,
		expiresAt:    e.ExpiresAt,
	}
	d.bytes += int64(len(data))
	d.mu.Unlock()

	d.enforceCap()
	return nil
}

func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*"+tempSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// enforceCap evicts least recently accessed entries until usage is at most
// 80% of MaxBytes
func (d *Disk) enforceCap() {
	if d.opts.MaxBytes <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bytes <= d.opts.MaxBytes {
		return
	}

	type candidate struct {
		key  string
		meta *diskMeta
	}
	candidates := make([]candidate, 0, len(d.index))
	for key, meta := range d.index {
		candidates = append(candidates, candidate{key, meta})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].meta.lastAccessed.Before(candidates[j].meta.lastAccessed)
	})

	target := int64(float64(d.opts.MaxBytes) * evictTarget)
	for _, c := range candidates {
		if d.bytes <= target {
			break
		}
		d.removeLocked(c.key)
		d.stats.evictions.Add(1)
	}
}

// Remove deletes the file for key and reports whether it was indexed
func (d *Disk) Remove(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(key)
}

func (d *Disk) removeLocked(key string) bool {
	meta, ok := d.index[key]
	if !ok {
		return false
	}
	delete(d.index, key)
	d.bytes -= meta.size
	if err := os.Remove(filepath.Join(d.opts.Dir, meta.file)); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove cache file", "key", key, "error", err)
		d.stats.errors.Add(1)
	}
	return true
}

// Keys returns every indexed key
func (d *Disk) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.index))
	for key := range d.index {
		keys = append(keys, key)
	}
	return keys
}

// Sweep removes expired entries, drops index records whose files vanished and
// recomputes disk usage. It returns the number of expired entries removed.
func (d *Disk) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	var usage int64
	for key, meta := range d.index {
		if meta.expiresAt != nil && !now.Before(*meta.expiresAt) {
			d.removeLocked(key)
			removed++
			continue
		}
		info, err := os.Stat(filepath.Join(d.opts.Dir, meta.file))
		if err != nil {
			delete(d.index, key)
			continue
		}
		meta.size = info.Size()
		usage += meta.size
	}
	d.bytes = usage
	d.stats.expirations.Add(int64(removed))
	return removed
}

// Clear deletes every cache file
func (d *Disk) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.index {
		d.removeLocked(key)
	}
	d.bytes = 0
}

// Len returns the number of indexed entries
func (d *Disk) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

// Bytes returns the tracked disk usage
func (d *Disk) Bytes() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bytes
}
