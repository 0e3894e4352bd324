package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBatchWindow is how long the delayed strategy collects keys
const DefaultBatchWindow = 2 * time.Second

// ErrUnknownStrategy is returned for unrecognized strategy names
var ErrUnknownStrategy = errors.New("unknown invalidation strategy")

// Strategy controls when dependent cache keys are removed
type Strategy string

const (
	// Immediate removes keys as soon as a change is reported
	Immediate Strategy = "immediate"
	// Delayed queues keys and removes them in one batch per window
	Delayed Strategy = "delayed"
	// Lazy marks keys stale; they are removed on their next Check
	Lazy Strategy = "lazy"
)

// ParseStrategy converts a configured name into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(name)); s {
	case Immediate, Delayed, Lazy:
		return s, nil
	case "":
		return Immediate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// EventKind identifies what changed
type EventKind int

const (
	FileChanged EventKind = iota
	RecordChanged
	WorkspaceChanged
)

func (k EventKind) String() string {
	switch k {
	case FileChanged:
		return "file"
	case RecordChanged:
		return "record"
	case WorkspaceChanged:
		return "workspace"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports one change. Path holds the file or workspace root.
type Event struct {
	Kind     EventKind
	Path     string
	RecordID int64
}

// Dependencies lists what a cached value was computed from
type Dependencies struct {
	Files      []string
	Records    []int64
	Workspaces []string
}

// Remover deletes a key from the cache
type Remover interface {
	Remove(key string) bool
}

// Options configures the service
type Options struct {
	Strategy    Strategy
	BatchWindow time.Duration
}

// Stats summarizes the dependency tracker
type Stats struct {
	Registered  int   `json:"registered"`
	Invalidated int64 `json:"invalidated"`
	Pending     int   `json:"pending"`
}

type keySet map[string]struct{}

func (ks keySet) add(key string) { ks[key] = struct{}{} }

// sources is what one key depends on, without duplicates
type sources struct {
	files      map[string]struct{}
	records    map[int64]struct{}
	workspaces map[string]struct{}
}

func newSources() *sources {
	return &sources{
		files:      make(map[string]struct{}),
		records:    make(map[int64]struct{}),
		workspaces: make(map[string]struct{}),
	}
}

// Service maps files, records and workspaces to the cache keys that depend on
// them and removes those keys when the source changes
type Service struct {
	remover Remover
	window  time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	strategy   Strategy
	files      map[string]keySet
	records    map[int64]keySet
	workspaces map[string]keySet
	deps       map[string]*sources
	pending    keySet
	stale      keySet
	timer      *time.Timer
	closed     bool

	invalidated atomic.Int64
	epoch       atomic.Uint64
}

// New creates an invalidation service that removes keys through remover
func New(remover Remover, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = DefaultBatchWindow
	}
	if opts.Strategy == "" {
		opts.Strategy = Immediate
	}
	return &Service{
		remover:    remover,
		window:     opts.BatchWindow,
		logger:     logger,
		strategy:   opts.Strategy,
		files:      make(map[string]keySet),
		records:    make(map[int64]keySet),
		workspaces: make(map[string]keySet),
		deps:       make(map[string]*sources),
		pending:    make(keySet),
		stale:      make(keySet),
	}
}

// Register records that key depends on deps. Registering a key again adds
// to its existing dependencies.
func (s *Service) Register(key string, deps Dependencies) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.deps[key]
	if !ok {
		existing = newSources()
		s.deps[key] = existing
	}
	for _, f := range deps.Files {
		f = cleanPath(f)
		index(s.files, f, key)
		existing.files[f] = struct{}{}
	}
	for _, id := range deps.Records {
		index(s.records, id, key)
		existing.records[id] = struct{}{}
	}
	for _, w := range deps.Workspaces {
		w = cleanPath(w)
		index(s.workspaces, w, key)
		existing.workspaces[w] = struct{}{}
	}

	// A fresh registration supersedes a stale mark from an earlier value
	delete(s.stale, key)
}

func index[K comparable](m map[K]keySet, k K, key string) {
	set, ok := m[k]
	if !ok {
		set = make(keySet)
		m[k] = set
	}
	set.add(key)
}

func cleanPath(p string) string {
	if p == "" {
		return p
	}
	return filepath.Clean(p)
}

// OnFileChanged invalidates every key depending on path
func (s *Service) OnFileChanged(ctx context.Context, path string) error {
	return s.Invalidate(ctx, Event{Kind: FileChanged, Path: path})
}

// OnRecordChanged invalidates every key depending on record id
func (s *Service) OnRecordChanged(ctx context.Context, id int64) error {
	return s.Invalidate(ctx, Event{Kind: RecordChanged, RecordID: id})
}

// OnWorkspaceChanged invalidates every key depending on root or on any file
// beneath it
func (s *Service) OnWorkspaceChanged(ctx context.Context, root string) error {
	return s.Invalidate(ctx, Event{Kind: WorkspaceChanged, Path: root})
}

// Invalidate applies ev using the current strategy
func (s *Service) Invalidate(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.epoch.Add(1)
	keys := s.resolveLocked(ev)
	if len(keys) == 0 {
		s.mu.Unlock()
		return nil
	}

	switch s.strategy {
	case Delayed:
		for key := range keys {
			s.pending.add(key)
		}
		s.scheduleLocked()
		s.mu.Unlock()
		return nil
	case Lazy:
		for key := range keys {
			s.stale.add(key)
		}
		s.mu.Unlock()
		return nil
	}

	for key := range keys {
		s.unregisterLocked(key)
	}
	s.mu.Unlock()

	s.remove(keys)
	s.logger.Debug("invalidated cache keys", "kind", ev.Kind.String(), "path", ev.Path, "record", ev.RecordID, "keys", len(keys))
	return nil
}

func (s *Service) resolveLocked(ev Event) keySet {
	keys := make(keySet)
	collect := func(set keySet) {
		for key := range set {
			keys.add(key)
		}
	}

	switch ev.Kind {
	case FileChanged:
		collect(s.files[cleanPath(ev.Path)])
	case RecordChanged:
		collect(s.records[ev.RecordID])
	case WorkspaceChanged:
		root := cleanPath(ev.Path)
		collect(s.workspaces[root])
		for path, set := range s.files {
			if underRoot(path, root) {
				collect(set)
			}
		}
	}
	return keys
}

// underRoot matches root itself and paths below it, never siblings that
// merely share a prefix such as /repo-old for /repo
func underRoot(path, root string) bool {
	if root == "" {
		return false
	}
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// unregisterLocked drops key from every mapping
func (s *Service) unregisterLocked(key string) {
	deps, ok := s.deps[key]
	if !ok {
		return
	}
	delete(s.deps, key)
	for f := range deps.files {
		unindex(s.files, f, key)
	}
	for id := range deps.records {
		unindex(s.records, id, key)
	}
	for w := range deps.workspaces {
		unindex(s.workspaces, w, key)
	}
	delete(s.pending, key)
	delete(s.stale, key)
}

func unindex[K comparable](m map[K]keySet, k K, key string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(m, k)
	}
}

func (s *Service) remove(keys keySet) {
	for key := range keys {
		if s.remover != nil {
			s.remover.Remove(key)
		}
		s.invalidated.Add(1)
	}
}

func (s *Service) scheduleLocked() {
	if s.timer != nil || s.closed {
		return
	}
	s.timer = time.AfterFunc(s.window, func() {
		s.Flush()
	})
}

// Flush removes every key queued by the delayed strategy
func (s *Service) Flush() int {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	keys := s.pending
	s.pending = make(keySet)
	for key := range keys {
		s.unregisterLocked(key)
	}
	s.mu.Unlock()

	s.remove(keys)
	if len(keys) > 0 {
		s.logger.Debug("flushed delayed invalidations", "keys", len(keys))
	}
	return len(keys)
}

// Check reports whether key was marked stale by the lazy strategy. A stale
// key is removed from the cache before Check returns.
func (s *Service) Check(key string) bool {
	s.mu.Lock()
	if _, ok := s.stale[key]; !ok {
		s.mu.Unlock()
		return false
	}
	s.unregisterLocked(key)
	s.mu.Unlock()

	s.remove(keySet{key: {}})
	return true
}

// SetStrategy switches strategy at runtime. Keys queued or marked under the
// previous strategy are removed immediately.
func (s *Service) SetStrategy(strategy Strategy) error {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.strategy
	s.strategy = strategy
	stale := s.stale
	if prev == Lazy && strategy != Lazy {
		s.stale = make(keySet)
		for key := range stale {
			s.unregisterLocked(key)
		}
	} else {
		stale = nil
	}
	s.mu.Unlock()

	if prev == Delayed && strategy != Delayed {
		s.Flush()
	}
	s.remove(stale)
	return nil
}

// Dependencies returns what key is registered against
func (s *Service) Dependencies(key string) (Dependencies, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.deps[key]
	if !ok {
		return Dependencies{}, false
	}
	var deps Dependencies
	for f := range src.files {
		deps.Files = append(deps.Files, f)
	}
	for id := range src.records {
		deps.Records = append(deps.Records, id)
	}
	for w := range src.workspaces {
		deps.Workspaces = append(deps.Workspaces, w)
	}
	sort.Strings(deps.Files)
	sort.Slice(deps.Records, func(i, j int) bool { return deps.Records[i] < deps.Records[j] })
	sort.Strings(deps.Workspaces)
	return deps, true
}

// Epoch counts the change events seen so far, including events that matched
// no registered key. A value computed while the epoch moved may predate a
// change and should not be cached.
func (s *Service) Epoch() uint64 {
	return s.epoch.Load()
}

// Strategy returns the active strategy
func (s *Service) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// Keys returns every registered key
func (s *Service) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.deps))
	for key := range s.deps {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns the tracker counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Registered:  len(s.deps),
		Invalidated: s.invalidated.Load(),
		Pending:     len(s.pending) + len(s.stale),
	}
}

// Close flushes queued invalidations and stops the batch timer
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
	return nil
}
