package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrLockTimeout is returned when the timeout elapses before the lock is free
	ErrLockTimeout = errors.New("timed out waiting for lock")
	// ErrOperationCancelled is returned when the caller's context ends first
	ErrOperationCancelled = errors.New("lock acquisition cancelled")
	// ErrInvalidTimeout is returned for a zero or negative timeout
	ErrInvalidTimeout = errors.New("lock timeout must be positive")
	// ErrLockClosed is returned after Close
	ErrLockClosed = errors.New("lock is closed")
	// ErrAlreadyReleased is the panic value of a second Release
	ErrAlreadyReleased = errors.New("lease already released")
)

// Lock is a mutual exclusion guard whose acquisition always has a deadline.
// It replaces sync.Mutex where waiting forever is not acceptable, such as
// index commits racing cache warm-up.
type Lock struct {
	name   string
	sem    chan struct{}
	closed chan struct{}
	once   sync.Once
	held   atomic.Int32
}

// New creates an unlocked Lock. The name appears in error messages.
func New(name string) *Lock {
	return &Lock{
		name:   name,
		sem:    make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Name returns the lock name
func (l *Lock) Name() string {
	return l.name
}

// Acquire waits up to timeout for the lock
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %s got %v", ErrInvalidTimeout, l.name, timeout)
	}
	if l.isClosed() {
		return nil, fmt.Errorf("%w: %s", ErrLockClosed, l.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOperationCancelled, l.name, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return l.lease(), nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %v", ErrLockTimeout, l.name, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrOperationCancelled, l.name, ctx.Err())
	case <-l.closed:
		return nil, fmt.Errorf("%w: %s", ErrLockClosed, l.name)
	}
}

// TryAcquire takes the lock only if it is free right now
func (l *Lock) TryAcquire() (*Lease, bool) {
	if l.isClosed() {
		return nil, false
	}
	select {
	case l.sem <- struct{}{}:
		return l.lease(), true
	default:
		return nil, false
	}
}

// Held reports whether a lease is outstanding
func (l *Lock) Held() bool {
	return l.held.Load() == 1
}

// Close disposes the lock. Waiting and later acquisitions fail with
// ErrLockClosed; an outstanding lease can still be released.
func (l *Lock) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *Lock) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *Lock) lease() *Lease {
	l.held.Store(1)
	return &Lease{lock: l}
}

// Lease is proof of ownership. It must be released exactly once.
type Lease struct {
	lock     *Lock
	released atomic.Bool
}

// Release returns the lock. Releasing twice is a programming error and panics
// with ErrAlreadyReleased.
func (ls *Lease) Release() {
	if !ls.released.CompareAndSwap(false, true) {
		panic(ErrAlreadyReleased)
	}
	ls.lock.held.Store(0)
	<-ls.lock.sem
}

// IsRetryable reports whether err is a timeout worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
