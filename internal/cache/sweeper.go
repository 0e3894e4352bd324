package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically removes expired entries. L1 and L2 run on independent
// tickers that are started and stopped together.
type Sweeper struct {
	cache      *MultiLevel
	l1Interval time.Duration
	l2Interval time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper; a non-positive interval disables that level's
// ticker
func NewSweeper(c *MultiLevel, l1Interval, l2Interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cache:      c,
		l1Interval: l1Interval,
		l2Interval: l2Interval,
		logger:     logger,
	}
}

// Start launches the tickers. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.l1Interval > 0 {
		s.run(ctx, s.l1Interval, func() {
			if n := s.cache.l1.PurgeExpired(); n > 0 {
				s.logger.Debug("L1 sweep", "expired", n)
			}
		})
	}
	if s.l2Interval > 0 && s.cache.l2 != nil {
		s.run(ctx, s.l2Interval, func() {
			if n := s.cache.l2.Sweep(); n > 0 {
				s.logger.Debug("L2 sweep", "expired", n, "bytes", s.cache.l2.Bytes())
			}
		})
	}
}

func (s *Sweeper) run(ctx context.Context, interval time.Duration, sweep func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}

// Stop cancels every ticker and waits for in-flight sweeps to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}
