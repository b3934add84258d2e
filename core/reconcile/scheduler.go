package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers passes on a fixed interval while the controller is idle.
// Ticks that arrive while a pass is running are dropped.
type Scheduler struct {
	run    func(ctx context.Context) error
	ready  func() bool
	logger func() *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval time.Duration
	loops    sync.WaitGroup
	passes   sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. ready reports whether a pass may start.
func NewScheduler(run func(ctx context.Context) error, ready func() bool, logger func() *zap.Logger) *Scheduler {
	return &Scheduler{run: run, ready: ready, logger: logger}
}

// Start begins ticking every interval, replacing any running timer.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return &ConfigurationError{Field: "syncInterval", Reason: "must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.interval = interval
	s.loops.Add(1)
	go s.loop(ctx, interval)

	s.logger().Info("Background sync started", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the timer. It never cancels a pass in flight and is safe to call in any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked() {
		s.logger().Info("Background sync stopped")
	}
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.interval = 0
	return true
}

// Running reports whether the timer is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Interval returns the active interval, zero when stopped.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Wait blocks until every stopped timer loop and every pass it triggered have returned.
func (s *Scheduler) Wait() {
	s.loops.Wait()
	s.passes.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.ready() {
				s.logger().Debug("Skipping scheduled sync, pass already running")
				continue
			}
			s.passes.Add(1)
			go func() {
				defer s.passes.Done()
				// Stopping the scheduler must not cancel the pass it started.
				err := s.run(context.WithoutCancel(ctx))
				if err != nil && !errors.Is(err, ErrSyncInProgress) {
					s.logger().Warn("Scheduled sync failed", zap.Error(err))
				}
			}()
		}
	}
}
