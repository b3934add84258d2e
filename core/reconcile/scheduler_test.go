package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestScheduler_RunsWhileIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	s := NewScheduler(func(context.Context) error {
		runs.Add(1)
		return nil
	}, func() bool { return true }, nopLogger)

	require.NoError(t, s.Start(10*time.Millisecond))
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Wait()
	assert.False(t, s.Running())
}

func TestScheduler_SkipsTicksWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	running := false
	var started atomic.Int32
	release := make(chan struct{})

	s := NewScheduler(func(context.Context) error {
		mu.Lock()
		if running {
			mu.Unlock()
			return ErrSyncInProgress
		}
		running = true
		mu.Unlock()
		started.Add(1)
		<-release
		mu.Lock()
		running = false
		mu.Unlock()
		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !running
	}, nopLogger)

	require.NoError(t, s.Start(5*time.Millisecond))
	assert.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	// Several ticks elapse while the pass is blocked.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	s.Stop()
	close(release)
	s.Wait()
}

func TestScheduler_StopDoesNotCancelPassInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var passErr atomic.Value

	var once sync.Once
	s := NewScheduler(func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		if err := ctx.Err(); err != nil {
			passErr.Store(err)
		}
		return nil
	}, func() bool { return true }, nopLogger)

	require.NoError(t, s.Start(5*time.Millisecond))
	<-entered
	s.Stop()
	close(release)
	s.Wait()

	assert.Nil(t, passErr.Load())
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(func(context.Context) error { return nil }, func() bool { return true }, nopLogger)

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})

	require.NoError(t, s.Start(time.Hour))
	require.NoError(t, s.Start(2*time.Hour))
	assert.Equal(t, 2*time.Hour, s.Interval())
	s.Stop()
	s.Stop()
	s.Wait()
	assert.Zero(t, s.Interval())
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(func(context.Context) error { return nil }, func() bool { return true }, nopLogger)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, s.Start(0), &cfgErr)
	assert.False(t, s.Running())
}
