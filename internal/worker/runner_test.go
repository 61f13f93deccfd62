package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRunner(t *testing.T, r *Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestTriggerRunsJob(t *testing.T) {
	r := NewRunner(zap.NewNop())
	var runs atomic.Int32
	r.Register(JobPublish, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	startRunner(t, r)

	require.NoError(t, r.Trigger(JobPublish))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, r.Trigger("nope"), ErrUnknownJob)
}

func TestIntervalRunsRepeatedly(t *testing.T) {
	r := NewRunner(zap.NewNop())
	var runs atomic.Int32
	r.Register(JobSyncAll, 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("peer offline")
	})
	startRunner(t, r)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestOneRunAtATime(t *testing.T) {
	r := NewRunner(zap.NewNop())
	var (
		running atomic.Int32
		maxSeen atomic.Int32
		runs    atomic.Int32
	)
	release := make(chan struct{})
	r.Register(JobBackup, 0, func(ctx context.Context) error {
		n := running.Add(1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		<-release
		running.Add(-1)
		runs.Add(1)
		return nil
	})
	startRunner(t, r)

	require.NoError(t, r.Trigger(JobBackup))
	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Triggers while running coalesce into one more run
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Trigger(JobBackup))
	}
	close(release)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestPanickingJobKeepsRunnerAlive(t *testing.T) {
	r := NewRunner(zap.NewNop())
	var runs atomic.Int32
	r.Register(JobPublish, 0, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	startRunner(t, r)

	require.NoError(t, r.Trigger(JobPublish))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		r.Trigger(JobPublish)
		return runs.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewRunner(zap.NewNop())
	r.Register(JobPublish, time.Hour, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
