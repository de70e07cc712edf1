package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runScheduler starts s in the background and returns a stop function that
// cancels it and waits for Run to return.
func runScheduler(t *testing.T, s *Scheduler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func TestRunsImmediatelyAtStart(t *testing.T) {
	var runs atomic.Int64
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "settle", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	st := s.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, int64(1), st[0].Runs)
	assert.False(t, st[0].LastFinish.IsZero())
}

func TestRepeatsOnInterval(t *testing.T) {
	var runs atomic.Int64
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "provision", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	var (
		active, maxActive atomic.Int64
		runs              atomic.Int64
	)
	release := make(chan struct{})
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "settle", Interval: 2 * time.Millisecond, Run: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return s.Statuses()[0].Skipped >= 3 }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, int64(1), runs.Load(), "skipped ticks must not queue passes")
	assert.True(t, s.Statuses()[0].Running)

	close(release)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 2*time.Millisecond)
	stop()

	assert.Equal(t, int64(1), maxActive.Load())
}

func TestTasksRunIndependently(t *testing.T) {
	block := make(chan struct{})
	var settleRuns atomic.Int64
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "provision", Interval: time.Hour, Run: func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}}))
	require.NoError(t, s.Add(Task{Name: "settle", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		settleRuns.Add(1)
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return settleRuns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	close(block)
	stop()
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "settle", Interval: time.Hour, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}}))

	stop := runScheduler(t, s)
	<-started
	stop()
	assert.True(t, finished.Load())
}

type fakeLocks struct {
	mu       sync.Mutex
	held     bool
	err      error
	keys     []string
	unlocked int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked++
	}, nil
}

func TestPassTakesAndReleasesLock(t *testing.T) {
	locks := &fakeLocks{}
	var runs atomic.Int64
	s := New(discardLogger(), WithLockManager(locks, time.Minute))
	require.NoError(t, s.Add(Task{Name: "provision", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Equal(t, []string{"provision"}, locks.keys)
	assert.Equal(t, 1, locks.unlocked)
}

func TestPassSkippedWhenLockUnavailable(t *testing.T) {
	for _, locks := range []*fakeLocks{{held: true}, {err: errors.New("redis down")}} {
		var runs atomic.Int64
		s := New(discardLogger(), WithLockManager(locks, time.Minute))
		require.NoError(t, s.Add(Task{Name: "settle", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}))

		stop := runScheduler(t, s)
		require.Eventually(t, func() bool { return s.Statuses()[0].Skipped >= 2 }, 2*time.Second, 5*time.Millisecond)
		stop()
		assert.Zero(t, runs.Load())
	}
}

func TestLockedPassBoundedByLockTTL(t *testing.T) {
	alerts := &recAlerts{}
	s := New(discardLogger(), WithLockManager(&fakeLocks{}, 30*time.Millisecond), WithAlerter(alerts))
	var hadDeadline atomic.Bool
	require.NoError(t, s.Add(Task{Name: "settle", Interval: time.Hour, Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		<-ctx.Done()
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool {
		alerts.mu.Lock()
		defer alerts.mu.Unlock()
		return len(alerts.events) == 1
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, hadDeadline.Load())
	st := s.Statuses()[0]
	assert.Equal(t, int64(1), st.Runs)
	assert.Contains(t, st.LastError, "exceeded lock ttl")
	assert.Equal(t, []string{notify.EventPassAborted}, alerts.events)
}

func TestUnlockedPassHasNoDeadline(t *testing.T) {
	var hadDeadline atomic.Bool
	var runs atomic.Int64
	s := New(discardLogger())
	require.NoError(t, s.Add(Task{Name: "provision", Interval: time.Hour, Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		runs.Add(1)
		return nil
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop()
	assert.False(t, hadDeadline.Load())
}

type recAlerts struct {
	mu     sync.Mutex
	events []string
}

func (r *recAlerts) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestPassErrorIsRecordedAndAlerted(t *testing.T) {
	alerts := &recAlerts{}
	s := New(discardLogger(), WithAlerter(alerts))
	require.NoError(t, s.Add(Task{Name: "settle", Interval: time.Hour, Run: func(context.Context) error {
		return errors.New("database unreachable")
	}}))

	stop := runScheduler(t, s)
	require.Eventually(t, func() bool {
		alerts.mu.Lock()
		defer alerts.mu.Unlock()
		return len(alerts.events) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, "database unreachable", s.Statuses()[0].LastError)
	assert.Equal(t, int64(1), s.Statuses()[0].Runs)
	assert.Equal(t, []string{notify.EventPassAborted}, alerts.events)
}

func TestAddValidation(t *testing.T) {
	s := New(discardLogger())
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Task{Run: noop}))
	assert.Error(t, s.Add(Task{Name: "x"}))
	assert.Error(t, s.Add(Task{Name: "x", Interval: -time.Second, Run: noop}))
	require.NoError(t, s.Add(Task{Name: "x", Run: noop}))
	assert.Error(t, s.Add(Task{Name: "x", Run: noop}))

	assert.Equal(t, DefaultInterval.String(), s.Statuses()[0].Interval)
}

func TestRunWithoutTasks(t *testing.T) {
	assert.Error(t, New(discardLogger()).Run(context.Background()))
}
