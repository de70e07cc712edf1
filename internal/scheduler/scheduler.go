// Package scheduler drives the engine's periodic passes. Each task runs once
// at start and then on its own interval; a tick that lands while the previous
// pass of the same task is still running is skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/metrics"
	"github.com/alanyoungcy/boldengine/internal/notify"
)

// DefaultInterval is used by tasks registered without one.
const DefaultInterval = 10 * time.Second

const defaultLockTTL = 5 * time.Minute

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Alerter sends an operator alert. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Status is a point-in-time view of one task, for health reporting.
type Status struct {
	Name       string    `json:"name"`
	Interval   string    `json:"interval"`
	Running    bool      `json:"running"`
	Runs       int64     `json:"runs"`
	Skipped    int64     `json:"skipped"`
	LastStart  time.Time `json:"last_start,omitzero"`
	LastFinish time.Time `json:"last_finish,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

type taskState struct {
	Task
	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	mu         sync.Mutex
	lastStart  time.Time
	lastFinish time.Time
	lastErr    error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLockManager makes every pass first take a cross-instance lock named
// after its task. A pass whose lock is held elsewhere is skipped.
func WithLockManager(lm domain.LockManager, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locks = lm
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithMetrics records pass outcomes.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithAlerter sends a pass_aborted alert when a pass returns an error.
func WithAlerter(a Alerter) Option {
	return func(s *Scheduler) { s.alerts = a }
}

// Scheduler runs registered tasks until its context is cancelled.
type Scheduler struct {
	tasks   []*taskState
	locks   domain.LockManager
	lockTTL time.Duration
	metrics *metrics.Recorder
	alerts  Alerter
	logger  *slog.Logger

	started atomic.Bool
	passes  sync.WaitGroup
}

// New creates an empty Scheduler.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		lockTTL: defaultLockTTL,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. It must be called before Run.
func (s *Scheduler) Add(t Task) error {
	if s.started.Load() {
		return errors.New("scheduler: add after start")
	}
	if t.Name == "" {
		return errors.New("scheduler: task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("scheduler: task %s has no run function", t.Name)
	}
	if t.Interval < 0 {
		return fmt.Errorf("scheduler: task %s has negative interval %s", t.Name, t.Interval)
	}
	if t.Interval == 0 {
		t.Interval = DefaultInterval
	}
	for _, existing := range s.tasks {
		if existing.Name == t.Name {
			return fmt.Errorf("scheduler: duplicate task %s", t.Name)
		}
	}
	s.tasks = append(s.tasks, &taskState{Task: t})
	return nil
}

// Run starts every task and blocks until ctx is cancelled. In-flight passes
// see the cancelled context; Run waits for them to return before it does.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return errors.New("scheduler: no tasks registered")
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler: already running")
	}

	var loops sync.WaitGroup
	for _, t := range s.tasks {
		loops.Add(1)
		go func() {
			defer loops.Done()
			s.loop(ctx, t)
		}()
		s.logger.InfoContext(ctx, "task scheduled",
			slog.String("task", t.Name),
			slog.Duration("interval", t.Interval),
		)
	}

	loops.Wait()
	s.passes.Wait()
	s.logger.InfoContext(context.Background(), "scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *taskState) {
	s.trigger(ctx, t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, t)
		}
	}
}

// trigger starts a pass unless one is already running.
func (s *Scheduler) trigger(ctx context.Context, t *taskState) {
	if ctx.Err() != nil {
		return
	}
	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		s.metrics.ObservePass(t.Name, metrics.PassSkipped, 0)
		s.logger.DebugContext(ctx, "previous pass still running, tick skipped", slog.String("task", t.Name))
		return
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer t.running.Store(false)
		s.runPass(ctx, t)
	}()
}

func (s *Scheduler) runPass(ctx context.Context, t *taskState) {
	passCtx := ctx
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, t.Name, s.lockTTL)
		if err != nil {
			t.skipped.Add(1)
			s.metrics.ObservePass(t.Name, metrics.PassSkipped, 0)
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.DebugContext(ctx, "pass lock held by another instance", slog.String("task", t.Name))
			} else {
				s.logger.WarnContext(ctx, "pass lock unavailable, pass skipped",
					slog.String("task", t.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		defer unlock()

		// The lock expires after lockTTL; the pass must not outlive it or a
		// second instance could start the same task.
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}

	start := time.Now()
	t.mu.Lock()
	t.lastStart = start
	t.mu.Unlock()

	err := t.Run(passCtx)
	elapsed := time.Since(start)
	if ctx.Err() == nil && errors.Is(passCtx.Err(), context.DeadlineExceeded) {
		err = errors.Join(fmt.Errorf("scheduler: %s pass exceeded lock ttl %s: %w", t.Name, s.lockTTL, context.DeadlineExceeded), err)
	}

	t.runs.Add(1)
	t.mu.Lock()
	t.lastFinish = time.Now()
	t.lastErr = err
	t.mu.Unlock()

	if err == nil {
		s.metrics.ObservePass(t.Name, metrics.PassOK, elapsed)
		return
	}
	s.metrics.ObservePass(t.Name, metrics.PassError, elapsed)
	if ctx.Err() != nil {
		return
	}
	s.logger.ErrorContext(ctx, "pass aborted",
		slog.String("task", t.Name),
		slog.Duration("elapsed", elapsed),
		slog.String("error", err.Error()),
	)
	if s.alerts != nil {
		msg := fmt.Sprintf("%s pass aborted: %v (retrying in %s)", t.Name, err, t.Interval)
		if aerr := s.alerts.Notify(ctx, notify.EventPassAborted, "Engine pass aborted", msg); aerr != nil {
			s.logger.WarnContext(ctx, "alert delivery failed", slog.String("error", aerr.Error()))
		}
	}
}

// Statuses reports every task in registration order.
func (s *Scheduler) Statuses() []Status {
	out := make([]Status, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		st := Status{
			Name:       t.Name,
			Interval:   t.Interval.String(),
			Running:    t.running.Load(),
			Runs:       t.runs.Load(),
			Skipped:    t.skipped.Load(),
			LastStart:  t.lastStart,
			LastFinish: t.lastFinish,
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		t.mu.Unlock()
		out = append(out, st)
	}
	return out
}
