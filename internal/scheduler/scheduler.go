package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultSpec is the polling schedule used when none is configured.
const DefaultSpec = "@every 10s"

// TimerRunner is the part of the workflow manager the scheduler drives.
type TimerRunner interface {
	DueTimers(ctx context.Context, now time.Time) ([]engine.DueTimer, error)
	ResumeWorkflow(ctx context.Context, instanceID, activityID string, input map[string]any) (*engine.ExecutionResult, error)
}

// Options configures a Scheduler.
type Options struct {
	// Spec is a cron expression or descriptor ("@every 30s", "*/1 * * * *").
	Spec     string
	PoolSize int
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scheduler polls for due timer bookmarks and resumes them. Instances are
// resumed concurrently through a WorkerPool, one task per instance.
type Scheduler struct {
	runner   TimerRunner
	pool     *WorkerPool
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler creates a Scheduler. The spec is validated here.
func NewScheduler(runner TimerRunner, opts Options) (*Scheduler, error) {
	spec := opts.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "scheduler spec %q", spec).WithCause(err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		runner:   runner,
		pool:     NewWorkerPool(opts.PoolSize),
		schedule: schedule,
		logger:   logger,
		now:      now,
	}, nil
}

// Start launches the polling loop. It runs one tick immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.Tick(ctx)
	for {
		now := s.now()
		wait := s.schedule.Next(now).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Tick resumes every timer due now and waits for the resumes to finish.
// It returns the number of instances submitted.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now().UTC()
	timers, err := s.runner.DueTimers(ctx, now)
	if err != nil {
		s.logger.Error("list due timers", slog.String("error", err.Error()))
		return 0
	}

	byInstance := make(map[string][]engine.DueTimer)
	var order []string
	for _, t := range timers {
		if _, seen := byInstance[t.InstanceID]; !seen {
			order = append(order, t.InstanceID)
		}
		byInstance[t.InstanceID] = append(byInstance[t.InstanceID], t)
	}

	submitted := 0
	for _, id := range order {
		due := byInstance[id]
		ok, err := s.pool.Submit(ctx, id, func(ctx context.Context) error {
			return s.resume(ctx, due)
		})
		if err != nil {
			s.logger.Warn("submit timer resume", slog.String("instance", id), slog.String("error", err.Error()))
			break
		}
		if ok {
			submitted++
		}
	}
	s.pool.Wait()
	return submitted
}

// resume continues one instance's due timers in due order.
func (s *Scheduler) resume(ctx context.Context, due []engine.DueTimer) error {
	var firstErr error
	for _, t := range due {
		res, err := s.runner.ResumeWorkflow(ctx, t.InstanceID, t.ActivityID, nil)
		switch {
		case schema.IsCode(err, schema.ErrCodeNotSuspended), schema.IsCode(err, schema.ErrCodeLocked):
			s.logger.Debug("timer skipped",
				slog.String("instance", t.InstanceID),
				slog.String("activity", t.ActivityID),
				slog.String("reason", err.Error()))
		case err != nil:
			s.logger.Error("timer resume failed",
				slog.String("instance", t.InstanceID),
				slog.String("activity", t.ActivityID),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		default:
			s.logger.Info("timer resumed",
				slog.String("instance", t.InstanceID),
				slog.String("activity", t.ActivityID),
				slog.String("status", string(res.Status)))
		}
	}
	return firstErr
}

// Metrics exposes the worker pool counters.
func (s *Scheduler) Metrics() PoolMetrics {
	return s.pool.Metrics()
}

// Stop cancels the loop. Tick waits for its resumes, so none remain
// in flight once Stop returns. The scheduler may be started again.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
