// Package cron provides a periodic scheduler that fires configured cron
// schedules by creating tasks in the task engine.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/halcyon-foundry/autarch/internal/task"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Schedule declares one recurring task.
type Schedule struct {
	Name        string
	Expr        string
	Description string
}

// Config holds the dependencies for the cron scheduler.
type Config struct {
	Tasks     *task.Engine
	Logger    *slog.Logger
	Schedules []Schedule
	Interval  time.Duration // tick interval; defaults to 1 minute if zero
}

type scheduleState struct {
	Schedule
	nextRun time.Time
	lastRun time.Time
}

// Scheduler ticks at a fixed interval and creates a task for each due
// schedule.
type Scheduler struct {
	tasks    *task.Engine
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	schedules []*scheduleState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the declared schedules and creates a Scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	states := make([]*scheduleState, 0, len(cfg.Schedules))
	for _, sched := range cfg.Schedules {
		next, err := NextRunTime(sched.Expr, now)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: parse %q: %w", sched.Name, sched.Expr, err)
		}
		states = append(states, &scheduleState{Schedule: sched, nextRun: next})
	}

	return &Scheduler{
		tasks:     cfg.Tasks,
		logger:    logger,
		interval:  interval,
		schedules: states,
	}, nil
}

// Start begins the scheduler loop. It runs in a background goroutine and
// respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("cron scheduler started", "interval", s.interval, "schedules", len(s.schedules))
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(time.Now())
		}
	}
}

// Tick fires every schedule due at or before now. Exposed for tests and for
// the on-demand path.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.schedules {
		if st.nextRun.After(now) {
			continue
		}
		s.fire(st, now)
	}
}

func (s *Scheduler) fire(st *scheduleState, now time.Time) {
	created := s.tasks.Create(st.Description, map[string]any{
		"schedule": st.Name,
	})

	next, err := NextRunTime(st.Expr, now)
	if err != nil {
		// Expressions were validated at construction; a failure here means
		// the schedule can never fire again.
		s.logger.Error("cron: failed to compute next run time",
			"schedule_name", st.Name,
			"cron_expr", st.Expr,
			"error", err,
		)
		return
	}
	st.lastRun = now
	st.nextRun = next

	s.logger.Info("cron: schedule fired",
		"schedule_name", st.Name,
		"task_id", created.ID,
		"next_run_at", next,
	)
}

// NextRuns reports each schedule's next fire time, keyed by name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.schedules))
	for _, st := range s.schedules {
		out[st.Name] = st.nextRun
	}
	return out
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
