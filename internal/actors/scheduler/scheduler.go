// Package scheduler runs the daily reminder on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/metrics"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultSpec fires every day at midnight.
const DefaultSpec = "0 0 * * *"

type reminder interface {
	Run(ctx context.Context) (*model.ReminderRunSummary, error)
}

// SchedulerArgs are the mandatory arguments to build a Scheduler.
type SchedulerArgs struct {
	// Reminder is run on every tick.
	Reminder reminder

	// Location is the timezone the cron expression is evaluated in.
	Location *time.Location
}

// SchedulerOptArgs are the optional arguments for building a Scheduler
type SchedulerOptArgs = func(*Scheduler)

// WithSpec overrides DefaultSpec.
func WithSpec(spec string) SchedulerOptArgs {
	return func(s *Scheduler) {
		s.spec = spec
	}
}

// WithRunTimeout bounds every run. Zero leaves runs unbounded.
func WithRunTimeout(timeout time.Duration) SchedulerOptArgs {
	return func(s *Scheduler) {
		s.runTimeout = timeout
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(args SchedulerArgs, optArgs ...SchedulerOptArgs) (*Scheduler, error) {
	if args.Reminder == nil {
		return nil, errors.New("nil reminder passed to scheduler")
	}
	if args.Location == nil {
		args.Location = time.UTC
	}
	s := &Scheduler{
		reminder:   args.Reminder,
		location:   args.Location,
		spec:       DefaultSpec,
		runTimeout: 30 * time.Minute,
	}
	for _, opt := range optArgs {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(args.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DefaultLogger)),
	)
	return s, nil
}

// Scheduler triggers the reminder. Overlapping runs are skipped.
type Scheduler struct {
	cron       *cron.Cron
	reminder   reminder
	location   *time.Location
	spec       string
	runTimeout time.Duration
}

// Start schedules the reminder and blocks until ctx is done. Running jobs are awaited before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	next, err := s.NextRun(time.Now())
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.WithError(err).Error("reminder run failed")
		}
	}); err != nil {
		return fmt.Errorf("error scheduling reminder with spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.WithField("spec", s.spec).WithField("next", next).Info("reminder scheduled")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// NextRun returns the first activation after now.
func (s *Scheduler) NextRun(now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing reminder spec %q: %w", s.spec, err)
	}
	return schedule.Next(now.In(s.location)), nil
}

// RunOnce runs the reminder now.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	start := time.Now()
	summary, err := s.reminder.Run(ctx)
	metrics.ReminderRunDuration.Observe(time.Since(start).Seconds())
	metrics.ReminderRuns.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("error running reminder: %w", err)
	}
	log.
		WithField("window_start", summary.WindowStart).
		WithField("enqueued", summary.Enqueued).
		WithField("duplicates", summary.Duplicates).
		Info("reminder run completed")
	return nil
}
