package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// DefaultReminderBatchSize is the page size of the reminder queries.
const DefaultReminderBatchSize = 100

// ReminderArgs contains the mandatory arguments of the Reminder.
type ReminderArgs struct {
	// Repository reads events, participations and users.
	Repository ports.Repository

	// Outbox receives the reminder mails.
	Outbox ports.Outbox
}

// ReminderOptArgs are the optional arguments for building a Reminder
type ReminderOptArgs = func(*Reminder)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) ReminderOptArgs {
	return func(r *Reminder) {
		r.nowFunc = nowFunc
	}
}

// WithBatchSize sets the page size of the event and participation queries. Zero disables paging.
func WithBatchSize(size uint32) ReminderOptArgs {
	return func(r *Reminder) {
		r.batchSize = size
	}
}

// NewReminder creates a new Reminder.
func NewReminder(args ReminderArgs, optArgs ...ReminderOptArgs) *Reminder {
	r := &Reminder{
		repository: args.Repository,
		outbox:     args.Outbox,
		loc:        DefaultLocation,
		batchSize:  DefaultReminderBatchSize,
		nowFunc:    time.Now,
	}
	for _, opt := range optArgs {
		opt(r)
	}
	return r
}

// Reminder mails every attending, opted-in participant of the events starting tomorrow.
type Reminder struct {
	repository ports.Repository
	outbox     ports.Outbox
	loc        *time.Location
	batchSize  uint32
	nowFunc    func() time.Time
}

// ReminderWindow returns the first and last instants of the day after now, in loc wall-clock time.
func ReminderWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := now.In(loc).Date()
	start := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// Run does one reminder pass. The run is sequential and stops at the first platform failure;
// entries already written are kept and a rerun for the same day does not duplicate them.
func (r *Reminder) Run(ctx context.Context) (*model.ReminderRunSummary, error) {
	start, end := ReminderWindow(r.nowFunc(), r.loc)
	summary := &model.ReminderRunSummary{WindowStart: start, WindowEnd: end}
	logger := log.WithField("window_start", start).WithField("window_end", end)

	for offset := uint32(0); ; offset += r.batchSize {
		res, err := r.repository.ListEvents(ctx, ports.ListEventsQuery{
			StartFrom:             start,
			StartTo:               end,
			OnlyEmailNotification: true,
			Limit:                 r.batchSize,
			Offset:                offset,
		})
		if err != nil {
			return summary, fmt.Errorf("error listing events starting tomorrow: %w", err)
		}
		for _, event := range res.Events {
			summary.Events++
			if err := r.remindEvent(ctx, start, event, summary); err != nil {
				return summary, err
			}
		}
		if r.batchSize == 0 || uint32(len(res.Events)) < r.batchSize {
			break
		}
	}

	logger.
		WithField("events", summary.Events).
		WithField("enqueued", summary.Enqueued).
		WithField("duplicates", summary.Duplicates).
		WithField("missing_users", summary.MissingUsers).
		Info("reminder run finished")
	return summary, nil
}

func (r *Reminder) remindEvent(ctx context.Context, day time.Time, event model.Event, summary *model.ReminderRunSummary) error {
	for offset := uint32(0); ; offset += r.batchSize {
		res, err := r.repository.ListParticipations(ctx, ports.ListParticipationsQuery{
			EventID:        event.ID,
			Status:         model.StatusAttending,
			OnlyEmailOptIn: true,
			Limit:          r.batchSize,
			Offset:         offset,
		})
		if err != nil {
			return fmt.Errorf("error listing participations of event [%s]: %w", event.ID, err)
		}
		for _, p := range res.Participations {
			if err := ctx.Err(); err != nil {
				return err
			}
			user, err := lookupUser(ctx, r.repository, p.UserID)
			if err != nil {
				return err
			}
			if user == nil {
				summary.MissingUsers++
				continue
			}
			entry, err := reminderMail(p.ID, day, *user, event, r.loc)
			if err != nil {
				return err
			}
			written, err := enqueue(ctx, r.outbox, entry)
			if err != nil {
				return err
			}
			if written {
				summary.Enqueued++
			} else {
				summary.Duplicates++
			}
		}
		if r.batchSize == 0 || uint32(len(res.Participations)) < r.batchSize {
			return nil
		}
	}
}
