package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// NewParticipationUpdatedHandler creates the handler notifying cancellations.
func NewParticipationUpdatedHandler(args ParticipationNotifierArgs) *ParticipationUpdatedHandler {
	return &ParticipationUpdatedHandler{
		repository: args.Repository,
		outbox:     args.Outbox,
		loc:        DefaultLocation,
	}
}

// ParticipationUpdatedHandler reacts to attending -> cancelled transitions. The participant gets a
// confirmation when both the participation and the event allow mails; the organizer is always told.
type ParticipationUpdatedHandler struct {
	UnimplementedDocumentChangeHandler[model.EventParticipation]
	repository ports.Repository
	outbox     ports.Outbox
	loc        *time.Location
}

func (h *ParticipationUpdatedHandler) OnUpdate(ctx context.Context, before, after model.Document[model.EventParticipation]) error {
	if before.Data.Status != model.StatusAttending || after.Data.Status != model.StatusCancelled {
		return nil
	}
	p := after.Data
	logger := log.WithField("participation_id", after.ID).WithField("event_id", p.EventID)

	event, err := lookupEvent(ctx, h.repository, p.EventID)
	if err != nil {
		return err
	}
	if event == nil {
		logger.Debug("event of cancelled participation not found")
		return nil
	}

	participant, err := lookupUser(ctx, h.repository, p.UserID)
	if err != nil {
		return err
	}
	if participant == nil {
		logger.WithField("user_id", p.UserID).Debug("participant not found")
		return nil
	}

	// the two notifications are independent: one failing does not skip the other
	var errs []error
	if p.EmailOptIn && event.EmailNotification {
		if err := h.notifyParticipant(ctx, after.ID, p.CancelledAt, *participant, *event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.notifyOrganizer(ctx, after.ID, p.CancelledAt, *participant, *event); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *ParticipationUpdatedHandler) notifyParticipant(ctx context.Context, participationID string, cancelledAt time.Time, participant model.User, event model.Event) error {
	entry, err := participantCancellationMail(participationID, cancelledAt, participant, event, h.loc)
	if err != nil {
		return err
	}
	_, err = enqueue(ctx, h.outbox, entry)
	return err
}

func (h *ParticipationUpdatedHandler) notifyOrganizer(ctx context.Context, participationID string, cancelledAt time.Time, participant model.User, event model.Event) error {
	organizer, err := lookupUser(ctx, h.repository, event.OrganizerUID)
	if err != nil {
		return err
	}
	if organizer == nil {
		log.WithField("organizer_uid", event.OrganizerUID).Debug("organizer not found")
		return nil
	}
	entry, err := organizerCancellationMail(participationID, cancelledAt, *organizer, participant, event, h.loc)
	if err != nil {
		return err
	}
	_, err = enqueue(ctx, h.outbox, entry)
	return err
}
