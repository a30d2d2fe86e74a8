package usecase

import (
	"context"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// ParticipationNotifierArgs contains the mandatory arguments of the participation handlers.
type ParticipationNotifierArgs struct {
	// Repository reads events and users.
	Repository ports.Repository

	// Outbox receives the mails.
	Outbox ports.Outbox
}

// NewParticipationCreatedHandler creates the handler confirming new registrations by mail.
func NewParticipationCreatedHandler(args ParticipationNotifierArgs) *ParticipationCreatedHandler {
	return &ParticipationCreatedHandler{
		repository: args.Repository,
		outbox:     args.Outbox,
		loc:        DefaultLocation,
	}
}

// ParticipationCreatedHandler sends the registration confirmation.
// Missing events or users are not errors: the change is simply ignored.
type ParticipationCreatedHandler struct {
	UnimplementedDocumentChangeHandler[model.EventParticipation]
	repository ports.Repository
	outbox     ports.Outbox
	loc        *time.Location
}

func (h *ParticipationCreatedHandler) OnCreate(ctx context.Context, doc model.Document[model.EventParticipation]) error {
	p := doc.Data
	logger := log.WithField("participation_id", doc.ID).WithField("event_id", p.EventID)

	if !p.EmailOptIn {
		logger.Debug("participant did not opt in to emails")
		return nil
	}

	event, err := lookupEvent(ctx, h.repository, p.EventID)
	if err != nil {
		return err
	}
	if event == nil || !event.EmailNotification {
		logger.Debug("event missing or notifications disabled")
		return nil
	}

	user, err := lookupUser(ctx, h.repository, p.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		logger.WithField("user_id", p.UserID).Debug("participant not found")
		return nil
	}

	entry, err := registrationMail(doc.ID, *user, *event, h.loc)
	if err != nil {
		return err
	}
	_, err = enqueue(ctx, h.outbox, entry)
	return err
}
