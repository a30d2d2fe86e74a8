package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// NewEventDeletedHandler creates the handler cleaning up event images.
func NewEventDeletedHandler(store ports.ObjectStore) *EventDeletedHandler {
	return &EventDeletedHandler{store: store}
}

// EventDeletedHandler removes the stored images of deleted events. Participations are left untouched.
type EventDeletedHandler struct {
	UnimplementedDocumentChangeHandler[model.Event]
	store ports.ObjectStore
}

// EventImagePrefix is the object key prefix holding the images of an event.
func EventImagePrefix(eventID string) string {
	return "events/" + eventID + "/"
}

func (h *EventDeletedHandler) OnDelete(ctx context.Context, doc model.Document[model.Event]) error {
	if doc.ID == "" {
		return nil
	}
	removed, err := h.store.RemovePrefix(ctx, EventImagePrefix(doc.ID))
	if err != nil {
		return fmt.Errorf("error removing images of event [%s]: %w", doc.ID, err)
	}
	log.WithField("event_id", doc.ID).WithField("removed", removed).Info("event images removed")
	return nil
}
