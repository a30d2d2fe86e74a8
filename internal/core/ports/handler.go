package ports

import (
	"context"

	"github.com/rbroggi/communityevents/internal/core/model"
)

// ChangeEventHandler handles incoming document changes, one method per watched collection.
type ChangeEventHandler interface {
	// HandleParticipationChange handles a change in the event_participations collection.
	HandleParticipationChange(ctx context.Context, change model.ChangeEvent[model.EventParticipation]) error

	// HandleUserChange handles a change in the users collection.
	HandleUserChange(ctx context.Context, change model.ChangeEvent[model.User]) error

	// HandleEventChange handles a change in the events collection.
	HandleEventChange(ctx context.Context, change model.ChangeEvent[model.Event]) error
}

// DocumentChangeHandler reacts to the lifecycle of documents of one collection.
type DocumentChangeHandler[T any] interface {
	// OnCreate is called once per created document.
	OnCreate(ctx context.Context, doc model.Document[T]) error

	// OnUpdate is called once per update with the states before and after it.
	OnUpdate(ctx context.Context, before, after model.Document[T]) error

	// OnDelete is called once per deleted document with its last known state.
	OnDelete(ctx context.Context, doc model.Document[T]) error
}
