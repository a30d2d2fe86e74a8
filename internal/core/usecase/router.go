package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
)

// RouterArgs contains the handlers registered per collection.
type RouterArgs struct {
	// Participations handle changes in the event_participations collection.
	Participations []ports.DocumentChangeHandler[model.EventParticipation]

	// Users handle changes in the users collection.
	Users []ports.DocumentChangeHandler[model.User]

	// Events handle changes in the events collection.
	Events []ports.DocumentChangeHandler[model.Event]
}

// NewRouter builds a new router.
func NewRouter(args RouterArgs) *Router {
	return &Router{
		participations: args.Participations,
		users:          args.Users,
		events:         args.Events,
	}
}

// Router adapts change events to the document handlers of their collection.
type Router struct {
	participations []ports.DocumentChangeHandler[model.EventParticipation]
	users          []ports.DocumentChangeHandler[model.User]
	events         []ports.DocumentChangeHandler[model.Event]
}

func (r *Router) HandleParticipationChange(ctx context.Context, change model.ChangeEvent[model.EventParticipation]) error {
	return dispatch(ctx, r.participations, change)
}

func (r *Router) HandleUserChange(ctx context.Context, change model.ChangeEvent[model.User]) error {
	return dispatch(ctx, r.users, change)
}

func (r *Router) HandleEventChange(ctx context.Context, change model.ChangeEvent[model.Event]) error {
	return dispatch(ctx, r.events, change)
}

// dispatch calls every handler in order. A failing handler does not stop the following ones.
func dispatch[T any](ctx context.Context, handlers []ports.DocumentChangeHandler[T], change model.ChangeEvent[T]) error {
	var errs []error
	for _, h := range handlers {
		var err error
		switch {
		case change.Before == nil && change.After != nil:
			err = h.OnCreate(ctx, *change.After)
		case change.Before != nil && change.After != nil:
			err = h.OnUpdate(ctx, *change.Before, *change.After)
		case change.Before != nil:
			err = h.OnDelete(ctx, *change.Before)
		default:
			return nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("error handling change ID [%s]: %w", change.ID, err))
		}
	}
	return errors.Join(errs...)
}

// UnimplementedDocumentChangeHandler can be embedded to get no-op defaults for every change kind.
type UnimplementedDocumentChangeHandler[T any] struct{}

func (UnimplementedDocumentChangeHandler[T]) OnCreate(context.Context, model.Document[T]) error {
	return nil
}

func (UnimplementedDocumentChangeHandler[T]) OnUpdate(context.Context, model.Document[T], model.Document[T]) error {
	return nil
}

func (UnimplementedDocumentChangeHandler[T]) OnDelete(context.Context, model.Document[T]) error {
	return nil
}
