package ports

import (
	"context"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
)

// Repository is the read side of the document store used by the trigger handlers.
type Repository interface {
	// GetEvent returns the event. It returns model.ErrNotFound if the event does not exist.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// GetUser returns the user. It returns model.ErrNotFound if the user does not exist.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListEvents lists all events matching the query parameters.
	ListEvents(ctx context.Context, query ListEventsQuery) (*ListEventsResult, error)

	// ListParticipations lists all participations matching the query parameters.
	ListParticipations(ctx context.Context, query ListParticipationsQuery) (*ListParticipationsResult, error)
}

// ParticipationWriter persists participations.
type ParticipationWriter interface {
	// GetParticipation returns the participation. It returns model.ErrNotFound if it does not exist.
	GetParticipation(ctx context.Context, id string) (*model.EventParticipation, error)

	// SaveParticipation durably saves a new participation. An empty ID is generated.
	SaveParticipation(ctx context.Context, participation *model.EventParticipation) error

	// UpdateParticipation overwrites status, cancellation time and opt-in of an existing participation.
	// It returns model.ErrNotFound if the participation does not exist.
	UpdateParticipation(ctx context.Context, participation *model.EventParticipation) error
}

// ListEventsQuery gathers the parameters of an event query.
type ListEventsQuery struct {
	// StartFrom is the inclusive lower bound of the start date. Zero-value will be ignored as filter.
	StartFrom time.Time

	// StartTo is the inclusive upper bound of the start date. Zero-value will be ignored as filter.
	StartTo time.Time

	// OnlyEmailNotification restricts the result to events with email notifications enabled.
	OnlyEmailNotification bool

	// Limit is the maximum amount of events to return (for pagination). Zero-value will be interpreted as no-limit.
	Limit uint32

	// Offset is the offset to apply (for pagination). Zero-value will be interpreted as 0 Offset.
	Offset uint32
}

// ListEventsResult gathers the result
type ListEventsResult struct {
	Events []model.Event
}

// ListParticipationsQuery gathers the parameters of a participation query.
type ListParticipationsQuery struct {
	// EventID filters by event. Zero-value will be ignored as filter.
	EventID string

	// UserID filters by user. Zero-value will be ignored as filter.
	UserID string

	// Status filters by status. Zero-value will be ignored as filter.
	Status model.ParticipationStatus

	// OnlyEmailOptIn restricts the result to participations that opted in to emails.
	OnlyEmailOptIn bool

	// Limit is the maximum amount of participations to return (for pagination). Zero-value will be interpreted as no-limit.
	Limit uint32

	// Offset is the offset to apply (for pagination). Zero-value will be interpreted as 0 Offset.
	Offset uint32
}

// ListParticipationsResult gathers the result
type ListParticipationsResult struct {
	Participations []model.EventParticipation
}
