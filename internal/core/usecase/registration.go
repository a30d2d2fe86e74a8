package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
)

// ReRegistrationPolicy decides what registering again for an event does.
type ReRegistrationPolicy string

const (
	// ReRegistrationAppend always inserts a new attending participation, keeping the history.
	ReRegistrationAppend ReRegistrationPolicy = "append"

	// ReRegistrationReactivate keeps one participation per user and event, flipping a cancelled one back.
	ReRegistrationReactivate ReRegistrationPolicy = "reactivate"
)

// ParseReRegistrationPolicy parses a policy name. The empty string is ReRegistrationAppend.
func ParseReRegistrationPolicy(s string) (ReRegistrationPolicy, error) {
	switch ReRegistrationPolicy(s) {
	case "", ReRegistrationAppend:
		return ReRegistrationAppend, nil
	case ReRegistrationReactivate:
		return ReRegistrationReactivate, nil
	}
	return "", fmt.Errorf("%w: unknown re-registration policy %q", model.ErrInvalidArgument, s)
}

// RegistrationServiceArgs contains the mandatory arguments for the RegistrationService.
type RegistrationServiceArgs struct {
	// Repository reads events and existing participations.
	Repository ports.Repository

	// Participations persists participations.
	Participations ports.ParticipationWriter

	// Policy is the re-registration policy.
	Policy ReRegistrationPolicy
}

// RegistrationServiceOptArgs are the optional arguments for building a RegistrationService
type RegistrationServiceOptArgs = func(*RegistrationService)

// WithClock can be used to override the clock. Useful for testing.
func WithClock(nowFunc func() time.Time) RegistrationServiceOptArgs {
	return func(s *RegistrationService) {
		s.nowFunc = nowFunc
	}
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(args RegistrationServiceArgs, optArgs ...RegistrationServiceOptArgs) *RegistrationService {
	s := &RegistrationService{
		repository:     args.Repository,
		participations: args.Participations,
		policy:         args.Policy,
		nowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if s.policy == "" {
		s.policy = ReRegistrationAppend
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// RegistrationService gathers the functionality around the participation lifecycle.
type RegistrationService struct {
	repository     ports.Repository
	participations ports.ParticipationWriter
	policy         ReRegistrationPolicy
	nowFunc        func() time.Time
}

// Register registers a user for an event. It returns model.ErrNotFound if the event does not exist.
func (s *RegistrationService) Register(ctx context.Context, args model.RegisterArgs) (*model.RegisterResponse, error) {
	if args.EventID == "" || args.UserID == "" {
		return nil, fmt.Errorf("%w: event id and user id are required", model.ErrInvalidArgument)
	}
	if _, err := s.repository.GetEvent(ctx, args.EventID); err != nil {
		return nil, fmt.Errorf("error fetching event [%s]: %w", args.EventID, err)
	}

	now := s.nowFunc()
	if s.policy == ReRegistrationReactivate {
		existing, err := s.repository.ListParticipations(ctx, ports.ListParticipationsQuery{
			EventID: args.EventID,
			UserID:  args.UserID,
		})
		if err != nil {
			return nil, fmt.Errorf("error listing participations: %w", err)
		}
		var latestCancelled *model.EventParticipation
		for i := range existing.Participations {
			p := &existing.Participations[i]
			if p.Status == model.StatusAttending {
				return nil, model.ErrAlreadyRegistered
			}
			if latestCancelled == nil || p.RegisteredAt.After(latestCancelled.RegisteredAt) {
				latestCancelled = p
			}
		}
		if latestCancelled != nil {
			latestCancelled.Status = model.StatusAttending
			latestCancelled.RegisteredAt = now
			latestCancelled.CancelledAt = time.Time{}
			latestCancelled.EmailOptIn = args.EmailOptIn
			if err := s.participations.UpdateParticipation(ctx, latestCancelled); err != nil {
				return nil, fmt.Errorf("error reactivating participation [%s]: %w", latestCancelled.ID, err)
			}
			return &model.RegisterResponse{Participation: *latestCancelled, Reactivated: true}, nil
		}
	}

	p := &model.EventParticipation{
		EventID:      args.EventID,
		UserID:       args.UserID,
		Status:       model.StatusAttending,
		RegisteredAt: now,
		EmailOptIn:   args.EmailOptIn,
	}
	if err := s.participations.SaveParticipation(ctx, p); err != nil {
		return nil, fmt.Errorf("error saving participation: %w", err)
	}
	return &model.RegisterResponse{Participation: *p}, nil
}

// Cancel cancels a participation. Cancelling twice is a no-op.
// It returns model.ErrNotFound if the participation does not exist.
func (s *RegistrationService) Cancel(ctx context.Context, args model.CancelArgs) (*model.CancelResponse, error) {
	if args.ParticipationID == "" {
		return nil, fmt.Errorf("%w: participation id is required", model.ErrInvalidArgument)
	}
	p, err := s.participations.GetParticipation(ctx, args.ParticipationID)
	if err != nil {
		return nil, fmt.Errorf("error fetching participation [%s]: %w", args.ParticipationID, err)
	}
	if p.Status == model.StatusCancelled {
		return &model.CancelResponse{Participation: *p}, nil
	}
	p.Status = model.StatusCancelled
	p.CancelledAt = s.nowFunc()
	if err := s.participations.UpdateParticipation(ctx, p); err != nil {
		return nil, fmt.Errorf("error cancelling participation [%s]: %w", p.ID, err)
	}
	return &model.CancelResponse{Participation: *p}, nil
}
