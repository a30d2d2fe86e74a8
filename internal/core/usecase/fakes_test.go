package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
)

// FakeRepository is an in-memory implementation of ports.Repository and ports.ParticipationWriter.
type FakeRepository struct {
	events         map[string]model.Event
	users          map[string]model.User
	participations map[string]model.EventParticipation
	nextID         int

	// GetEventError is returned by GetEvent when set.
	GetEventError error
	// GetUserError is returned by GetUser when set.
	GetUserError error
	// ListEventsCalls counts ListEvents invocations.
	ListEventsCalls int
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		events:         map[string]model.Event{},
		users:          map[string]model.User{},
		participations: map[string]model.EventParticipation{},
	}
}

func (f *FakeRepository) AddEvent(e model.Event) *FakeRepository {
	f.events[e.ID] = e
	return f
}

func (f *FakeRepository) AddUser(u model.User) *FakeRepository {
	f.users[u.ID] = u
	return f
}

func (f *FakeRepository) AddParticipation(p model.EventParticipation) *FakeRepository {
	f.participations[p.ID] = p
	return f
}

func (f *FakeRepository) GetEvent(_ context.Context, id string) (*model.Event, error) {
	if f.GetEventError != nil {
		return nil, f.GetEventError
	}
	e, ok := f.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (f *FakeRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	if f.GetUserError != nil {
		return nil, f.GetUserError
	}
	u, ok := f.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (f *FakeRepository) ListEvents(_ context.Context, query ports.ListEventsQuery) (*ports.ListEventsResult, error) {
	f.ListEventsCalls++
	var out []model.Event
	for _, e := range f.events {
		if !query.StartFrom.IsZero() && e.StartDate.Before(query.StartFrom) {
			continue
		}
		if !query.StartTo.IsZero() && e.StartDate.After(query.StartTo) {
			continue
		}
		if query.OnlyEmailNotification && !e.EmailNotification {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &ports.ListEventsResult{Events: page(out, query.Limit, query.Offset)}, nil
}

func (f *FakeRepository) ListParticipations(_ context.Context, query ports.ListParticipationsQuery) (*ports.ListParticipationsResult, error) {
	var out []model.EventParticipation
	for _, p := range f.participations {
		if query.EventID != "" && p.EventID != query.EventID {
			continue
		}
		if query.UserID != "" && p.UserID != query.UserID {
			continue
		}
		if query.Status != "" && p.Status != query.Status {
			continue
		}
		if query.OnlyEmailOptIn && !p.EmailOptIn {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &ports.ListParticipationsResult{Participations: page(out, query.Limit, query.Offset)}, nil
}

func (f *FakeRepository) GetParticipation(_ context.Context, id string) (*model.EventParticipation, error) {
	p, ok := f.participations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (f *FakeRepository) SaveParticipation(_ context.Context, p *model.EventParticipation) error {
	if p.ID == "" {
		f.nextID++
		p.ID = fmt.Sprintf("p%d", f.nextID)
	}
	f.participations[p.ID] = *p
	return nil
}

func (f *FakeRepository) UpdateParticipation(_ context.Context, p *model.EventParticipation) error {
	if _, ok := f.participations[p.ID]; !ok {
		return model.ErrNotFound
	}
	f.participations[p.ID] = *p
	return nil
}

func page[T any](items []T, limit, offset uint32) []T {
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit != 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

// MockOutbox is a mock implementation of the Outbox interface enforcing dedup keys.
type MockOutbox struct {
	mu      sync.Mutex
	Entries []model.MailEntry
	keys    map[string]bool

	// EnqueueErrors maps a dedup key to the error returned when enqueuing it.
	EnqueueErrors map[string]error
}

func (m *MockOutbox) Enqueue(_ context.Context, entry model.MailEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.EnqueueErrors[entry.DedupKey]; err != nil {
		return err
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[entry.DedupKey] {
		return model.ErrAlreadyEnqueued
	}
	m.keys[entry.DedupKey] = true
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutbox) To(addr string) []model.MailEntry {
	var out []model.MailEntry
	for _, e := range m.Entries {
		if e.To == addr {
			out = append(out, e)
		}
	}
	return out
}

// MockClaimsSetter is a mock implementation of the ClaimsSetter interface.
type MockClaimsSetter struct {
	Calls  int
	UID    string
	Claims model.Claims
	Err    error
}

func (m *MockClaimsSetter) SetCustomClaims(_ context.Context, uid string, claims model.Claims) error {
	m.Calls++
	m.UID = uid
	m.Claims = claims
	return m.Err
}

// MockObjectStore is a mock implementation of the ObjectStore interface.
type MockObjectStore struct {
	Prefixes []string
	Removed  int
	Err      error
}

func (m *MockObjectStore) RemovePrefix(_ context.Context, prefix string) (int, error) {
	m.Prefixes = append(m.Prefixes, prefix)
	return m.Removed, m.Err
}
