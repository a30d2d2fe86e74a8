package model

import (
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleGeneral      Role = "general"
	RoleAdmin        Role = "admin"
	RoleCollaborator Role = "collaborator"
	// RoleAuth is used by the alternate user schema for freshly signed-in accounts.
	RoleAuth Role = "auth"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGeneral, RoleAdmin, RoleCollaborator, RoleAuth:
		return true
	}
	return false
}

// CanOrganize reports whether a user with this role may create events.
func (r Role) CanOrganize() bool {
	return r == RoleAdmin || r == RoleCollaborator
}

// ParticipationStatus is the state of an event participation.
type ParticipationStatus string

const (
	StatusAttending ParticipationStatus = "attending"
	StatusCancelled ParticipationStatus = "cancelled"
)

// EventCategory tags an event.
type EventCategory string

const (
	CategoryFestival  EventCategory = "festival"
	CategoryWorkshop  EventCategory = "workshop"
	CategoryConcert   EventCategory = "concert"
	CategorySports    EventCategory = "sports"
	CategoryCommunity EventCategory = "community"
	CategoryOther     EventCategory = "other"
)

// User represents a registered user. The ID is the authentication uid.
type User struct {
	// ID unique identifier of the user.
	ID string `json:"id"`

	// Role is the authorization role.
	Role Role `json:"role"`

	// Username is the display name.
	Username string `json:"username"`

	// Mail is the user email address.
	Mail string `json:"mail"`

	// PostalCode is the user postal code.
	PostalCode string `json:"postal_code"`

	// Address is the user postal address.
	Address string `json:"address"`

	// PhotoURL is the avatar URL. Empty if not set.
	PhotoURL string `json:"photo_url,omitempty"`

	// SNSAccounts are up to three social links.
	SNSAccounts []string `json:"sns_accounts,omitempty"`

	// NoteURL is the blog feed URL.
	NoteURL string `json:"note_url,omitempty"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Event is a schedulable community activity.
type Event struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Location          string          `json:"location"`
	ImageURL          string          `json:"image_url,omitempty"`
	Categories        []EventCategory `json:"categories"`
	StartDate         time.Time       `json:"start_date"`
	FinishDate        time.Time       `json:"finish_date"`
	OrganizerUID      string          `json:"organizer_uid"`
	EmailNotification bool            `json:"email_notification"`
	ViewCount         int64           `json:"view_count,omitempty"`
	ClickCount        int64           `json:"click_count,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
}

// Validate checks the invariants writers of events must respect.
func (e Event) Validate() error {
	if e.Name == "" {
		return invalid("event name is required")
	}
	if len(e.Categories) == 0 {
		return invalid("event needs at least one category")
	}
	if !e.FinishDate.After(e.StartDate) {
		return invalid("event finish date must be after its start date")
	}
	return nil
}

// EventParticipation joins a user to an event.
type EventParticipation struct {
	ID           string              `json:"id"`
	EventID      string              `json:"event_id"`
	UserID       string              `json:"user_id"`
	Status       ParticipationStatus `json:"status"`
	RegisteredAt time.Time           `json:"registered_at"`
	// CancelledAt is zero while the participation is attending.
	CancelledAt time.Time `json:"cancelled_at,omitempty"`
	EmailOptIn  bool      `json:"email_opt_in"`
}

// News is an announcement with a lifecycle independent from events.
type News struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	PublishedAt  time.Time `json:"published_at"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	AuthorID     string    `json:"author_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// EventCollaborator grants a user co-organizer rights on an event.
type EventCollaborator struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// MailEntry is one message enqueued in the mail outbox. The outbox consumer owns delivery.
type MailEntry struct {
	// DedupKey identifies the notification. A second entry with the same key is never stored.
	DedupKey string

	// To is the recipient address.
	To string

	// Subject is the message subject.
	Subject string

	// HTML is the message body.
	HTML string
}

// Claims are the custom claims attached to an authentication account.
type Claims map[string]interface{}

// Document is a stored document together with its identifier.
type Document[T any] struct {
	ID   string
	Data T
}

// ChangeEvent collects a document change. It can represent creation, update and deletion.
type ChangeEvent[T any] struct {
	// ID is the delivery id of the change.
	ID string

	// Before is the document state before the change. It will be nil in case of creations.
	Before *Document[T]

	// After is the document state after the change. It will be nil in case of deletions.
	After *Document[T]
}
