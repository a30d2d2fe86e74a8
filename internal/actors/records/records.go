// Package records holds the stored shape of the documents read and written by the actors.
// Decoding is the same for a driver read, a change stream image or a CDC payload.
package records

import (
	"errors"
	"fmt"
	"time"

	"github.com/rbroggi/communityevents/internal/core/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	Users          = "users"
	Events         = "events"
	Participations = "event_participations"
	News           = "news"
	Mail           = "mail"
	Collaborators  = "event_collaborators"
)

// ErrMissingID is returned when a document carries no usable _id.
var ErrMissingID = errors.New("document has no _id")

// UserRecord is a users document.
type UserRecord struct {
	ID          interface{} `bson:"_id"`
	Role        string      `bson:"role"`
	Username    string      `bson:"username"`
	Mail        string      `bson:"mail"`
	PostalCode  string      `bson:"postalCode"`
	Address     string      `bson:"address"`
	PhotoURL    string      `bson:"photoURL,omitempty"`
	SNSAccounts []string    `bson:"snsAccounts,omitempty"`
	NoteURL     string      `bson:"noteURL,omitempty"`
	CreatedAt   *time.Time  `bson:"createdAt,omitempty"`
	UpdatedAt   *time.Time  `bson:"updatedAt,omitempty"`
}

// EventRecord is an events document.
type EventRecord struct {
	ID                interface{} `bson:"_id"`
	Name              string      `bson:"name"`
	Description       string      `bson:"description"`
	Location          string      `bson:"location"`
	ImageURL          string      `bson:"imageURL,omitempty"`
	Categories        []string    `bson:"categories"`
	StartDate         *time.Time  `bson:"startDate"`
	FinishDate        *time.Time  `bson:"finishDate"`
	OrganizerUID      string      `bson:"organizerUid"`
	EmailNotification bool        `bson:"emailNotification"`
	ViewCount         int64       `bson:"viewCount,omitempty"`
	ClickCount        int64       `bson:"clickCount,omitempty"`
	CreatedAt         *time.Time  `bson:"createdAt,omitempty"`
	UpdatedAt         *time.Time  `bson:"updatedAt,omitempty"`
}

// ParticipationRecord is an event_participations document.
type ParticipationRecord struct {
	ID           interface{} `bson:"_id"`
	EventID      string      `bson:"eventId"`
	UserID       string      `bson:"userId"`
	Status       string      `bson:"status"`
	RegisteredAt *time.Time  `bson:"registeredAt"`
	CancelledAt  *time.Time  `bson:"cancelledAt"`
	EmailOptIn   bool        `bson:"emailOptIn"`
}

// MailRecord is a mail outbox document, in the shape the mail extension consumes.
type MailRecord struct {
	ID        string      `bson:"_id"`
	To        string      `bson:"to"`
	Message   MailMessage `bson:"message"`
	DedupKey  string      `bson:"dedupKey"`
	CreatedAt time.Time   `bson:"createdAt"`
}

// MailMessage is the message part of a MailRecord.
type MailMessage struct {
	Subject string `bson:"subject"`
	HTML    string `bson:"html"`
}

// IDString renders a stored _id. Documents written by clients use strings, legacy ones ObjectIDs.
func IDString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// IDFilter matches a document whose _id is either the string or, when it parses, the ObjectID.
func IDFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ToUser converts a stored user. Unknown roles are kept and rejected by their consumers.
func (r UserRecord) ToUser() model.User {
	return model.User{
		ID:          IDString(r.ID),
		Role:        model.Role(r.Role),
		Username:    r.Username,
		Mail:        r.Mail,
		PostalCode:  r.PostalCode,
		Address:     r.Address,
		PhotoURL:    r.PhotoURL,
		SNSAccounts: r.SNSAccounts,
		NoteURL:     r.NoteURL,
		CreatedAt:   timeOf(r.CreatedAt),
		UpdatedAt:   timeOf(r.UpdatedAt),
	}
}

// ToEvent converts a stored event.
func (r EventRecord) ToEvent() model.Event {
	categories := make([]model.EventCategory, 0, len(r.Categories))
	for _, c := range r.Categories {
		categories = append(categories, model.EventCategory(c))
	}
	return model.Event{
		ID:                IDString(r.ID),
		Name:              r.Name,
		Description:       r.Description,
		Location:          r.Location,
		ImageURL:          r.ImageURL,
		Categories:        categories,
		StartDate:         timeOf(r.StartDate),
		FinishDate:        timeOf(r.FinishDate),
		OrganizerUID:      r.OrganizerUID,
		EmailNotification: r.EmailNotification,
		ViewCount:         r.ViewCount,
		ClickCount:        r.ClickCount,
		CreatedAt:         timeOf(r.CreatedAt),
		UpdatedAt:         timeOf(r.UpdatedAt),
	}
}

// ToParticipation converts a stored participation. A status other than attending or cancelled
// is kept verbatim, so it never counts as attending.
func (r ParticipationRecord) ToParticipation() model.EventParticipation {
	return model.EventParticipation{
		ID:           IDString(r.ID),
		EventID:      r.EventID,
		UserID:       r.UserID,
		Status:       model.ParticipationStatus(r.Status),
		RegisteredAt: timeOf(r.RegisteredAt),
		CancelledAt:  timeOf(r.CancelledAt),
		EmailOptIn:   r.EmailOptIn,
	}
}

// FromParticipation builds the stored shape of p.
func FromParticipation(p model.EventParticipation) ParticipationRecord {
	return ParticipationRecord{
		ID:           p.ID,
		EventID:      p.EventID,
		UserID:       p.UserID,
		Status:       string(p.Status),
		RegisteredAt: timePtr(p.RegisteredAt),
		CancelledAt:  timePtr(p.CancelledAt),
		EmailOptIn:   p.EmailOptIn,
	}
}

// FromMailEntry builds the outbox document of entry.
func FromMailEntry(id string, entry model.MailEntry, createdAt time.Time) MailRecord {
	return MailRecord{
		ID:        id,
		To:        entry.To,
		Message:   MailMessage{Subject: entry.Subject, HTML: entry.HTML},
		DedupKey:  entry.DedupKey,
		CreatedAt: createdAt,
	}
}

// DecodeUser decodes a raw users document.
func DecodeUser(raw bson.Raw) (model.Document[model.User], error) {
	var r UserRecord
	if err := bson.Unmarshal(raw, &r); err != nil {
		return model.Document[model.User]{}, fmt.Errorf("error decoding user: %w", err)
	}
	u := r.ToUser()
	if u.ID == "" {
		return model.Document[model.User]{}, ErrMissingID
	}
	return model.Document[model.User]{ID: u.ID, Data: u}, nil
}

// DecodeEvent decodes a raw events document.
func DecodeEvent(raw bson.Raw) (model.Document[model.Event], error) {
	var r EventRecord
	if err := bson.Unmarshal(raw, &r); err != nil {
		return model.Document[model.Event]{}, fmt.Errorf("error decoding event: %w", err)
	}
	e := r.ToEvent()
	if e.ID == "" {
		return model.Document[model.Event]{}, ErrMissingID
	}
	return model.Document[model.Event]{ID: e.ID, Data: e}, nil
}

// DecodeParticipation decodes a raw event_participations document.
func DecodeParticipation(raw bson.Raw) (model.Document[model.EventParticipation], error) {
	var r ParticipationRecord
	if err := bson.Unmarshal(raw, &r); err != nil {
		return model.Document[model.EventParticipation]{}, fmt.Errorf("error decoding participation: %w", err)
	}
	p := r.ToParticipation()
	if p.ID == "" {
		return model.Document[model.EventParticipation]{}, ErrMissingID
	}
	return model.Document[model.EventParticipation]{ID: p.ID, Data: p}, nil
}

// DecodeExtJSON decodes a relaxed or canonical extended JSON document with decode.
func DecodeExtJSON[T any](data []byte, decode func(bson.Raw) (model.Document[T], error)) (model.Document[T], error) {
	var raw bson.Raw
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return model.Document[T]{}, fmt.Errorf("error parsing extended json: %w", err)
	}
	return decode(raw)
}
