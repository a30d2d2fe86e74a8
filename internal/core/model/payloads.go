package model

import "time"

// RegisterArgs contain the arguments of the Register use-case.
type RegisterArgs struct {
	// EventID is the event to attend.
	EventID string

	// UserID is the registering user.
	UserID string

	// EmailOptIn asks for notification emails about this participation.
	EmailOptIn bool
}

// RegisterResponse contains the response of the Register use-case.
type RegisterResponse struct {
	// Participation is the attending participation, new or reactivated.
	Participation EventParticipation

	// Reactivated is true when an existing cancelled participation was flipped back.
	Reactivated bool
}

// CancelArgs contain the arguments of the Cancel use-case.
type CancelArgs struct {
	// ParticipationID is the participation to cancel.
	ParticipationID string
}

// CancelResponse contains the response of the Cancel use-case.
type CancelResponse struct {
	// Participation is the participation after cancellation.
	Participation EventParticipation
}

// ReminderRunSummary reports what a reminder run did.
type ReminderRunSummary struct {
	// WindowStart is the first instant of the day the reminders are for.
	WindowStart time.Time

	// WindowEnd is the last instant of that day.
	WindowEnd time.Time

	// Events is the number of matching events scanned.
	Events int

	// Enqueued is the number of reminder mails written to the outbox.
	Enqueued int

	// Duplicates is the number of reminders already present in the outbox.
	Duplicates int

	// MissingUsers is the number of participations whose user was not found.
	MissingUsers int
}
