package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrAlreadyEnqueued is returned by the outbox when an entry with the same dedup key exists.
	ErrAlreadyEnqueued = errors.New("mail entry already enqueued")

	// ErrAlreadyRegistered is returned when a user already attends the event.
	ErrAlreadyRegistered = errors.New("user is already registered for the event")

	// ErrInvalidArgument is returned when input fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
