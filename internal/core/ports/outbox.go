package ports

import (
	"context"

	"github.com/rbroggi/communityevents/internal/core/model"
)

// Outbox is the port for enqueuing outbound mails. Delivery belongs to the outbox consumer.
type Outbox interface {
	// Enqueue writes the entry. It returns model.ErrAlreadyEnqueued if the dedup key is taken.
	Enqueue(ctx context.Context, entry model.MailEntry) error
}

// ClaimsSetter is the port to the authentication service custom claims.
type ClaimsSetter interface {
	// SetCustomClaims replaces every custom claim of the account with claims.
	SetCustomClaims(ctx context.Context, uid string, claims model.Claims) error
}

// ObjectStore is the port to the image bucket.
type ObjectStore interface {
	// RemovePrefix deletes every object whose key starts with prefix.
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}
