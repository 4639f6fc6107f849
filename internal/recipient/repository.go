package recipient

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for recipient persistence.
type Repository interface {
	// ListNotifiable returns active recipients of a tag that have a push token.
	ListNotifiable(ctx context.Context, deviceID string) ([]*Recipient, error)

	// InvalidateToken clears the push token of a recipient. Clearing an
	// already cleared token is a no-op.
	InvalidateToken(ctx context.Context, id string) error

	// Get retrieves a recipient by ID.
	Get(ctx context.Context, id string) (*Recipient, error)

	// Upsert creates or updates the registration for (UserID, DeviceID).
	// Returns true if a new registration was created.
	Upsert(ctx context.Context, r *Recipient) (created bool, err error)
}

// IDPrefix is prepended to generated recipient IDs.
const IDPrefix = "rcp_"

// NewID generates a recipient ID.
func NewID() string {
	return IDPrefix + uuid.New().String()
}
