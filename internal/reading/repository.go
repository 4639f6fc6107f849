package reading

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for reading persistence.
// Readings are append-only.
type Repository interface {
	// Save inserts a reading and returns its ID. An empty ID is generated.
	Save(ctx context.Context, r *Reading) (string, error)

	// ListByDevice retrieves the most recent readings for a device.
	ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error)
}

// NewID generates a reading ID.
func NewID() string {
	return IDPrefix + uuid.New().String()
}

func ensureID(r *Reading) {
	if r.ID == "" {
		r.ID = NewID()
	}
}
