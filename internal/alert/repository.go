package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for alert persistence.
type Repository interface {
	// Save inserts an alert and returns its ID. An empty ID is generated.
	Save(ctx context.Context, a *Alert) (string, error)

	// MarkDelivered flags an alert as delivered. Calling it again for an
	// already delivered alert is a no-op.
	MarkDelivered(ctx context.Context, id string, recipientCount int, at time.Time) error

	// ListByDevice retrieves the most recent alerts for a device.
	ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error)
}

// NewID generates an alert ID.
func NewID() string {
	return IDPrefix + uuid.New().String()
}

func ensureDefaults(a *Alert) {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}
