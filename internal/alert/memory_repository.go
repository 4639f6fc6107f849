package alert

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{alerts: make(map[string]*Alert)}
}

// Save inserts an alert.
func (r *InMemoryRepository) Save(_ context.Context, a *Alert) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ensureDefaults(a)
	r.alerts[a.ID] = copyAlert(a)
	return a.ID, nil
}

// MarkDelivered flags an alert as delivered.
func (r *InMemoryRepository) MarkDelivered(_ context.Context, id string, recipientCount int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.Delivered {
		return nil
	}

	at = at.UTC()
	a.Delivered = true
	a.DeliveredAt = &at
	a.RecipientCount = recipientCount
	return nil
}

// Get retrieves an alert by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

// ListByDevice retrieves the most recent alerts for a device.
func (r *InMemoryRepository) ListByDevice(_ context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Alert
	for _, a := range r.alerts {
		if a.DeviceID == deviceID {
			items = append(items, copyAlert(a))
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if limit := opts.limit(); len(items) > limit {
		items = items[:limit]
	}

	return &ListResult{Items: items}, nil
}

// Count returns the number of stored alerts.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

func copyAlert(a *Alert) *Alert {
	if a == nil {
		return nil
	}
	out := *a
	if a.DeliveredAt != nil {
		val := *a.DeliveredAt
		out.DeliveredAt = &val
	}
	return &out
}

var _ Repository = (*InMemoryRepository)(nil)
