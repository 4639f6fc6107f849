package reading

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and for running without a database.
type InMemoryRepository struct {
	mu       sync.RWMutex
	readings []*Reading
}

// NewInMemoryRepository creates a new in-memory reading repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Save inserts a reading.
func (r *InMemoryRepository) Save(_ context.Context, reading *Reading) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ensureID(reading)
	r.readings = append(r.readings, copyReading(reading))
	return reading.ID, nil
}

// ListByDevice retrieves the most recent readings for a device.
func (r *InMemoryRepository) ListByDevice(_ context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Reading
	for _, reading := range r.readings {
		if reading.DeviceID == deviceID {
			items = append(items, copyReading(reading))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ObservedAt.After(items[j].ObservedAt)
	})

	if limit := opts.limit(); len(items) > limit {
		items = items[:limit]
	}

	return &ListResult{Items: items}, nil
}

// Count returns the number of stored readings.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}

// copyReading creates a deep copy of a reading.
func copyReading(in *Reading) *Reading {
	if in == nil {
		return nil
	}

	out := *in
	if in.DockID != nil {
		val := *in.DockID
		out.DockID = &val
	}
	if in.AudioSegment != nil {
		val := *in.AudioSegment
		out.AudioSegment = &val
	}
	return &out
}

var _ Repository = (*InMemoryRepository)(nil)
