package recipient

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and for running without a database.
type InMemoryRepository struct {
	mu         sync.RWMutex
	recipients map[string]*Recipient // keyed by recipient ID
	bindings   map[string]string     // user ID + device ID -> recipient ID
}

// NewInMemoryRepository creates a new in-memory recipient repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		recipients: make(map[string]*Recipient),
		bindings:   make(map[string]string),
	}
}

func bindingKey(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}

// ListNotifiable returns active recipients of a tag that have a push token.
func (r *InMemoryRepository) ListNotifiable(_ context.Context, deviceID string) ([]*Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Recipient
	for _, rcp := range r.recipients {
		if rcp.DeviceID == deviceID && rcp.Notifiable() {
			items = append(items, copyRecipient(rcp))
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// InvalidateToken clears the push token of a recipient.
func (r *InMemoryRepository) InvalidateToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rcp, ok := r.recipients[id]
	if !ok {
		return ErrRecipientNotFound
	}
	if rcp.PushToken != nil {
		rcp.PushToken = nil
		rcp.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Get retrieves a recipient by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rcp, ok := r.recipients[id]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	return copyRecipient(rcp), nil
}

// Upsert creates or updates the registration for (UserID, DeviceID).
func (r *InMemoryRepository) Upsert(_ context.Context, rcp *Recipient) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := bindingKey(rcp.UserID, rcp.DeviceID)

	if existingID, ok := r.bindings[key]; ok {
		existing := r.recipients[existingID]
		existing.Platform = rcp.Platform
		existing.PushToken = copyToken(rcp.PushToken)
		existing.Active = rcp.Active
		existing.UpdatedAt = now
		rcp.ID = existingID
		rcp.CreatedAt = existing.CreatedAt
		rcp.UpdatedAt = now
		return false, nil
	}

	if rcp.ID == "" {
		rcp.ID = NewID()
	}
	if rcp.CreatedAt.IsZero() {
		rcp.CreatedAt = now
	}
	rcp.UpdatedAt = now

	r.recipients[rcp.ID] = copyRecipient(rcp)
	r.bindings[key] = rcp.ID
	return true, nil
}

func copyToken(t *string) *string {
	if t == nil {
		return nil
	}
	val := *t
	return &val
}

// copyRecipient creates a deep copy of a recipient.
func copyRecipient(in *Recipient) *Recipient {
	if in == nil {
		return nil
	}
	out := *in
	out.PushToken = copyToken(in.PushToken)
	return &out
}

var _ Repository = (*InMemoryRepository)(nil)
