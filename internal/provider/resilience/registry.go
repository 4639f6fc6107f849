package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time health snapshot for one client.
type Health struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Requests      uint32     `json:"requests"`
	Failures      uint32     `json:"failures"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Healthy reports whether the breaker is closed.
func (h Health) Healthy() bool {
	return h.State == gobreaker.StateClosed.String()
}

// Registry tracks clients so their health can be reported.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register adds or replaces a client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{client: client}
}

// RecordSuccess records a successful request.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now().UTC()
		e.lastSuccessAt = &now
	}
}

// RecordFailure records a failed request.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now().UTC()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the snapshot for name, or false if it is not registered.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Health{}, false
	}
	return e.snapshot(name), true
}

// All returns snapshots for every client, sorted by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) snapshot(name string) Health {
	counts := e.client.BreakerCounts()
	return Health{
		Name:          name,
		State:         e.client.BreakerState().String(),
		Requests:      counts.Requests,
		Failures:      counts.TotalFailures,
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
