package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps the IDs of running analyses to the cancel functions
// of their contexts, so DELETE can stop an analysis before it is stored.
// It is safe for concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]context.CancelFunc)}
}

// Register records a running analysis.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// Cancel stops a running analysis. It reports false when id is not
// registered, either because it already finished or never existed.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove forgets an analysis without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// CancelAll stops every running analysis and returns how many there were.
// The server calls it when shutting down.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]context.CancelFunc)
	r.mu.Unlock()
	for _, cancel := range entries {
		cancel()
	}
	return len(entries)
}

// Len returns the number of running analyses.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
