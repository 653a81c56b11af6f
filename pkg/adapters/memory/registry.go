package memory

import (
	"context"
	"sync"
	"time"
)

// Registry implements ports.SessionRegistry in memory.
// Safe for concurrent use. It only knows about sessions of the current process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time // zero time = no expiry
	now     func() time.Time
}

// NewRegistry creates a new in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Register marks sessionID as live.
func (r *Registry) Register(ctx context.Context, sessionID string, ttl time.Duration) error {
	var expiry time.Time
	if ttl > 0 {
		expiry = r.now().Add(ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = expiry
	return nil
}

// Unregister removes sessionID.
func (r *Registry) Unregister(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
	return nil
}

// Live returns all unexpired sessions, pruning expired ones lazily.
func (r *Registry) Live(ctx context.Context) ([]string, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	live := make([]string, 0, len(r.entries))
	for id, expiry := range r.entries {
		if !expiry.IsZero() && !expiry.After(now) {
			delete(r.entries, id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}
