package realtime

import "sync"

// Registry maps each principal to its current connection. The latest
// registration wins; a stale connection cannot unregister its successor.
type Registry interface {
	// Register stores c for its principal and returns the connection it replaced, if any.
	Register(c *Client) (previous *Client)
	// Unregister removes c only if it is still the stored connection.
	Unregister(c *Client) bool
	Lookup(principalID string) (*Client, bool)
	IsOnline(principalID string) bool
	Snapshot() []*Client
	Len() int
}

// MemoryRegistry is a Registry guarded by a single mutex.
type MemoryRegistry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{clients: make(map[string]*Client)}
}

func (r *MemoryRegistry) Register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[c.Principal.ID]
	r.clients[c.Principal.ID] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *MemoryRegistry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[c.Principal.ID]; ok && current == c {
		delete(r.clients, c.Principal.ID)
		return true
	}
	return false
}

func (r *MemoryRegistry) Lookup(principalID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[principalID]
	return c, ok
}

func (r *MemoryRegistry) IsOnline(principalID string) bool {
	_, ok := r.Lookup(principalID)
	return ok
}

func (r *MemoryRegistry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
