package questionables

import "sync"

// Presence reports whether a participant currently has a live connection.
type Presence interface {
	IsConnected(id string) bool
}

// Registry counts live connections per participant identity. One
// participant may hold several connections (e.g. two browser tabs sharing a
// cookie); they are connected while at least one remains open.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]int),
	}
}

// Add records a new connection for id and reports whether it is the first.
func (r *Registry) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id]++

	return r.conns[id] == 1
}

// Remove drops one connection for id and reports whether it was the last.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.conns[id]
	if !ok {
		return false
	}

	if n <= 1 {
		delete(r.conns, id)
		return true
	}

	r.conns[id] = n - 1

	return false
}

func (r *Registry) IsConnected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.conns[id] > 0
}

// alwaysConnected treats every participant as reachable. It is used when no
// Presence is configured.
type alwaysConnected struct{}

func (alwaysConnected) IsConnected(string) bool { return true }
