package gateway

import (
	"errors"
	"sync"

	"github.com/mcdev12/partygames/go/internal/models"
)

// ErrAlreadyAttached is returned when a connection is attached to a second
// session without being detached from its first.
var ErrAlreadyAttached = errors.New("connection already attached to another session")

// Client is one live connection as seen by the registry and broadcaster.
type Client interface {
	ID() string
	PlayerID() string
	SessionID() string
	Variant() models.Variant
	// Enqueue queues a frame for delivery. It reports false when the
	// connection cannot accept it.
	Enqueue(msg []byte) bool
	Close(code int, reason string)
}

// Registry tracks which connections belong to which session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Client
	owners   map[string]string // connection id -> session id
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]Client),
		owners:   make(map[string]string),
	}
}

// Attach adds c to the session's connection set. Attaching twice to the same
// session is a no-op.
func (r *Registry) Attach(sessionID string, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[c.ID()]; ok && owner != sessionID {
		return ErrAlreadyAttached
	}

	conns, ok := r.sessions[sessionID]
	if !ok {
		conns = make(map[string]Client)
		r.sessions[sessionID] = conns
	}
	conns[c.ID()] = c
	r.owners[c.ID()] = sessionID
	return nil
}

// Detach removes c from the session. The session keeps an empty set once its
// last connection leaves. It reports whether c was attached.
func (r *Registry) Detach(sessionID string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := conns[c.ID()]; !ok {
		return false
	}
	delete(conns, c.ID())
	delete(r.owners, c.ID())
	return true
}

// ForEach calls fn for every connection of the session. fn runs on a snapshot
// of the set, outside the registry lock.
func (r *Registry) ForEach(sessionID string, fn func(Client)) {
	for _, c := range r.clients(sessionID) {
		fn(c)
	}
}

// PlayerConnected reports whether any live connection claims playerID.
func (r *Registry) PlayerConnected(sessionID, playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.sessions[sessionID] {
		if c.PlayerID() == playerID {
			return true
		}
	}
	return false
}

// Count returns the number of connections attached to the session.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// Stats summarizes the registry for the stats endpoint.
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{SessionConnections: make(map[string]int, len(r.sessions))}
	for id, conns := range r.sessions {
		stats.TotalConnections += len(conns)
		if len(conns) > 0 {
			stats.ActiveSessions++
		}
		stats.SessionConnections[id] = len(conns)
	}
	return stats
}

func (r *Registry) lookup(sessionID, connID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[sessionID][connID]
	return c, ok
}

func (r *Registry) clients(sessionID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[sessionID]
	out := make([]Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}
