package ws

import (
	"sync"

	"quizparty-service/internal/domain"
)

// Route ties a live connection to its session and role. For hosts, PlayerID
// carries the host id.
type Route struct {
	SessionID string
	PlayerID  string
	Role      domain.ConnectionRole
}

// Registry is the process-local bidirectional map between connections and
// session routes. It is injected into the Router at construction; nothing
// else holds a reference to it.
type Registry struct {
	mu       sync.RWMutex
	routes   map[*Client]Route
	sessions map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		routes:   make(map[*Client]Route),
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// Register binds a connection to a route, replacing any previous binding.
func (r *Registry) Register(c *Client, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.routes[c]; ok {
		r.dropLocked(c, prev)
	}
	r.routes[c] = route
	conns, ok := r.sessions[route.SessionID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.sessions[route.SessionID] = conns
	}
	conns[c] = struct{}{}
}

// Unregister removes every entry pointing at the connection and returns the
// route it had, if any.
func (r *Registry) Unregister(c *Client) (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.routes[c]
	if !ok {
		return Route{}, false
	}
	r.dropLocked(c, route)
	return route, true
}

func (r *Registry) dropLocked(c *Client, route Route) {
	delete(r.routes, c)
	if conns, ok := r.sessions[route.SessionID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.sessions, route.SessionID)
		}
	}
}

// Route returns the binding for a connection.
func (r *Registry) Route(c *Client) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[c]
	return route, ok
}

// SessionClients returns every connection registered under a session,
// optionally excluding one.
func (r *Registry) SessionClients(sessionID string, exclude *Client) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.sessions[sessionID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		if c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HostClients returns the connection(s) registered as host for a session.
func (r *Registry) HostClients(sessionID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Client
	for c := range r.sessions[sessionID] {
		if r.routes[c].Role == domain.RoleHost {
			out = append(out, c)
		}
	}
	return out
}
