package server

import "sync"

// ConnectionRegistry maps a user id to its live socket connections. A user
// may hold many concurrent sockets (tabs, devices) and counts as online
// while the set is non-empty. All mutations are serialized through the lock
// so a user can never be observed "half-online".
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[int]map[*Client]struct{}
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[int]map[*Client]struct{}),
	}
}

// Add registers a connection and reports whether it is the user's first.
func (r *ConnectionRegistry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.user.Id]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[c.user.Id] = set
	}
	set[c] = struct{}{}

	return len(set) == 1
}

// Remove deregisters a connection and reports whether it was the user's
// last, i.e. the user just went offline.
func (r *ConnectionRegistry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.user.Id]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.user.Id)
		return true
	}

	return false
}

// ClientsFor returns a snapshot of every connection the user holds.
func (r *ConnectionRegistry) ClientsFor(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userId]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}

	return clients
}

// All returns a snapshot of every registered connection.
func (r *ConnectionRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for _, set := range r.conns {
		for c := range set {
			clients = append(clients, c)
		}
	}

	return clients
}

func (r *ConnectionRegistry) IsOnline(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userId]) > 0
}

func (r *ConnectionRegistry) NumUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

func (r *ConnectionRegistry) NumConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, set := range r.conns {
		n += len(set)
	}

	return n
}
