// Package server tracks live connections and registered usernames through the
// Registry type, the only shared mutable state in the chat system.
package server

import "sync"

// userEntry is one registered name. owner is nil for names added without a
// connection.
type userEntry struct {
	name  string
	owner *Connection
}

// Registry is a thread-safe collection of active connections and the ordered
// list of registered usernames. Every method runs in a single critical section
// and none performs network I/O while holding the lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Connection]struct{}
	users []userEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Connection]struct{}),
	}
}

// Add inserts conn. Adding a connection that is already present is a no-op.
func (r *Registry) Add(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()
}

// Remove deletes conn and reports whether it was present. Removing an absent
// connection has no effect.
func (r *Registry) Remove(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		return false
	}
	delete(r.conns, conn)
	return true
}

// Deregister removes conn together with every username it registered, and
// returns whether conn was present and the names that were dropped.
func (r *Registry) Deregister(conn *Connection) (bool, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, present := r.conns[conn]
	delete(r.conns, conn)

	var dropped []string
	kept := r.users[:0]
	for _, entry := range r.users {
		if conn != nil && entry.owner == conn {
			dropped = append(dropped, entry.name)
			continue
		}
		kept = append(kept, entry)
	}
	// Clear the tail so dropped owners can be collected.
	for i := len(kept); i < len(r.users); i++ {
		r.users[i] = userEntry{}
	}
	r.users = kept

	return present, dropped
}

// AddUsername appends name to the username list. Duplicates are permitted.
// When owner is non-nil the entry is tied to it and the connection's username
// attribute is updated.
func (r *Registry) AddUsername(owner *Connection, name string) {
	r.mu.Lock()
	r.users = append(r.users, userEntry{name: name, owner: owner})
	r.mu.Unlock()

	if owner != nil {
		owner.setUsername(name)
	}
}

// RemoveUsername deletes the first entry matching name and reports whether
// one was found.
func (r *Registry) RemoveUsername(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.users {
		if entry.name == name {
			copy(r.users[i:], r.users[i+1:])
			r.users[len(r.users)-1] = userEntry{}
			r.users = r.users[:len(r.users)-1]
			return true
		}
	}
	return false
}

// Snapshot returns a point-in-time copy of the active connections that is safe
// to iterate without holding the lock.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Contains reports whether conn is registered.
func (r *Registry) Contains(conn *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[conn]
	return ok
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount returns the number of registered username entries.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Usernames returns the registered names in registration order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.users))
	for i, entry := range r.users {
		names[i] = entry.name
	}
	return names
}
