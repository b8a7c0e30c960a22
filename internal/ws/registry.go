package ws

import (
	"log"
	"sync"
)

// Conn is a live connection the registry can deliver events to. Enqueue
// must not block; it reports false when the connection cannot accept the
// event (closed or backed up).
type Conn interface {
	ID() string
	Enqueue(env Envelope) bool
}

// Registry is the in-memory index of which live connections are in which
// nest. It tracks nothing durable: persisted membership lives in the store,
// and a connection's registrations vanish with the connection. The user id
// recorded per (connection, nest) only feeds presence notices.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{}
	conns map[Conn]map[string]string // conn -> nest id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[Conn]struct{}),
		conns: make(map[Conn]map[string]string),
	}
}

// Join registers a connection in a nest. Idempotent: joining a nest the
// connection is already in changes nothing and reports false.
func (r *Registry) Join(conn Conn, nestID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[nestID]; !ok {
		r.rooms[nestID] = make(map[Conn]struct{})
	}
	if _, ok := r.rooms[nestID][conn]; ok {
		return false
	}
	r.rooms[nestID][conn] = struct{}{}

	if _, ok := r.conns[conn]; !ok {
		r.conns[conn] = make(map[string]string)
	}
	r.conns[conn][nestID] = userID
	return true
}

// Leave removes a connection from a nest. No-op if absent; returns the user
// id recorded at join time and whether anything was removed.
func (r *Registry) Leave(conn Conn, nestID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(conn, nestID)
}

func (r *Registry) leaveLocked(conn Conn, nestID string) (string, bool) {
	members, ok := r.rooms[nestID]
	if !ok {
		return "", false
	}
	if _, ok := members[conn]; !ok {
		return "", false
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.rooms, nestID)
	}
	var userID string
	if nests, ok := r.conns[conn]; ok {
		userID = nests[nestID]
		delete(nests, nestID)
		if len(nests) == 0 {
			delete(r.conns, conn)
		}
	}
	return userID, true
}

// Disconnect removes a connection from every nest it was registered to and
// returns the memberships it dropped, so the caller can emit user_left
// notices.
func (r *Registry) Disconnect(conn Conn) []PresencePayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := make([]PresencePayload, 0, len(r.conns[conn]))
	for nestID, userID := range r.conns[conn] {
		dropped = append(dropped, PresencePayload{UserID: userID, NestID: nestID})
	}
	for _, m := range dropped {
		r.leaveLocked(conn, m.NestID)
	}
	return dropped
}

// InRoom reports whether the connection is currently registered in the nest.
func (r *Registry) InRoom(conn Conn, nestID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[nestID][conn]
	return ok
}

// RoomSize returns how many live connections a nest currently has.
func (r *Registry) RoomSize(nestID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[nestID])
}

// Broadcast delivers an event to every connection registered in the nest at
// the time of the call, except exclude when non-nil. Delivery to a dead or
// backed-up connection is dropped and logged, never surfaced to the caller.
func (r *Registry) Broadcast(nestID string, env Envelope, exclude Conn) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[nestID]))
	for conn := range r.rooms[nestID] {
		if conn == exclude {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if !conn.Enqueue(env) {
			log.Printf("dropping %s event to connection %s: send buffer full or closed", env.Type, conn.ID())
		}
	}
}
