package ws

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Envelope
	dead   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Enqueue(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.events = append(c.events, env)
	return true
}

func (c *fakeConn) received() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) countOf(eventType string) int {
	n := 0
	for _, env := range c.received() {
		if env.Type == eventType {
			n++
		}
	}
	return n
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()

	req.True(registry.Join(conn, "nest-1", "alice"))
	req.False(registry.Join(conn, "nest-1", "alice"))
	req.Equal(1, registry.RoomSize("nest-1"))
	req.True(registry.InRoom(conn, "nest-1"))
}

func TestRegistryConnectionSpansMultipleRooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()

	req.True(registry.Join(conn, "nest-1", "alice"))
	req.True(registry.Join(conn, "nest-2", "alice"))
	req.True(registry.InRoom(conn, "nest-1"))
	req.True(registry.InRoom(conn, "nest-2"))
}

func TestRegistryLeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()
	registry.Join(conn, "nest-1", "alice")

	userID, removed := registry.Leave(conn, "nest-1")
	req.True(removed)
	req.Equal("alice", userID)

	_, removed = registry.Leave(conn, "nest-1")
	req.False(removed)
	req.Zero(registry.RoomSize("nest-1"))
}

func TestRegistryBroadcastReachesCurrentMembers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	a, b, outsider := newFakeConn(), newFakeConn(), newFakeConn()
	registry.Join(a, "nest-1", "alice")
	registry.Join(b, "nest-1", "bob")
	registry.Join(outsider, "nest-2", "carol")

	registry.Broadcast("nest-1", Envelope{Type: EventNewMessage}, nil)

	req.Equal(1, a.countOf(EventNewMessage))
	req.Equal(1, b.countOf(EventNewMessage))
	req.Zero(outsider.countOf(EventNewMessage))
}

func TestRegistryBroadcastExcludes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	joiner, other := newFakeConn(), newFakeConn()
	registry.Join(joiner, "nest-1", "alice")
	registry.Join(other, "nest-1", "bob")

	registry.Broadcast("nest-1", Envelope{Type: EventUserJoined}, joiner)

	req.Zero(joiner.countOf(EventUserJoined))
	req.Equal(1, other.countOf(EventUserJoined))
}

func TestRegistryBroadcastSwallowsDeadConnections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alive, dead := newFakeConn(), newFakeConn()
	dead.dead = true
	registry.Join(alive, "nest-1", "alice")
	registry.Join(dead, "nest-1", "bob")

	registry.Broadcast("nest-1", Envelope{Type: EventNewMessage}, nil)

	req.Equal(1, alive.countOf(EventNewMessage))
}

func TestRegistryDisconnectClearsEverything(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()
	registry.Join(conn, "nest-1", "alice")
	registry.Join(conn, "nest-2", "alice")

	dropped := registry.Disconnect(conn)
	req.Len(dropped, 2)
	for _, m := range dropped {
		req.Equal("alice", m.UserID)
	}
	req.Zero(registry.RoomSize("nest-1"))
	req.Zero(registry.RoomSize("nest-2"))
	req.Empty(registry.Disconnect(conn))
}
