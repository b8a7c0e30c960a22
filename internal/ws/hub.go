package ws

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/huenest/relay/internal/aura"
	"github.com/huenest/relay/internal/store"
)

// Options tune the relay's timeouts and per-connection rate limits.
type Options struct {
	PersistTimeout time.Duration
	EventRateRPS   float64
	EventRateBurst int
}

func (o Options) withDefaults() Options {
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.EventRateRPS <= 0 {
		o.EventRateRPS = 5
	}
	if o.EventRateBurst <= 0 {
		o.EventRateBurst = 10
	}
	return o
}

// Hub owns the connection lifecycle: it registers clients as they connect,
// and on disconnect clears their room registrations and emits best-effort
// user_left notices. Event handling itself lives in the Relay.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	clients  map[*Client]struct{}
	registry *Registry
	relay    *Relay

	eventRate  rate.Limit
	eventBurst int
}

func NewHub(st store.Store, ledger *aura.Ledger, opts Options) *Hub {
	opts = opts.withDefaults()
	registry := NewRegistry()
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		registry:   registry,
		relay:      NewRelay(st, ledger, registry, opts.PersistTimeout),
		eventRate:  rate.Limit(opts.EventRateRPS),
		eventBurst: opts.EventRateBurst,
	}
}

// Registry exposes the room index, e.g. for tests and diagnostics.
func (h *Hub) Registry() *Registry { return h.registry }

// Relay exposes the event handlers.
func (h *Hub) Relay() *Relay { return h.relay }

// BroadcastToNest fans an event out to a nest's live connections. Used by
// the HTTP moderation handlers, which mutate state outside the relay loop.
func (h *Hub) BroadcastToNest(nestID string, env Envelope) {
	h.registry.Broadcast(nestID, env, nil)
}

// Run processes connection lifecycle events. Start it once, in its own
// goroutine, before serving any websocket upgrades.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			for _, m := range h.registry.Disconnect(client) {
				h.registry.Broadcast(m.NestID, Envelope{Type: EventUserLeft, Data: m}, nil)
			}
			close(client.send)
		}
	}
}
