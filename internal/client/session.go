// Package client is the consumer-side session adapter for the relay: it owns
// a single realtime connection, keeps the joined-nest set, reconnects with
// backoff, and reconciles a local message list against relay broadcasts.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huenest/relay/internal/ws"
)

// Handlers are optional callbacks invoked from the session's read loop.
type Handlers struct {
	OnMessage  func(ws.MessagePayload)
	OnReaction func(ws.ReactionUpdatePayload)
	OnPresence func(event string, p ws.PresencePayload)
	OnError    func(message string)
}

// Options configure a session.
type Options struct {
	// URL of the relay websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Token is the session token, appended as ?token= when set.
	Token string
	// UserID is sent on events; ignored by the relay when connection auth is
	// enabled.
	UserID string

	BackoffBase time.Duration
	BackoffMax  time.Duration
	Dialer      *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Session is a reconnecting relay connection. Membership is connection
// scoped on the server, so after every reconnect the session re-emits
// join_nest for each nest it considers active.
type Session struct {
	opts     Options
	handlers Handlers

	mu       sync.Mutex
	conn     *websocket.Conn
	rooms    map[string]struct{}
	messages map[string][]ws.MessagePayload
	closed   bool
	done     chan struct{}
}

func New(opts Options, handlers Handlers) *Session {
	return &Session{
		opts:     opts.withDefaults(),
		handlers: handlers,
		rooms:    make(map[string]struct{}),
		messages: make(map[string][]ws.MessagePayload),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and starts the read loop. It returns once the
// initial connection is up; reconnection afterwards is automatic.
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.readLoop(conn)
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	target := s.opts.URL
	if s.opts.Token != "" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse relay url: %w", err)
		}
		q := u.Query()
		q.Set("token", s.opts.Token)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	conn, _, err := s.opts.Dialer.DialContext(ctx, target, nil)
	return conn, err
}

// Close shuts the session down and stops reconnecting.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// JoinNest marks the nest active and emits join_nest. Active nests are
// re-joined on every reconnect.
func (s *Session) JoinNest(nestID string) error {
	s.mu.Lock()
	s.rooms[nestID] = struct{}{}
	s.mu.Unlock()
	return s.emit(ws.EventJoinNest, ws.JoinNestPayload{NestID: nestID, UserID: s.opts.UserID})
}

// LeaveNest marks the nest inactive and emits leave_nest.
func (s *Session) LeaveNest(nestID string) error {
	s.mu.Lock()
	delete(s.rooms, nestID)
	delete(s.messages, nestID)
	s.mu.Unlock()
	return s.emit(ws.EventLeaveNest, ws.LeaveNestPayload{NestID: nestID})
}

// SendMessage posts a message. The local list is not updated optimistically;
// the relay's new_message broadcast is the authoritative copy.
func (s *Session) SendMessage(p ws.SendMessagePayload) error {
	if p.UserID == "" {
		p.UserID = s.opts.UserID
	}
	return s.emit(ws.EventSendMessage, p)
}

// React toggles a reaction on a message.
func (s *Session) React(messageID string, reactionType string) error {
	return s.emit(ws.EventReact, ws.ReactPayload{
		MessageID:    messageID,
		UserID:       s.opts.UserID,
		ReactionType: reactionType,
	})
}

// Messages returns a copy of the reconciled message list for a nest, ordered
// by server timestamp.
func (s *Session) Messages(nestID string) []ws.MessagePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ws.MessagePayload, len(s.messages[nestID]))
	copy(out, s.messages[nestID])
	return out
}

// Seed primes the local list, typically from the REST history endpoint,
// before live events start arriving.
func (s *Session) Seed(nestID string, history []ws.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range history {
		s.reconcileLocked(m)
	}
}

func (s *Session) emit(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return fmt.Errorf("session not connected")
	}
	return s.conn.WriteJSON(ws.Event{Type: eventType, Data: data})
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			conn.Close()
			if !s.reconnect() {
				return
			}
			s.mu.Lock()
			conn = s.conn
			s.mu.Unlock()
			continue
		}
		s.dispatch(env.Type, env.Data)
	}
}

func (s *Session) dispatch(eventType string, data json.RawMessage) {
	switch eventType {
	case ws.EventNewMessage:
		var m ws.MessagePayload
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		s.mu.Lock()
		s.reconcileLocked(m)
		s.mu.Unlock()
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(m)
		}
	case ws.EventReactionUpdated:
		var u ws.ReactionUpdatePayload
		if err := json.Unmarshal(data, &u); err != nil {
			return
		}
		s.mu.Lock()
		s.applyReactionLocked(u)
		s.mu.Unlock()
		if s.handlers.OnReaction != nil {
			s.handlers.OnReaction(u)
		}
	case ws.EventUserJoined, ws.EventUserLeft:
		var p ws.PresencePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if s.handlers.OnPresence != nil {
			s.handlers.OnPresence(eventType, p)
		}
	case ws.EventMessageDeleted:
		var d ws.MessageDeletedPayload
		if err := json.Unmarshal(data, &d); err != nil {
			return
		}
		s.mu.Lock()
		s.removeMessageLocked(d.MessageID)
		s.mu.Unlock()
	case ws.EventError:
		var e ws.ErrorPayload
		if err := json.Unmarshal(data, &e); err != nil {
			return
		}
		if s.handlers.OnError != nil {
			s.handlers.OnError(e.Message)
		}
	}
}

// reconcileLocked inserts or replaces a message, keeping the list ordered by
// server timestamp (then id, for messages persisted within the same instant).
// Clients must render by this order, not arrival order.
func (s *Session) reconcileLocked(m ws.MessagePayload) {
	list := s.messages[m.NestID]
	for i := range list {
		if list[i].ID == m.ID {
			list[i] = m
			return
		}
	}
	list = append(list, m)
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	s.messages[m.NestID] = list
}

func (s *Session) applyReactionLocked(u ws.ReactionUpdatePayload) {
	for nestID, list := range s.messages {
		for i := range list {
			if list[i].ID == u.MessageID {
				list[i].Upvotes = u.Upvotes
				list[i].Downvotes = u.Downvotes
				s.messages[nestID] = list
				return
			}
		}
	}
}

func (s *Session) removeMessageLocked(messageID string) {
	for nestID, list := range s.messages {
		for i := range list {
			if list[i].ID == messageID {
				s.messages[nestID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// session closes, then re-joins every active nest. Reports false when the
// session closed instead.
func (s *Session) reconnect() bool {
	for attempt := 0; ; attempt++ {
		select {
		case <-s.done:
			return false
		case <-time.After(backoffDelay(attempt, s.opts.BackoffBase, s.opts.BackoffMax)):
		}

		conn, err := s.dial(context.Background())
		if err != nil {
			log.Printf("relay reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return false
		}
		s.conn = conn
		rooms := make([]string, 0, len(s.rooms))
		for nestID := range s.rooms {
			rooms = append(rooms, nestID)
		}
		s.mu.Unlock()

		// Membership is connection scoped on the server.
		for _, nestID := range rooms {
			if err := s.emit(ws.EventJoinNest, ws.JoinNestPayload{NestID: nestID, UserID: s.opts.UserID}); err != nil {
				log.Printf("re-join of nest %s failed: %v", nestID, err)
			}
		}
		return true
	}
}

// backoffDelay doubles from base per attempt, capped at limit.
func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}
