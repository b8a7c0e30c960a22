package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/huenest/relay/internal/aura"
	"github.com/huenest/relay/internal/models"
	"github.com/huenest/relay/internal/store"
)

// Session is what the relay needs from a connection: delivery plus whatever
// identity the connection layer established. When verified is false the
// relay falls back to the client-supplied user_id on each event.
type Session interface {
	Conn
	Identity() (userID string, role models.Role, verified bool)
}

// Relay validates inbound events, persists their effects and fans the
// results out to the affected nest. Each connection's events arrive here
// serialized by its read pump; failure in one handler never affects other
// connections.
type Relay struct {
	store          store.Store
	ledger         *aura.Ledger
	registry       *Registry
	validate       *validator.Validate
	persistTimeout time.Duration
}

func NewRelay(st store.Store, ledger *aura.Ledger, registry *Registry, persistTimeout time.Duration) *Relay {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Relay{
		store:          st,
		ledger:         ledger,
		registry:       registry,
		validate:       validator.New(),
		persistTimeout: persistTimeout,
	}
}

// Handle dispatches one inbound event. All failures surface as a single
// error event to the originating connection; nothing is broadcast unless
// the operation fully persisted.
func (r *Relay) Handle(sess Session, ev Event) {
	switch ev.Type {
	case EventJoinNest:
		r.handleJoin(sess, ev.Data)
	case EventLeaveNest:
		r.handleLeave(sess, ev.Data)
	case EventSendMessage:
		r.handleSendMessage(sess, ev.Data)
	case EventReact:
		r.handleReaction(sess, ev.Data)
	default:
		r.fail(sess, "unknown event type")
	}
}

func (r *Relay) handleJoin(sess Session, data json.RawMessage) {
	var p JoinNestPayload
	if err := r.decode(data, &p); err != nil {
		r.fail(sess, "malformed join_nest payload")
		return
	}
	userID := r.identityFor(sess, p.UserID)
	if userID == "" {
		r.fail(sess, "missing user_id")
		return
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	ban, err := r.store.GetBan(ctx, p.NestID, userID)
	if err != nil {
		r.failStore(sess, "join_nest", err)
		return
	}
	if ban != nil {
		r.fail(sess, "banned")
		return
	}

	if r.registry.Join(sess, p.NestID, userID) {
		r.registry.Broadcast(p.NestID, Envelope{
			Type: EventUserJoined,
			Data: PresencePayload{UserID: userID, NestID: p.NestID},
		}, sess)
	}
}

func (r *Relay) handleLeave(sess Session, data json.RawMessage) {
	var p LeaveNestPayload
	if err := r.decode(data, &p); err != nil {
		r.fail(sess, "malformed leave_nest payload")
		return
	}
	if userID, removed := r.registry.Leave(sess, p.NestID); removed {
		r.registry.Broadcast(p.NestID, Envelope{
			Type: EventUserLeft,
			Data: PresencePayload{UserID: userID, NestID: p.NestID},
		}, sess)
	}
}

func (r *Relay) handleSendMessage(sess Session, data json.RawMessage) {
	var p SendMessagePayload
	if err := r.decode(data, &p); err != nil {
		r.fail(sess, "malformed send_message payload")
		return
	}
	userID := r.identityFor(sess, p.UserID)
	if userID == "" {
		r.fail(sess, "missing user_id")
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		r.fail(sess, "empty message")
		return
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	ban, err := r.store.GetBan(ctx, p.NestID, userID)
	if err != nil {
		r.failStore(sess, "send_message", err)
		return
	}
	if ban != nil {
		r.fail(sess, "banned")
		return
	}

	// The server owns the display identity. An anonymous message gets the
	// provided alias or a generated one; any alias on a non-anonymous
	// message is discarded.
	var anonName *string
	if p.IsAnonymous {
		if p.AnonymousName != nil && strings.TrimSpace(*p.AnonymousName) != "" {
			anonName = p.AnonymousName
		} else {
			name := aura.AnonymousName()
			anonName = &name
		}
	}

	msg, err := r.store.InsertMessage(ctx, store.InsertMessageParams{
		NestID:        p.NestID,
		UserID:        userID,
		Content:       p.Content,
		ReplyToID:     p.ReplyToID,
		IsAnonymous:   p.IsAnonymous,
		AnonymousName: anonName,
	})
	if err != nil {
		r.failStore(sess, "send_message", err)
		return
	}

	// Points are bookkeeping; message delivery never waits on them or fails
	// with them.
	if _, _, err := r.ledger.ApplyDelta(ctx, userID, aura.MessagePoints); err != nil {
		log.Printf("aura delta for message %s author %s failed: %v", msg.ID, userID, err)
	}

	hydrated, err := r.store.GetMessage(ctx, msg.ID)
	if err != nil {
		log.Printf("hydrating message %s failed, broadcasting bare record: %v", msg.ID, err)
		hydrated = msg
	}
	r.registry.Broadcast(p.NestID, Envelope{
		Type: EventNewMessage,
		Data: MessagePayloadFrom(hydrated),
	}, nil) // the sender reconciles against the authoritative copy too
}

func (r *Relay) handleReaction(sess Session, data json.RawMessage) {
	var p ReactPayload
	if err := r.decode(data, &p); err != nil {
		r.fail(sess, "malformed react_to_message payload")
		return
	}
	userID := r.identityFor(sess, p.UserID)
	if userID == "" {
		r.fail(sess, "missing user_id")
		return
	}
	reaction := models.ReactionType(p.ReactionType)

	ctx, cancel := r.opCtx()
	defer cancel()

	msg, err := r.store.GetMessage(ctx, p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		r.fail(sess, "message not found")
		return
	}
	if err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}

	// Reactions carry the same gate as posting: the connection must be in the
	// room, and the user must not hold an active ban there.
	if !r.registry.InRoom(sess, msg.NestID) {
		r.fail(sess, "not in nest")
		return
	}
	ban, err := r.store.GetBan(ctx, msg.NestID, userID)
	if err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}
	if ban != nil {
		r.fail(sess, "banned")
		return
	}

	role, err := r.roleFor(ctx, sess, userID)
	if err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}

	existing, err := r.store.GetReaction(ctx, p.MessageID, userID)
	if err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}

	var delta int
	switch {
	case existing != nil && existing.ReactionType == reaction:
		// Toggle off: remove and reverse the original point effect.
		if err := r.store.DeleteReaction(ctx, existing.ID); err != nil {
			r.failStore(sess, "react_to_message", err)
			return
		}
		delta = -aura.ReactionDelta(role, reaction)
	case existing != nil:
		// Replace: one stored reaction per (message, user), net delta.
		if err := r.store.DeleteReaction(ctx, existing.ID); err != nil {
			r.failStore(sess, "react_to_message", err)
			return
		}
		if _, err := r.store.InsertReaction(ctx, p.MessageID, userID, reaction); err != nil {
			r.failStore(sess, "react_to_message", err)
			return
		}
		delta = aura.ReactionDelta(role, reaction) - aura.ReactionDelta(role, existing.ReactionType)
	default:
		if _, err := r.store.InsertReaction(ctx, p.MessageID, userID, reaction); err != nil {
			r.failStore(sess, "react_to_message", err)
			return
		}
		delta = aura.ReactionDelta(role, reaction)
	}

	// Points land on the author, never the reactor, and self-reactions only
	// toggle state.
	if delta != 0 && userID != msg.UserID {
		if _, _, err := r.ledger.ApplyDelta(ctx, msg.UserID, delta); err != nil {
			log.Printf("aura delta for reaction on %s failed: %v", p.MessageID, err)
		}
	}

	up, down, err := r.store.ReactionCounts(ctx, p.MessageID)
	if err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}
	if err := r.store.UpdateMessageCounts(ctx, p.MessageID, up, down); err != nil {
		r.failStore(sess, "react_to_message", err)
		return
	}

	r.registry.Broadcast(msg.NestID, Envelope{
		Type: EventReactionUpdated,
		Data: ReactionUpdatePayload{MessageID: p.MessageID, Upvotes: up, Downvotes: down},
	}, nil)
}

func (r *Relay) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.persistTimeout)
}

func (r *Relay) decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return r.validate.Struct(v)
}

// identityFor prefers the connection's verified identity and falls back to
// the client-supplied id only on unverified connections.
func (r *Relay) identityFor(sess Session, payloadUserID string) string {
	if userID, _, verified := sess.Identity(); verified {
		return userID
	}
	return payloadUserID
}

func (r *Relay) roleFor(ctx context.Context, sess Session, userID string) (models.Role, error) {
	if _, role, verified := sess.Identity(); verified && role != "" {
		return role, nil
	}
	user, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (r *Relay) fail(sess Session, msg string) {
	sess.Enqueue(Envelope{Type: EventError, Data: ErrorPayload{Message: msg}})
}

func (r *Relay) failStore(sess Session, op string, err error) {
	log.Printf("%s persistence failed: %v", op, err)
	if errors.Is(err, context.DeadlineExceeded) {
		r.fail(sess, "timeout")
		return
	}
	r.fail(sess, "persist_failed")
}
