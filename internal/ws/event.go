package ws

import "encoding/json"

// Client-to-server event types.
const (
	EventJoinNest    = "join_nest"
	EventLeaveNest   = "leave_nest"
	EventSendMessage = "send_message"
	EventReact       = "react_to_message"
)

// Server-to-client event types.
const (
	EventNewMessage      = "new_message"
	EventReactionUpdated = "message_reaction_updated"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventMessageDeleted  = "message_deleted"
	EventError           = "error"
)

// Event is an inbound frame: a named event with a raw JSON payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope is an outbound frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Inbound payloads. The user_id fields are trusted only when the connection
// carries no verified identity; see Relay.identityFor.

type JoinNestPayload struct {
	NestID string `json:"nest_id" validate:"required"`
	UserID string `json:"user_id"`
}

type LeaveNestPayload struct {
	NestID string `json:"nest_id" validate:"required"`
}

type SendMessagePayload struct {
	NestID        string  `json:"nest_id" validate:"required"`
	UserID        string  `json:"user_id"`
	Content       string  `json:"content"`
	ReplyToID     *string `json:"reply_to_id"`
	IsAnonymous   bool    `json:"is_anonymous"`
	AnonymousName *string `json:"anonymous_name"`
}

type ReactPayload struct {
	MessageID    string `json:"message_id" validate:"required"`
	UserID       string `json:"user_id"`
	ReactionType string `json:"reaction_type" validate:"required,oneof=upvote downvote"`
}

// Outbound payloads.

type ReactionUpdatePayload struct {
	MessageID string `json:"message_id"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	NestID string `json:"nest_id"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
