package ws

import (
	"time"

	"github.com/huenest/relay/internal/models"
)

// Fallback display names, used when hydration has nothing better.
const (
	anonymousFallback = "Anonymous Student"
	unknownFallback   = "Unknown User"
)

// ReplyPreview is the one-level reply reference embedded in a message
// payload. Replies do not nest further.
type ReplyPreview struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
}

// MessagePayload is the hydrated wire form of a message. For anonymous
// messages the author's id, name and aura level are omitted entirely: the
// stored row keeps the real author for moderation, but the broadcast must
// never leak it.
type MessagePayload struct {
	ID            string        `json:"id"`
	NestID        string        `json:"nest_id"`
	UserID        string        `json:"user_id,omitempty"`
	Content       string        `json:"content"`
	ReplyToID     *string       `json:"reply_to_id"`
	IsAnonymous   bool          `json:"is_anonymous"`
	AnonymousName *string       `json:"anonymous_name,omitempty"`
	DisplayName   string        `json:"display_name"`
	AuraLevel     int           `json:"aura_level,omitempty"`
	Upvotes       int           `json:"upvotes"`
	Downvotes     int           `json:"downvotes"`
	CreatedAt     time.Time     `json:"created_at"`
	ReplyTo       *ReplyPreview `json:"reply_to,omitempty"`
}

// MessagePayloadFrom builds the wire form of a stored message. The message is
// expected to carry its Author and ReplyTo (with its own Author) associations
// when they exist; hydration gaps degrade to fallback names, never to errors.
func MessagePayloadFrom(m *models.Message) MessagePayload {
	p := MessagePayload{
		ID:          m.ID,
		NestID:      m.NestID,
		Content:     m.Content,
		ReplyToID:   m.ReplyToID,
		IsAnonymous: m.IsAnonymous,
		Upvotes:     m.Upvotes,
		Downvotes:   m.Downvotes,
		CreatedAt:   m.CreatedAt,
		DisplayName: displayName(m),
	}
	if m.IsAnonymous {
		p.AnonymousName = m.AnonymousName
	} else {
		p.UserID = m.UserID
		if m.Author != nil {
			p.AuraLevel = m.Author.AuraLevel
		}
	}
	if m.ReplyTo != nil {
		p.ReplyTo = &ReplyPreview{
			ID:          m.ReplyTo.ID,
			Content:     m.ReplyTo.Content,
			DisplayName: displayName(m.ReplyTo),
		}
	}
	return p
}

func displayName(m *models.Message) string {
	if m.IsAnonymous {
		if m.AnonymousName != nil && *m.AnonymousName != "" {
			return *m.AnonymousName
		}
		return anonymousFallback
	}
	if m.Author != nil && m.Author.Name != "" {
		return m.Author.Name
	}
	return unknownFallback
}
