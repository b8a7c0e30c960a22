package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a platform-wide user role.
type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Privileged reports whether the role carries moderator weight for reactions.
func (r Role) Privileged() bool {
	return r == RoleModerator || r == RoleAdmin || r == RoleSuperAdmin
}

// NestRole is a per-nest membership role.
type NestRole string

const (
	NestRoleMember    NestRole = "member"
	NestRoleModerator NestRole = "moderator"
	NestRoleAdmin     NestRole = "admin"
)

// ReactionType is the kind of reaction a user can hold on a message.
type ReactionType string

const (
	ReactionUpvote   ReactionType = "upvote"
	ReactionDownvote ReactionType = "downvote"
)

// Valid reports whether t is one of the known reaction types.
func (t ReactionType) Valid() bool {
	return t == ReactionUpvote || t == ReactionDownvote
}

// User is the identity/profile row. The relay only reads id, name, username,
// role and aura fields, and writes aura_points/aura_level; everything else is
// owned by the profile service.
type User struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	Name       string    `gorm:"not null" json:"name"`
	Username   string    `gorm:"uniqueIndex" json:"username"`
	AuraPoints int       `gorm:"not null;default:0" json:"aura_points"`
	AuraLevel  int       `gorm:"not null;default:1" json:"aura_level"`
	Role       Role      `gorm:"not null;default:user" json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Nest is a themed group chat room.
type Nest struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	AvatarURL   *string   `json:"avatar_url"`
	IsPrivate   bool      `gorm:"not null;default:false" json:"is_private"`
	MemberCount int       `gorm:"not null;default:0" json:"member_count"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NestMember is a (nest, user) membership, unique per pair.
type NestMember struct {
	ID       string    `gorm:"primaryKey" json:"id"`
	NestID   string    `gorm:"not null;uniqueIndex:idx_nest_member" json:"nest_id"`
	UserID   string    `gorm:"not null;uniqueIndex:idx_nest_member" json:"user_id"`
	Role     NestRole  `gorm:"not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Message is a chat message. Immutable after insert except for the two
// reaction counters and the hidden flag set by moderator deletion.
type Message struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	NestID        string            `gorm:"not null;index" json:"nest_id"`
	UserID        string            `gorm:"not null;index" json:"user_id"`
	Content       string            `gorm:"not null" json:"content"`
	ReplyToID     *string           `gorm:"index" json:"reply_to_id"`
	IsAnonymous   bool              `gorm:"not null;default:false" json:"is_anonymous"`
	AnonymousName *string           `json:"anonymous_name"`
	Upvotes       int               `gorm:"not null;default:0" json:"upvotes"`
	Downvotes     int               `gorm:"not null;default:0" json:"downvotes"`
	Hidden        bool              `gorm:"not null;default:false" json:"-"` // Hidden from API responses
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Author        *User             `gorm:"foreignKey:UserID;references:ID" json:"-"`
	ReplyTo       *Message          `gorm:"foreignKey:ReplyToID;references:ID" json:"-"`
	Reactions     []MessageReaction `gorm:"foreignKey:MessageID" json:"-"`
}

// MessageReaction is a (message, user) reaction, unique per pair. A user
// holds at most one reaction per message; a different type replaces it.
type MessageReaction struct {
	ID           string       `gorm:"primaryKey" json:"id"`
	MessageID    string       `gorm:"not null;uniqueIndex:idx_message_reaction" json:"message_id"`
	UserID       string       `gorm:"not null;uniqueIndex:idx_message_reaction" json:"user_id"`
	ReactionType ReactionType `gorm:"not null" json:"reaction_type"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NestBan blocks a user from rejoining and posting in a nest, indefinitely
// or until ExpiresAt.
type NestBan struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	NestID    string     `gorm:"not null;index:idx_nest_ban" json:"nest_id"`
	UserID    string     `gorm:"not null;index:idx_nest_ban" json:"user_id"`
	BannedBy  string     `json:"banned_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Active reports whether the ban is in effect at the given instant.
func (b *NestBan) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// ModerationAction is one row of the append-only moderation audit log.
type ModerationAction struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	NestID     string    `gorm:"not null;index" json:"nest_id"`
	TargetID   string    `gorm:"not null" json:"target_id"`
	ActorID    string    `gorm:"not null" json:"actor_id"`
	ActionType string    `gorm:"not null" json:"action_type"` // kick, ban, unban, promote, delete_message
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// BeforeCreate hooks assign uuid primary keys when the caller did not.

func (u *User) BeforeCreate(*gorm.DB) error             { u.ID = orNewID(u.ID); return nil }
func (n *Nest) BeforeCreate(*gorm.DB) error             { n.ID = orNewID(n.ID); return nil }
func (m *NestMember) BeforeCreate(*gorm.DB) error       { m.ID = orNewID(m.ID); return nil }
func (m *Message) BeforeCreate(*gorm.DB) error          { m.ID = orNewID(m.ID); return nil }
func (r *MessageReaction) BeforeCreate(*gorm.DB) error  { r.ID = orNewID(r.ID); return nil }
func (b *NestBan) BeforeCreate(*gorm.DB) error          { b.ID = orNewID(b.ID); return nil }
func (a *ModerationAction) BeforeCreate(*gorm.DB) error { a.ID = orNewID(a.ID); return nil }

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&User{}, &Nest{}, &NestMember{}, &Message{},
		&MessageReaction{}, &NestBan{}, &ModerationAction{},
	}
}
