package http

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/huenest/relay/internal/models"
	"github.com/huenest/relay/internal/store"
	"github.com/huenest/relay/internal/ws"
)

// --- Configuration Constants ---
const (
	rateLimitRPS   = 1.0 / 3.0 // 1 request every 3 seconds
	rateLimitBurst = 1

	deletedByModeratorReason = "Message deleted by moderator"
)

// --- Structs for request binding ---
type BanInput struct {
	UserID    string     `json:"user_id" binding:"required"`
	ActorID   string     `json:"actor_id" binding:"required"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type ModerationInput struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// --- Rate Limiter ---
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.RWMutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		mu:       sync.RWMutex{},
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please wait."})
			return
		}
		c.Next()
	}
}

// --- Handlers ---
type Env struct {
	Store store.Store
	Hub   *ws.Hub
}

// GetNestMessages returns a nest's message history, hydrated exactly like
// the relay's broadcasts so clients reconcile against one shape.
func (e *Env) GetNestMessages(c *gin.Context) {
	nestID := c.Param("id")
	msgs, err := e.Store.ListMessages(c.Request.Context(), nestID)
	if err != nil {
		log.Printf("Error fetching messages for nest %s: %v", nestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	payloads := lo.Map(msgs, func(m models.Message, _ int) ws.MessagePayload {
		return ws.MessagePayloadFrom(&m)
	})
	c.JSON(http.StatusOK, payloads)
}

// DeleteMessage hides a message, records the moderation action and tells the
// nest the message is gone.
func (e *Env) DeleteMessage(c *gin.Context) {
	messageID := c.Param("id")
	var input ModerationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	msg, err := e.Store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		log.Printf("Error loading message %s: %v", messageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	if err := e.Store.HideMessage(ctx, messageID); err != nil {
		log.Printf("Error hiding message %s: %v", messageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	reason := input.Reason
	if reason == "" {
		reason = deletedByModeratorReason
	}
	if err := e.Store.InsertModerationAction(ctx, &models.ModerationAction{
		NestID:     msg.NestID,
		TargetID:   msg.UserID,
		ActorID:    input.ActorID,
		ActionType: "delete_message",
		Reason:     reason,
	}); err != nil {
		// Audit failure does not undo the hide; the log is the fallback.
		log.Printf("Error recording delete_message action for %s: %v", messageID, err)
	}

	e.Hub.BroadcastToNest(msg.NestID, ws.Envelope{
		Type: ws.EventMessageDeleted,
		Data: ws.MessageDeletedPayload{MessageID: messageID},
	})

	c.JSON(http.StatusOK, gin.H{"message": "Message hidden successfully"})
}

// BanMember adds an active ban, drops the membership and records the action.
// A banned user's live connections keep receiving until they disconnect, but
// join_nest and send_message reject them immediately.
func (e *Env) BanMember(c *gin.Context) {
	nestID := c.Param("id")
	var input BanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	ban := models.NestBan{
		NestID:    nestID,
		UserID:    input.UserID,
		BannedBy:  input.ActorID,
		Reason:    input.Reason,
		ExpiresAt: input.ExpiresAt,
	}
	if err := e.Store.InsertBan(ctx, &ban); err != nil {
		log.Printf("Error banning %s from nest %s: %v", input.UserID, nestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ban member"})
		return
	}

	if err := e.Store.InsertModerationAction(ctx, &models.ModerationAction{
		NestID:     nestID,
		TargetID:   input.UserID,
		ActorID:    input.ActorID,
		ActionType: "ban",
		Reason:     input.Reason,
	}); err != nil {
		log.Printf("Error recording ban action for %s: %v", input.UserID, err)
	}

	if err := e.Store.RemoveMember(ctx, nestID, input.UserID); err != nil {
		log.Printf("Error removing banned member %s: %v", input.UserID, err)
	}
	e.refreshMemberCount(c, nestID)

	c.JSON(http.StatusCreated, ban)
}

// KickMember removes a membership and records the action. Unlike a ban the
// user may rejoin.
func (e *Env) KickMember(c *gin.Context) {
	nestID := c.Param("id")
	userID := c.Param("userID")
	var input ModerationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := e.Store.RemoveMember(ctx, nestID, userID); err != nil {
		log.Printf("Error kicking %s from nest %s: %v", userID, nestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to kick member"})
		return
	}

	if err := e.Store.InsertModerationAction(ctx, &models.ModerationAction{
		NestID:     nestID,
		TargetID:   userID,
		ActorID:    input.ActorID,
		ActionType: "kick",
		Reason:     input.Reason,
	}); err != nil {
		log.Printf("Error recording kick action for %s: %v", userID, err)
	}
	e.refreshMemberCount(c, nestID)

	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

// refreshMemberCount recounts the nest's cached member_count. Best effort:
// the cache drifting is cosmetic.
func (e *Env) refreshMemberCount(c *gin.Context, nestID string) {
	if _, err := e.Store.RefreshMemberCount(c.Request.Context(), nestID); err != nil {
		log.Printf("Error refreshing member count for nest %s: %v", nestID, err)
	}
}

func (e *Env) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
