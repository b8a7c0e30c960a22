package store

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/huenest/relay/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// InsertMessageParams are the fields of a new message. Reaction counters are
// zero-initialized by the store.
type InsertMessageParams struct {
	NestID        string
	UserID        string
	Content       string
	ReplyToID     *string
	IsAnonymous   bool
	AnonymousName *string
}

// Store is the persistence surface consumed by the relay, the ledger and the
// HTTP query handlers. The durable store itself is external; this interface
// is the contract the relay holds it to.
type Store interface {
	InsertMessage(ctx context.Context, p InsertMessageParams) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, nestID string) ([]models.Message, error)
	HideMessage(ctx context.Context, id string) error

	GetReaction(ctx context.Context, messageID, userID string) (*models.MessageReaction, error)
	InsertReaction(ctx context.Context, messageID, userID string, t models.ReactionType) (*models.MessageReaction, error)
	DeleteReaction(ctx context.Context, id string) error
	ReactionCounts(ctx context.Context, messageID string) (up, down int, err error)
	UpdateMessageCounts(ctx context.Context, messageID string, up, down int) error

	GetBan(ctx context.Context, nestID, userID string) (*models.NestBan, error)
	InsertBan(ctx context.Context, ban *models.NestBan) error
	InsertModerationAction(ctx context.Context, action *models.ModerationAction) error
	RemoveMember(ctx context.Context, nestID, userID string) error
	RefreshMemberCount(ctx context.Context, nestID string) (int, error)

	GetNest(ctx context.Context, id string) (*models.Nest, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserPoints(ctx context.Context, userID string) (int, error)
	SetUserAura(ctx context.Context, userID string, points, level int) error
}

// GormStore implements Store over a GORM connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InsertMessage(ctx context.Context, p InsertMessageParams) (*models.Message, error) {
	msg := models.Message{
		NestID:        p.NestID,
		UserID:        p.UserID,
		Content:       p.Content,
		ReplyToID:     p.ReplyToID,
		IsAnonymous:   p.IsAnonymous,
		AnonymousName: p.AnonymousName,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessage returns a visible message with its author and one-level reply
// preview preloaded. A hidden reply target is left out, so deleted content
// never resurfaces through previews.
func (s *GormStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("ReplyTo", "hidden = ?", false).
		Preload("ReplyTo.Author").
		Where("hidden = ?", false).
		First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns a nest's visible messages in server-timestamp order,
// hydrated the same way GetMessage hydrates a single one.
func (s *GormStore) ListMessages(ctx context.Context, nestID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("ReplyTo", "hidden = ?", false).
		Preload("ReplyTo.Author").
		Where("nest_id = ? AND hidden = ?", nestID, false).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *GormStore) HideMessage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("hidden", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetReaction returns the user's reaction on a message, or (nil, nil) when
// the user holds none.
func (s *GormStore) GetReaction(ctx context.Context, messageID, userID string) (*models.MessageReaction, error) {
	var reaction models.MessageReaction
	err := s.db.WithContext(ctx).
		First(&reaction, "message_id = ? AND user_id = ?", messageID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

func (s *GormStore) InsertReaction(ctx context.Context, messageID, userID string, t models.ReactionType) (*models.MessageReaction, error) {
	reaction := models.MessageReaction{
		MessageID:    messageID,
		UserID:       userID,
		ReactionType: t,
	}
	if err := s.db.WithContext(ctx).Create(&reaction).Error; err != nil {
		return nil, err
	}
	return &reaction, nil
}

func (s *GormStore) DeleteReaction(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.MessageReaction{}, "id = ?", id).Error
}

// ReactionCounts recomputes the aggregate from the reaction table. The
// counters on the message row are a cache of this, never incremented ad hoc,
// so concurrent toggles cannot drift from the true count.
func (s *GormStore) ReactionCounts(ctx context.Context, messageID string) (up, down int, err error) {
	var reactions []models.MessageReaction
	if err := s.db.WithContext(ctx).
		Find(&reactions, "message_id = ?", messageID).Error; err != nil {
		return 0, 0, err
	}
	byType := lo.CountValuesBy(reactions, func(r models.MessageReaction) models.ReactionType {
		return r.ReactionType
	})
	return byType[models.ReactionUpvote], byType[models.ReactionDownvote], nil
}

func (s *GormStore) UpdateMessageCounts(ctx context.Context, messageID string, up, down int) error {
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{"upvotes": up, "downvotes": down}).Error
}

// GetBan returns the user's active ban on a nest, or (nil, nil) when there is
// none. Expired bans do not count.
func (s *GormStore) GetBan(ctx context.Context, nestID, userID string) (*models.NestBan, error) {
	var bans []models.NestBan
	err := s.db.WithContext(ctx).
		Where("nest_id = ? AND user_id = ?", nestID, userID).
		Order("created_at desc").
		Find(&bans).Error
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range bans {
		if bans[i].Active(now) {
			return &bans[i], nil
		}
	}
	return nil, nil
}

func (s *GormStore) InsertBan(ctx context.Context, ban *models.NestBan) error {
	return s.db.WithContext(ctx).Create(ban).Error
}

func (s *GormStore) InsertModerationAction(ctx context.Context, action *models.ModerationAction) error {
	return s.db.WithContext(ctx).Create(action).Error
}

func (s *GormStore) RemoveMember(ctx context.Context, nestID, userID string) error {
	return s.db.WithContext(ctx).
		Delete(&models.NestMember{}, "nest_id = ? AND user_id = ?", nestID, userID).Error
}

// RefreshMemberCount recounts a nest's membership rows and writes the cached
// member_count on the nest.
func (s *GormStore) RefreshMemberCount(ctx context.Context, nestID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.NestMember{}).
		Where("nest_id = ?", nestID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	err := s.db.WithContext(ctx).
		Model(&models.Nest{}).
		Where("id = ?", nestID).
		Update("member_count", int(count)).Error
	return int(count), err
}

func (s *GormStore) GetNest(ctx context.Context, id string) (*models.Nest, error) {
	var nest models.Nest
	err := s.db.WithContext(ctx).First(&nest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &nest, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUserPoints(ctx context.Context, userID string) (int, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.AuraPoints, nil
}

func (s *GormStore) SetUserAura(ctx context.Context, userID string, points, level int) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"aura_points": points, "aura_level": level})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
