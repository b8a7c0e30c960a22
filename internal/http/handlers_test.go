package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huenest/relay/internal/aura"
	"github.com/huenest/relay/internal/config"
	"github.com/huenest/relay/internal/models"
	"github.com/huenest/relay/internal/store"
	"github.com/huenest/relay/internal/ws"
)

const testAdminToken = "test-admin-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, adminToken string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	st := store.NewGormStore(db)
	hub := ws.NewHub(st, aura.NewLedger(st), ws.Options{})

	router := gin.New()
	SetupRoutes(router, config.Config{AdminToken: adminToken, CORSOrigin: "*"}, st, hub, nil)
	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func adminHeader() map[string]string {
	return map[string]string{"X-Admin-Token": testAdminToken}
}

func TestGetNestMessagesHydrated(t *testing.T) {
	req := require.New(t)
	router, db := newTestRouter(t, testAdminToken)

	req.NoError(db.Create(&models.User{
		ID: "alice", Email: "alice@example.com", Name: "Alice", Username: "alice", AuraLevel: 3,
	}).Error)

	alias := "BraveOtter42"
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req.NoError(db.Create(&models.Message{
		ID: "m1", NestID: "nest-1", UserID: "alice", Content: "hello", CreatedAt: base,
	}).Error)
	req.NoError(db.Create(&models.Message{
		ID: "m2", NestID: "nest-1", UserID: "alice", Content: "secret",
		IsAnonymous: true, AnonymousName: &alias, CreatedAt: base.Add(time.Second),
	}).Error)
	req.NoError(db.Create(&models.Message{
		ID: "m3", NestID: "nest-1", UserID: "alice", Content: "gone",
		Hidden: true, CreatedAt: base.Add(2 * time.Second),
	}).Error)

	w := doJSON(t, router, http.MethodGet, "/api/nests/nest-1/messages", nil, nil)
	req.Equal(http.StatusOK, w.Code)

	var got []ws.MessagePayload
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Len(got, 2)

	req.Equal("m1", got[0].ID)
	req.Equal("alice", got[0].UserID)
	req.Equal("Alice", got[0].DisplayName)
	req.Equal(3, got[0].AuraLevel)

	req.Equal("m2", got[1].ID)
	req.Empty(got[1].UserID)
	req.Equal(alias, got[1].DisplayName)
	req.Zero(got[1].AuraLevel)
}

func TestAdminEndpointsFailClosedWithoutConfiguredToken(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, "")

	w := doJSON(t, router, http.MethodDelete, "/api/messages/m1", ModerationInput{ActorID: "mod"}, adminHeader())
	req.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestAdminTokenChecks(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, testAdminToken)

	w := doJSON(t, router, http.MethodDelete, "/api/messages/m1", ModerationInput{ActorID: "mod"}, nil)
	req.Equal(http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/messages/m1", ModerationInput{ActorID: "mod"},
		map[string]string{"X-Admin-Token": "wrong"})
	req.Equal(http.StatusForbidden, w.Code)
}

func TestDeleteMessageHidesAndAudits(t *testing.T) {
	req := require.New(t)
	router, db := newTestRouter(t, testAdminToken)

	req.NoError(db.Create(&models.Message{
		ID: "m1", NestID: "nest-1", UserID: "alice", Content: "rule-breaking",
	}).Error)

	w := doJSON(t, router, http.MethodDelete, "/api/messages/m1",
		ModerationInput{ActorID: "mod", Reason: "spam"}, adminHeader())
	req.Equal(http.StatusOK, w.Code)

	var msg models.Message
	req.NoError(db.First(&msg, "id = ?", "m1").Error)
	req.True(msg.Hidden)

	var action models.ModerationAction
	req.NoError(db.First(&action, "action_type = ?", "delete_message").Error)
	req.Equal("nest-1", action.NestID)
	req.Equal("alice", action.TargetID)
	req.Equal("mod", action.ActorID)
	req.Equal("spam", action.Reason)

	w = doJSON(t, router, http.MethodGet, "/api/nests/nest-1/messages", nil, nil)
	req.Equal(http.StatusOK, w.Code)
	var got []ws.MessagePayload
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Empty(got)
}

func TestDeleteMessageNotFound(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, testAdminToken)

	w := doJSON(t, router, http.MethodDelete, "/api/messages/missing",
		ModerationInput{ActorID: "mod"}, adminHeader())
	req.Equal(http.StatusNotFound, w.Code)
}

func TestBanMemberRemovesMembershipAndCountsDown(t *testing.T) {
	req := require.New(t)
	router, db := newTestRouter(t, testAdminToken)

	req.NoError(db.Create(&models.Nest{ID: "nest-1", Name: "Study Hall", MemberCount: 1}).Error)
	req.NoError(db.Create(&models.NestMember{NestID: "nest-1", UserID: "alice"}).Error)

	w := doJSON(t, router, http.MethodPost, "/api/nests/nest-1/bans",
		BanInput{UserID: "alice", ActorID: "mod", Reason: "harassment"}, adminHeader())
	req.Equal(http.StatusCreated, w.Code)

	var ban models.NestBan
	req.NoError(db.First(&ban, "nest_id = ? AND user_id = ?", "nest-1", "alice").Error)
	req.True(ban.Active(time.Now()))
	req.Equal("mod", ban.BannedBy)

	var members int64
	req.NoError(db.Model(&models.NestMember{}).Where("nest_id = ?", "nest-1").Count(&members).Error)
	req.Zero(members)

	var nest models.Nest
	req.NoError(db.First(&nest, "id = ?", "nest-1").Error)
	req.Zero(nest.MemberCount)

	var action models.ModerationAction
	req.NoError(db.First(&action, "action_type = ?", "ban").Error)
	req.Equal("alice", action.TargetID)
}

func TestKickMemberRemovesMembership(t *testing.T) {
	req := require.New(t)
	router, db := newTestRouter(t, testAdminToken)

	req.NoError(db.Create(&models.Nest{ID: "nest-1", Name: "Study Hall", MemberCount: 1}).Error)
	req.NoError(db.Create(&models.NestMember{NestID: "nest-1", UserID: "alice"}).Error)

	w := doJSON(t, router, http.MethodDelete, "/api/nests/nest-1/members/alice",
		ModerationInput{ActorID: "mod", Reason: "inactive"}, adminHeader())
	req.Equal(http.StatusOK, w.Code)

	var members int64
	req.NoError(db.Model(&models.NestMember{}).Where("nest_id = ?", "nest-1").Count(&members).Error)
	req.Zero(members)

	// A kicked user holds no ban and may rejoin.
	var bans int64
	req.NoError(db.Model(&models.NestBan{}).Count(&bans).Error)
	req.Zero(bans)

	var action models.ModerationAction
	req.NoError(db.First(&action, "action_type = ?", "kick").Error)
	req.Equal("alice", action.TargetID)
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, testAdminToken)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	req.Equal(http.StatusOK, w.Code)
}
