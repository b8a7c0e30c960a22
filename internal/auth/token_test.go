package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/huenest/relay/internal/models"
)

func signToken(t *testing.T, secret, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	identity, err := v.Verify(signToken(t, "secret", "alice", "moderator"))
	req.NoError(err)
	req.Equal("alice", identity.UserID)
	req.Equal(models.RoleModerator, identity.Role)
}

func TestVerifierDefaultsRole(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	identity, err := v.Verify(signToken(t, "secret", "alice", ""))
	req.NoError(err)
	req.Equal(models.RoleUser, identity.Role)
}

func TestVerifierRejectsBadSignature(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	_, err := v.Verify(signToken(t, "other-secret", "alice", "user"))
	req.Error(err)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	req.NoError(err)

	_, err = v.Verify(token)
	req.Error(err)
}

func TestNewVerifierEmptySecretDisablesAuth(t *testing.T) {
	require.Nil(t, NewVerifier(""))
}

func TestFromRequestHeaderAndQuery(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")
	token := signToken(t, "secret", "alice", "user")

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	identity, err := v.FromRequest(r)
	req.NoError(err)
	req.Equal("alice", identity.UserID)

	r = httptest.NewRequest("GET", "/ws?token="+token, nil)
	identity, err = v.FromRequest(r)
	req.NoError(err)
	req.Equal("alice", identity.UserID)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = v.FromRequest(r)
	req.ErrorIs(err, ErrNoToken)
}
