package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/huenest/relay/internal/models"
)

var ErrNoToken = errors.New("no token presented")

// Identity is the server-verified principal behind a connection.
type Identity struct {
	UserID string
	Role   models.Role
}

// Claims is the token shape issued by the identity collaborator: the user id
// in the subject, the platform role as a custom claim.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens. A nil Verifier means connection
// auth is disabled and the relay trusts client-supplied ids.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for the shared secret, or nil when the
// secret is empty.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.New("invalid token")
	}
	role := models.Role(claims.Role)
	if role == "" {
		role = models.RoleUser
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}

// FromRequest extracts and verifies a token from an upgrade request, looking
// at the Authorization header first and the token query parameter second
// (browser websocket clients cannot set headers).
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return Identity{}, ErrNoToken
	}
	return v.Verify(raw)
}
