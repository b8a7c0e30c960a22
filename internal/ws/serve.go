package ws

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/huenest/relay/internal/auth"
	"github.com/huenest/relay/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware in front of the
	// REST routes; the upgrade itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades an HTTP request to a relay connection. When a verifier is
// configured the request must present a valid session token, and the token's
// identity overrides anything the client later claims in event payloads.
func ServeWs(hub *Hub, verifier *auth.Verifier, w http.ResponseWriter, r *http.Request) {
	var userID string
	var role models.Role
	if verifier != nil {
		identity, err := verifier.FromRequest(r)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrNoToken) {
				http.Error(w, "session token required", status)
			} else {
				http.Error(w, "invalid session token", status)
			}
			return
		}
		userID = identity.UserID
		role = identity.Role
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := newClient(hub, conn, userID, role)
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
