package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/middleware"
	"github.com/bellyrush/marketplace/internal/service"
	"github.com/bellyrush/marketplace/internal/websockets"
)

// WebSocketHandler upgrades authenticated clients onto the order event stream
type WebSocketHandler struct {
	hub      *websockets.Hub
	tokens   middleware.TokenVerifier
	upgrader *websocket.Upgrader
}

func NewWebSocketHandler(hub *websockets.Hub, tokens middleware.TokenVerifier, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		tokens:   tokens,
		upgrader: websockets.NewUpgrader(allowedOrigins),
	}
}

// ServeHTTP takes the bearer token from the token query parameter, since
// browsers cannot set headers on a websocket handshake, or from the
// Authorization header.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		api.Unauthorized(w, "token is required")
		return
	}

	sub, err := h.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			api.Unauthorized(w, "token expired")
			return
		}
		api.Unauthorized(w, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		return
	}

	websockets.ServeWs(h.hub, conn, sub)
}
