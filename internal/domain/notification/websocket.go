package notification

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"estatecollab/internal/pkg/jwt"
	"estatecollab/internal/pkg/response"
)

// TokenValidator is satisfied by *jwt.Service.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// WSHandler serves the realtime channel.
type WSHandler struct {
	hub      *Hub
	tokens   TokenValidator
	service  *Service
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, tokens TokenValidator, service *Service, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		tokens:   tokens,
		service:  service,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// HandleWebSocket upgrades the request and streams the user's events.
//
// Endpoint: GET /ws?token=JWT
//
// Browsers cannot set headers on a WebSocket handshake, so the token travels
// in the query string. The first message is always the current unread count.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Token is required. Use ?token=YOUR_JWT_TOKEN")
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}
	userID := claims.UserID

	unread, err := h.service.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to load notification state")
		return
	}
	hello, err := CountEnvelope(unread).Encode()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode notification state")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws_upgrade_failed user_id=%d err=%v", userID, err)
		return
	}

	log.Printf("ws_connected user_id=%d sessions=%d", userID, h.hub.Online(userID)+1)
	h.hub.ServeWS(conn, userID, hello)
	log.Printf("ws_disconnected user_id=%d sessions=%d", userID, h.hub.Online(userID))
}
