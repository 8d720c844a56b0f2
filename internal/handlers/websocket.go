package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/middleware"
	"github.com/AlexDid/simple-debts-api/internal/services"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.EventsHub
	userService *services.UserService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.EventsHub, userService *services.UserService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := middleware.ValidateWebSocketToken(token, h.userService)
	if err != nil {
		respondError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to upgrade connection")
		return
	}

	h.hub.Register(userID, conn)

	go h.pingLoop(userID, conn)
	go h.readLoop(userID, conn)
}

// readLoop drains incoming frames to keep the connection alive. The
// hub is push-only; client frames carry nothing actionable.
func (h *WebSocketHandler) readLoop(userID string, conn *websocket.Conn) {
	defer h.hub.Unregister(userID)

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("user_id", userID).Msg("WebSocket read failed")
			}
			return
		}
	}
}

func (h *WebSocketHandler) pingLoop(userID string, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if !h.hub.IsOnline(userID) {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
			return
		}
	}
}
