package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/models"
)

// Event types pushed to connected counterparties.
const (
	EventDebtProposed      = "debt_proposed"
	EventDebtAccepted      = "debt_accepted"
	EventDebtDeclined      = "debt_declined"
	EventDebtUserDeleted   = "debt_user_deleted"
	EventOperationProposed = "operation_proposed"
	EventOperationAccepted = "operation_accepted"
	EventOperationDeclined = "operation_declined"
	EventDeletionProposed  = "operation_deletion_proposed"
	EventOperationDeleted  = "operation_deleted"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EventsHub manages WebSocket connections and pushes debt and
// operation events to the affected counterparty when it is online.
type EventsHub struct {
	mu          sync.RWMutex
	connections map[string]*websocket.Conn
}

// NewEventsHub creates a new events hub
func NewEventsHub() *EventsHub {
	return &EventsHub{
		connections: make(map[string]*websocket.Conn),
	}
}

// Register registers a new WebSocket connection for a user
func (h *EventsHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.Close()
	}
	h.connections[userID] = conn

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a WebSocket connection for a user
func (h *EventsHub) Unregister(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, exists := h.connections[userID]; exists {
		conn.Close()
		delete(h.connections, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// IsOnline checks if a user is online
func (h *EventsHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// SendToUser sends a message to a specific user
func (h *EventsHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	conn, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.Unregister(userID)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// NotifyDebtEvent pushes a debt event to userID if online. Send
// failures are logged, never surfaced: the state change already
// happened.
func (h *EventsHub) NotifyDebtEvent(userID, event string, debt *models.Debt) {
	if !h.IsOnline(userID) {
		return
	}
	if err := h.SendToUser(userID, WSMessage{Type: event, Data: debt}); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("event", event).
			Msg("Failed to push debt event")
	}
}

// NotifyOperationEvent pushes an operation event to userID if online.
func (h *EventsHub) NotifyOperationEvent(userID, event string, op *models.Operation) {
	if !h.IsOnline(userID) {
		return
	}
	if err := h.SendToUser(userID, WSMessage{Type: event, Data: op}); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("event", event).
			Msg("Failed to push operation event")
	}
}
