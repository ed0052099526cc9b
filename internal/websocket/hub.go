package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

// Message is a real-time event pushed to a user's open sessions.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// PresenceRecorder receives connection lifecycle and heartbeat frames.
type PresenceRecorder interface {
	Heartbeat(ctx context.Context, userID int64, online bool, conversationID *int64) error
}

// Hub tracks open sessions per user. A user is marked online when their
// first session connects and offline when the last one closes.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]map[*Client]struct{}
	presence PresenceRecorder
	logger   *slog.Logger
}

// NewHub creates a new Hub. presence may be nil.
func NewHub(presence PresenceRecorder, logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[int64]map[*Client]struct{}),
		presence: presence,
		logger:   logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1
	h.mu.Unlock()

	if first {
		h.recordPresence(c.userID, true, nil)
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		close(c.send)
	}
	last := ok && len(set) == 0
	if last {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	if last {
		h.recordPresence(c.userID, false, nil)
	}
}

// SendToUser delivers msg to every open session of userID.
func (h *Hub) SendToUser(userID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop the message
		}
	}
}

// PublishNotification forwards a new durable notification to the user's
// live sessions.
func (h *Hub) PublishNotification(userID int64, n *model.Notification) {
	h.SendToUser(userID, NewMessage("notification", "created", n.ID, map[string]any{
		"notification": n,
	}))
}

// IsConnected reports whether the user has at least one open session.
func (h *Hub) IsConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) recordPresence(userID int64, online bool, conversationID *int64) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.Heartbeat(ctx, userID, online, conversationID); err != nil {
		h.logger.Error("record presence", "user_id", userID, "online", online, "error", err)
	}
}
