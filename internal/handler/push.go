package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/store"
)

type PushHandler struct {
	pushStore  *store.PushStore
	dispatcher *push.Dispatcher
	publicKey  string
	logger     *slog.Logger
}

func NewPushHandler(ps *store.PushStore, d *push.Dispatcher, publicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, dispatcher: d, publicKey: publicKey, logger: logger}
}

// subscribeRequest accepts both a flat body and the browser's
// PushSubscription.toJSON() shape with nested keys.
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.P256dh == "" {
		req.P256dh = req.Keys.P256dh
	}
	if req.Auth == "" {
		req.Auth = req.Keys.Auth
	}

	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "invalid_subscription", "endpoint, p256dh, and auth are required")
		return
	}
	if u, err := url.Parse(req.Endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid_subscription", "endpoint must be an https URL")
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	deleted, err := h.pushStore.DeleteSubscription(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete subscription")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "subscription not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list subscriptions")
		return
	}
	if subs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusNotFound, "push_disabled", "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

// TestNotification handles POST /api/push/test. It waits for the fan-out so
// the caller sees what reached their devices.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	report, err := h.dispatcher.Send(r.Context(), auth.UserID(r.Context()), push.Message{
		Title: "Test Notification",
		Body:  "Push notifications are working!",
		Type:  model.NotifTypeTest,
		URL:   "/settings",
		Tag:   "test",
	})
	if err != nil {
		h.logger.Error("test notification", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to send test notification")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
