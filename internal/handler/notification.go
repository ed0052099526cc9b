package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/store"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationHandler struct {
	store  *store.NotificationStore
	logger *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: ns, logger: logger}
}

type notificationList struct {
	Notifications []model.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// List handles GET /api/notifications?unread=true&limit=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	q := r.URL.Query()

	limit := defaultNotificationLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	notifs, err := h.store.ListByUser(r.Context(), userID, q.Get("unread") == "true", limit)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list notifications")
		return
	}
	unread, err := h.store.CountUnread(r.Context(), userID)
	if err != nil {
		h.logger.Error("count unread notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list notifications")
		return
	}
	if notifs == nil {
		notifs = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, notificationList{Notifications: notifs, Unread: unread})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	ok, err := h.store.MarkRead(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("mark notification read", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to update notification")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkAllRead(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("mark all notifications read", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
