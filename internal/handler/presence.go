package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
	logger  *slog.Logger
}

func NewPresenceHandler(t *presence.Tracker, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{tracker: t, logger: logger}
}

type heartbeatRequest struct {
	Online         *bool  `json:"online"`
	ConversationID *int64 `json:"conversation_id"`
}

// Heartbeat handles POST /api/presence/heartbeat. An empty body means online.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	online := true
	if req.Online != nil {
		online = *req.Online
	}

	if err := h.tracker.Heartbeat(r.Context(), auth.UserID(r.Context()), online, req.ConversationID); err != nil {
		h.logger.Error("presence heartbeat", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to record heartbeat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/presence/{user_id}
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}

	st, err := h.tracker.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("presence status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load presence")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
