package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/reminder"
)

type ReminderHandler struct {
	manager *reminder.Manager
	logger  *slog.Logger
}

func NewReminderHandler(m *reminder.Manager, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{manager: m, logger: logger}
}

type createReminderRequest struct {
	RecipientID       int64              `json:"recipient_id"`
	ReminderType      model.ReminderType `json:"reminder_type"`
	Title             string             `json:"title"`
	Description       *string            `json:"description"`
	EventDate         time.Time          `json:"event_date"`
	Location          *string            `json:"location"`
	RemindBeforeHours []int              `json:"remind_before_hours"`
}

// Create handles POST /api/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req createReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.manager.Create(r.Context(), reminder.CreateInput{
		SenderID:    ac.UserID,
		SenderName:  ac.DisplayName,
		RecipientID: req.RecipientID,
		Type:        req.ReminderType,
		Title:       req.Title,
		Description: req.Description,
		EventDate:   req.EventDate,
		Location:    req.Location,
		Offsets:     req.RemindBeforeHours,
	})
	if err != nil {
		writeReminderError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rem)
}

type respondRequest struct {
	ReminderID        int64                `json:"reminder_id"`
	Status            model.ReminderStatus `json:"status"`
	ResponseMessage   *string              `json:"response_message"`
	RemindBeforeHours []int                `json:"remind_before_hours"`
}

// Respond handles PATCH /api/reminders
func (h *ReminderHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReminderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "reminder_id is required")
		return
	}

	rem, err := h.manager.Respond(r.Context(), reminder.RespondInput{
		ReminderID:    req.ReminderID,
		ResponderID:   ac.UserID,
		ResponderName: ac.DisplayName,
		Status:        req.Status,
		Message:       req.ResponseMessage,
		Offsets:       req.RemindBeforeHours,
	})
	if err != nil {
		writeReminderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// List handles GET /api/reminders?type=&status=
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := h.manager.List(r.Context(), auth.UserID(r.Context()), reminder.Filter{
		Type:   q.Get("type"),
		Status: model.ReminderStatus(q.Get("status")),
	})
	if err != nil {
		writeReminderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Get handles GET /api/reminders/{id}
func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	item, err := h.manager.Get(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeReminderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/reminders/{id}
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	if err := h.manager.Delete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		writeReminderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
