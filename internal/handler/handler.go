package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dukerupert/nudge/internal/reminder"
)

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON")
		return false
	}
	return true
}

// writeReminderError maps lifecycle errors onto HTTP statuses. Anything
// unrecognised is a 500 without detail.
func writeReminderError(w http.ResponseWriter, err error) {
	var re *reminder.Error
	if !errors.As(err, &re) {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reminder.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, reminder.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, reminder.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reminder.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, reminder.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	msg := re.Message
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, re.Code, msg)
}
