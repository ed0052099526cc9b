package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/nudge/internal/schedule"
)

type AdminHandler struct {
	sweeper *schedule.Sweeper
	logger  *slog.Logger
}

func NewAdminHandler(sw *schedule.Sweeper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{sweeper: sw, logger: logger}
}

// Sweep handles POST /api/admin/sweep and fires everything due now.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("manual sweep", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	h.logger.Info("manual sweep", "fired", res.Fired, "skipped", res.Skipped, "lost", res.Lost)
	writeJSON(w, http.StatusOK, res)
}
