package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/services"
)

// ProgressImageHandler renders the check-in heatmap PNG for a plan, used in
// reminder emails and share links.
type ProgressImageHandler struct {
	service PlanServiceInterface
}

func NewProgressImageHandler(service PlanServiceInterface) *ProgressImageHandler {
	return &ProgressImageHandler{service: service}
}

func (h *ProgressImageHandler) Render(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	planID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan id")
		return
	}

	plan, err := h.service.Get(r.Context(), email, planID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "Plan not found")
		default:
			logging.Error("Loading plan for image failed", map[string]interface{}{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	year := time.Now().Year()
	if start, err := time.Parse("2006-01-02", plan.StartDate); err == nil {
		year = start.Year()
	}

	data, err := services.RenderProgressPNG(plan.Title, year, plan.Progress)
	if err != nil {
		logging.Error("Rendering progress image failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}
