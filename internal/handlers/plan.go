package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/calendar"
	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/services"
	"github.com/stridehq/stride/internal/services/ai"
)

// PlanServiceInterface is the plan surface the handler needs.
type PlanServiceInterface interface {
	Create(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error)
	CreateFromGoal(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error)
	Get(ctx context.Context, email string, planID uuid.UUID) (*models.Plan, error)
	SwitchActive(ctx context.Context, email string, planID uuid.UUID) error
	Delete(ctx context.Context, email string, planID uuid.UUID) error
}

type PlanHandler struct {
	service PlanServiceInterface
}

func NewPlanHandler(service PlanServiceInterface) *PlanHandler {
	return &PlanHandler{service: service}
}

type CreatePlanRequest struct {
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Category          string        `json:"category"`
	Icon              string        `json:"icon"`
	Schedule          string        `json:"schedule"`
	CustomDaysPerWeek int           `json:"customDaysPerWeek"`
	Year              int           `json:"year"`
	Tasks             []models.Task `json:"tasks"`
}

type GeneratePlanRequest struct {
	Goal            string `json:"goal"`
	Category        string `json:"category"`
	ExperienceLevel string `json:"experienceLevel"`
	HoursPerDay     int    `json:"hoursPerDay"`
	Schedule        string `json:"schedule"`
	Year            int    `json:"year"`
	Context         string `json:"context"`
}

func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreatePlanRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Year < 2000 || req.Year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	plan, err := h.service.Create(r.Context(), email, models.CreatePlanParams{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Icon:              req.Icon,
		Schedule:          calendar.ScheduleType(req.Schedule),
		CustomDaysPerWeek: req.CustomDaysPerWeek,
		Year:              req.Year,
		Tasks:             req.Tasks,
	})
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

func (h *PlanHandler) Generate(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GeneratePlanRequest
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, "Goal is required")
		return
	}
	if len(req.Goal) > 500 || len(req.Context) > 1000 {
		writeError(w, http.StatusBadRequest, "Input too long")
		return
	}
	if req.Year < 2000 || req.Year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	plan, err := h.service.CreateFromGoal(r.Context(), email, req.Year, calendar.ScheduleType(req.Schedule), req.Category, ai.GoalPrompt{
		Goal:            req.Goal,
		Category:        req.Category,
		ExperienceLevel: req.ExperienceLevel,
		HoursPerDay:     req.HoursPerDay,
		Schedule:        req.Schedule,
		Context:         req.Context,
	})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrSafetyViolation):
			writeError(w, http.StatusBadRequest, "We couldn't generate a safe plan for that goal. Please try rephrasing.")
		case errors.Is(err, ai.ErrRateLimitExceeded):
			writeError(w, http.StatusTooManyRequests, "Too many generation requests. Please try again later.")
		case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, ai.ErrProviderUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Plan generation is temporarily unavailable")
		case errors.Is(err, ai.ErrMalformedResponse):
			writeError(w, http.StatusBadGateway, "Plan generation returned an unusable result. Please retry.")
		case errors.Is(err, ai.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Invalid generation input")
		default:
			h.writePlanError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
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
		h.writePlanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

func (h *PlanHandler) SwitchActive(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.SwitchActive(r.Context(), email, planID); err != nil {
		h.writePlanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"activePlanId": planID.String()})
}

func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.Delete(r.Context(), email, planID); err != nil {
		h.writePlanError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PlanHandler) writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "Plan not found")
	case errors.Is(err, services.ErrPlanLimitReached):
		writeError(w, http.StatusConflict, "Plan limit reached")
	case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrInvalidSchedule), errors.Is(err, services.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "Invalid plan parameters")
	default:
		logging.Error("Plan operation failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
