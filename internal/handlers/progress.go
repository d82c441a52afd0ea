package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/services"
)

// ProgressServiceInterface is the progress surface the handler needs.
type ProgressServiceInterface interface {
	CheckIn(ctx context.Context, email string, planID uuid.UUID) (*services.CheckInResult, error)
	CompleteTask(ctx context.Context, email string, planID uuid.UUID, taskID string, points int, quizScore *int) (*services.CompleteTaskResult, error)
	RecordQuizAttempt(ctx context.Context, email string, planID uuid.UUID, attempt models.QuizAttempt) error
	RecordProblemSubmission(ctx context.Context, email string, planID uuid.UUID, submission models.ProblemSubmission) error
}

type ProgressHandler struct {
	service ProgressServiceInterface
}

func NewProgressHandler(service ProgressServiceInterface) *ProgressHandler {
	return &ProgressHandler{service: service}
}

type CheckInRequest struct {
	PlanID string `json:"planId"`
}

func (h *ProgressHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CheckInRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	planID := uuid.Nil
	if req.PlanID != "" {
		parsed, err := uuid.Parse(req.PlanID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid plan id")
			return
		}
		planID = parsed
	}

	result, err := h.service.CheckIn(r.Context(), email, planID)
	if err != nil {
		h.writeProgressError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type CompleteTaskRequest struct {
	Points    int  `json:"points"`
	QuizScore *int `json:"quizScore,omitempty"`
}

func (h *ProgressHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
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
	taskID := r.PathValue("taskId")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "Task id is required")
		return
	}

	var req CompleteTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Points < 0 {
		writeError(w, http.StatusBadRequest, "Points must not be negative")
		return
	}

	result, err := h.service.CompleteTask(r.Context(), email, planID, taskID, req.Points, req.QuizScore)
	if err != nil {
		h.writeProgressError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type QuizAttemptRequest struct {
	TaskID string `json:"taskId"`
	Score  int    `json:"score"`
	Total  int    `json:"total"`
}

func (h *ProgressHandler) RecordQuizAttempt(w http.ResponseWriter, r *http.Request) {
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

	var req QuizAttemptRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TaskID == "" || req.Total <= 0 || req.Score < 0 || req.Score > req.Total {
		writeError(w, http.StatusBadRequest, "Invalid quiz attempt")
		return
	}

	err = h.service.RecordQuizAttempt(r.Context(), email, planID, models.QuizAttempt{
		TaskID: req.TaskID,
		Score:  req.Score,
		Total:  req.Total,
	})
	if err != nil {
		h.writeProgressError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ProblemSubmissionRequest struct {
	TaskID  string `json:"taskId"`
	Problem string `json:"problem"`
	URL     string `json:"url"`
	Status  string `json:"status"`
}

func (h *ProgressHandler) RecordProblemSubmission(w http.ResponseWriter, r *http.Request) {
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

	var req ProblemSubmissionRequest
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TaskID == "" || req.Problem == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "Invalid problem submission")
		return
	}

	err = h.service.RecordProblemSubmission(r.Context(), email, planID, models.ProblemSubmission{
		TaskID:  req.TaskID,
		Problem: req.Problem,
		URL:     req.URL,
		Status:  req.Status,
	})
	if err != nil {
		h.writeProgressError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProgressHandler) writeProgressError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "Plan not found")
	default:
		logging.Error("Progress operation failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
