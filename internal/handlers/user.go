package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/services"
)

// UserServiceInterface is the user surface the handler needs.
type UserServiceInterface interface {
	Signup(ctx context.Context, params services.SignupParams) (*models.User, error)
	Snapshot(ctx context.Context, email string) (*services.Snapshot, error)
	UpdateSettings(ctx context.Context, email string, patch models.SettingsPatch) (models.UserSettings, error)
	Delete(ctx context.Context, email string) error
}

type UserHandler struct {
	service UserServiceInterface
}

func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type SignupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Signup(r.Context(), services.SignupParams{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "Invalid email address")
		case errors.Is(err, services.ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, "Invalid phone number")
		case errors.Is(err, services.ErrEmailAlreadyExists):
			writeError(w, http.StatusConflict, "An account with this email already exists")
		default:
			logging.Error("Signup failed", map[string]interface{}{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	snapshot, err := h.service.Snapshot(r.Context(), email)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logging.Error("Loading snapshot failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var patch models.SettingsPatch
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), email, patch)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logging.Error("Updating settings failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	email := GetEmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.service.Delete(r.Context(), email); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logging.Error("Deleting account failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
