package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/calendar"
	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/services"
	"github.com/stridehq/stride/internal/services/ai"
)

type mockPlanService struct {
	CreateFunc         func(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error)
	CreateFromGoalFunc func(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error)
	GetFunc            func(ctx context.Context, email string, planID uuid.UUID) (*models.Plan, error)
	SwitchActiveFunc   func(ctx context.Context, email string, planID uuid.UUID) error
	DeleteFunc         func(ctx context.Context, email string, planID uuid.UUID) error
}

func (m *mockPlanService) Create(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error) {
	return m.CreateFunc(ctx, email, params)
}

func (m *mockPlanService) CreateFromGoal(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error) {
	return m.CreateFromGoalFunc(ctx, email, year, schedule, category, prompt)
}

func (m *mockPlanService) Get(ctx context.Context, email string, planID uuid.UUID) (*models.Plan, error) {
	return m.GetFunc(ctx, email, planID)
}

func (m *mockPlanService) SwitchActive(ctx context.Context, email string, planID uuid.UUID) error {
	return m.SwitchActiveFunc(ctx, email, planID)
}

func (m *mockPlanService) Delete(ctx context.Context, email string, planID uuid.UUID) error {
	return m.DeleteFunc(ctx, email, planID)
}

func TestPlanHandler_Create_RequiresAuth(t *testing.T) {
	handler := NewPlanHandler(&mockPlanService{})
	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	handler.Create(rr, req)
	assertErrorResponse(t, rr, http.StatusUnauthorized, "Authentication required")
}

func TestPlanHandler_Create_Success(t *testing.T) {
	planID := uuid.New()
	var gotParams models.CreatePlanParams
	handler := NewPlanHandler(&mockPlanService{
		CreateFunc: func(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error) {
			gotParams = params
			return &models.Plan{ID: planID, Title: params.Title, Category: params.Category}, nil
		},
	})

	payload := `{"title":"Learn Go","category":"learning","schedule":"weekdays","year":2026}`
	req := authedRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(payload), "alice@example.com")
	rr := httptest.NewRecorder()

	handler.Create(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotParams.Title != "Learn Go" || gotParams.Schedule != calendar.ScheduleWeekdays || gotParams.Year != 2026 {
		t.Fatalf("unexpected params: %+v", gotParams)
	}

	var plan models.Plan
	if err := json.NewDecoder(rr.Body).Decode(&plan); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if plan.ID != planID {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestPlanHandler_Create_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"limit", services.ErrPlanLimitReached, http.StatusConflict, "Plan limit reached"},
		{"empty title", services.ErrEmptyTitle, http.StatusBadRequest, "Invalid plan parameters"},
		{"bad schedule", services.ErrInvalidSchedule, http.StatusBadRequest, "Invalid plan parameters"},
		{"bad category", services.ErrInvalidCategory, http.StatusBadRequest, "Invalid plan parameters"},
		{"no user", services.ErrUserNotFound, http.StatusNotFound, "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewPlanHandler(&mockPlanService{
				CreateFunc: func(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error) {
					return nil, tt.err
				},
			})
			req := authedRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(`{"title":"x","year":2026}`), "alice@example.com")
			rr := httptest.NewRecorder()

			handler.Create(rr, req)
			assertErrorResponse(t, rr, tt.status, tt.message)
		})
	}
}

func TestPlanHandler_Create_RejectsOutOfRangeYear(t *testing.T) {
	for _, payload := range []string{
		`{"title":"x"}`,
		`{"title":"x","year":1999}`,
		`{"title":"x","year":2300}`,
	} {
		handler := NewPlanHandler(&mockPlanService{})
		req := authedRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(payload), "alice@example.com")
		rr := httptest.NewRecorder()

		handler.Create(rr, req)
		assertErrorResponse(t, rr, http.StatusBadRequest, "Invalid year")
	}
}

func TestPlanHandler_Generate_RejectsOutOfRangeYear(t *testing.T) {
	handler := NewPlanHandler(&mockPlanService{})
	req := authedRequest(http.MethodPost, "/api/plans/generate", bytes.NewBufferString(`{"goal":"learn Go"}`), "alice@example.com")
	rr := httptest.NewRecorder()

	handler.Generate(rr, req)
	assertErrorResponse(t, rr, http.StatusBadRequest, "Invalid year")
}

func TestPlanHandler_Generate_RequiresGoal(t *testing.T) {
	handler := NewPlanHandler(&mockPlanService{})
	req := authedRequest(http.MethodPost, "/api/plans/generate", bytes.NewBufferString(`{"category":"learning"}`), "alice@example.com")
	rr := httptest.NewRecorder()

	handler.Generate(rr, req)
	assertErrorResponse(t, rr, http.StatusBadRequest, "Goal is required")
}

func TestPlanHandler_Generate_Success(t *testing.T) {
	var gotPrompt ai.GoalPrompt
	var gotYear int
	handler := NewPlanHandler(&mockPlanService{
		CreateFromGoalFunc: func(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error) {
			gotPrompt = prompt
			gotYear = year
			return &models.Plan{ID: uuid.New(), Title: "Learn Go in a Year"}, nil
		},
	})

	payload := `{"goal":"learn Go","category":"learning","experienceLevel":"beginner","hoursPerDay":1,"schedule":"weekdays","year":2026}`
	req := authedRequest(http.MethodPost, "/api/plans/generate", bytes.NewBufferString(payload), "alice@example.com")
	rr := httptest.NewRecorder()

	handler.Generate(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotPrompt.Goal != "learn Go" || gotPrompt.ExperienceLevel != "beginner" || gotYear != 2026 {
		t.Fatalf("unexpected prompt: %+v year %d", gotPrompt, gotYear)
	}
}

func TestPlanHandler_Generate_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"safety", ai.ErrSafetyViolation, http.StatusBadRequest},
		{"rate limit", ai.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"not configured", ai.ErrNotConfigured, http.StatusServiceUnavailable},
		{"unavailable", ai.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{"malformed", ai.ErrMalformedResponse, http.StatusBadGateway},
		{"invalid input", ai.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewPlanHandler(&mockPlanService{
				CreateFromGoalFunc: func(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error) {
					return nil, tt.err
				},
			})
			req := authedRequest(http.MethodPost, "/api/plans/generate", bytes.NewBufferString(`{"goal":"learn Go","year":2026}`), "alice@example.com")
			rr := httptest.NewRecorder()

			handler.Generate(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPlanHandler_Get_InvalidID(t *testing.T) {
	handler := NewPlanHandler(&mockPlanService{})
	req := authedRequest(http.MethodGet, "/api/plans/not-a-uuid", nil, "alice@example.com")
	req.SetPathValue("id", "not-a-uuid")
	rr := httptest.NewRecorder()

	handler.Get(rr, req)
	assertErrorResponse(t, rr, http.StatusBadRequest, "Invalid plan id")
}

func TestPlanHandler_Get_Success(t *testing.T) {
	planID := uuid.New()
	handler := NewPlanHandler(&mockPlanService{
		GetFunc: func(ctx context.Context, email string, gotID uuid.UUID) (*models.Plan, error) {
			if gotID != planID {
				t.Fatalf("expected plan %v, got %v", planID, gotID)
			}
			return &models.Plan{ID: planID, Title: "Learn Go"}, nil
		},
	})

	req := authedRequest(http.MethodGet, "/api/plans/"+planID.String(), nil, "alice@example.com")
	req.SetPathValue("id", planID.String())
	rr := httptest.NewRecorder()

	handler.Get(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestPlanHandler_Get_NotFound(t *testing.T) {
	planID := uuid.New()
	handler := NewPlanHandler(&mockPlanService{
		GetFunc: func(ctx context.Context, email string, gotID uuid.UUID) (*models.Plan, error) {
			return nil, services.ErrPlanNotFound
		},
	})

	req := authedRequest(http.MethodGet, "/api/plans/"+planID.String(), nil, "alice@example.com")
	req.SetPathValue("id", planID.String())
	rr := httptest.NewRecorder()

	handler.Get(rr, req)
	assertErrorResponse(t, rr, http.StatusNotFound, "Plan not found")
}

func TestPlanHandler_SwitchActive_Success(t *testing.T) {
	planID := uuid.New()
	switched := false
	handler := NewPlanHandler(&mockPlanService{
		SwitchActiveFunc: func(ctx context.Context, email string, gotID uuid.UUID) error {
			switched = true
			return nil
		},
	})

	req := authedRequest(http.MethodPut, "/api/plans/"+planID.String()+"/activate", nil, "alice@example.com")
	req.SetPathValue("id", planID.String())
	rr := httptest.NewRecorder()

	handler.SwitchActive(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !switched {
		t.Fatal("expected switch call")
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["activePlanId"] != planID.String() {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestPlanHandler_Delete_Success(t *testing.T) {
	planID := uuid.New()
	handler := NewPlanHandler(&mockPlanService{
		DeleteFunc: func(ctx context.Context, email string, gotID uuid.UUID) error {
			if gotID != planID {
				t.Fatalf("expected plan %v, got %v", planID, gotID)
			}
			return nil
		},
	})

	req := authedRequest(http.MethodDelete, "/api/plans/"+planID.String(), nil, "alice@example.com")
	req.SetPathValue("id", planID.String())
	rr := httptest.NewRecorder()

	handler.Delete(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
