package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/stridehq/stride/internal/logging"
)

type contextKey string

const emailContextKey contextKey = "userEmail"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Writing response failed", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// GetEmailFromContext returns the authenticated user's email, or "".
func GetEmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailContextKey).(string)
	return email
}

// WithEmail stores the authenticated email on the context. Exposed for the
// auth middleware and tests.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey, email)
}

// PhoneVerifier checks the phone-number login secret for an email.
type PhoneVerifier interface {
	VerifyPhone(ctx context.Context, email, phone string) error
}

// RequireUser authenticates requests with the X-Auth-Email and
// X-Auth-Phone headers and stores the verified email on the context.
func RequireUser(verifier PhoneVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := r.Header.Get("X-Auth-Email")
			phone := r.Header.Get("X-Auth-Phone")
			if email == "" || phone == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if err := verifier.VerifyPhone(r.Context(), email, phone); err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
		})
	}
}
