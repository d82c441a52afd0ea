package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("AI provider is currently unavailable") // 503
	ErrNotConfigured       = errors.New("AI provider is not configured")        // 503
	ErrSafetyViolation     = errors.New("generated content violated safety policies")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidInput        = errors.New("invalid input parameters")
	ErrMalformedResponse   = errors.New("malformed model response")
)
