package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/logging"
)

var ErrSMSNotConfigured = errors.New("sms provider not configured")

// SMSSender delivers one text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMSService posts messages to a configured webhook gateway. The console
// provider logs instead of sending.
type SMSService struct {
	cfg        *config.SMSConfig
	httpClient *http.Client
}

func NewSMSService(cfg *config.SMSConfig) *SMSService {
	return &SMSService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSService) SendSMS(ctx context.Context, to, body string) error {
	switch s.cfg.Provider {
	case "webhook":
		return s.sendWebhook(ctx, to, body)
	case "console":
		logging.Info("SMS (console)", map[string]interface{}{"to": to, "body": body})
		return nil
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrSMSNotConfigured, s.cfg.Provider)
	}
}

func (s *SMSService) sendWebhook(ctx context.Context, to, body string) error {
	if s.cfg.WebhookURL == "" {
		return ErrSMSNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"to":   to,
		"from": s.cfg.FromNumber,
		"body": body,
	})
	if err != nil {
		return fmt.Errorf("encoding sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
