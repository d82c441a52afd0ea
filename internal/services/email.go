package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/logging"
)

var ErrEmailNotConfigured = errors.New("email provider not configured")

type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender delivers one message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailService routes messages to the configured provider. The console
// provider just logs, which keeps development working without credentials.
type EmailService struct {
	cfg    *config.EmailConfig
	resend *resend.Client
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	if cfg.Provider == "resend" && cfg.ResendAPIKey != "" {
		s.resend = resend.NewClient(cfg.ResendAPIKey)
	}
	return s
}

func (s *EmailService) Send(ctx context.Context, msg EmailMessage) error {
	switch s.cfg.Provider {
	case "resend":
		return s.sendResend(ctx, msg)
	case "console":
		logging.Info("Email (console)", map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
			"text":    msg.Text,
		})
		return nil
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrEmailNotConfigured, s.cfg.Provider)
	}
}

func (s *EmailService) sendResend(ctx context.Context, msg EmailMessage) error {
	if s.resend == nil {
		return ErrEmailNotConfigured
	}
	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	}
	_, err := s.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

type reminderEmailParams struct {
	Name          string
	PlanTitle     string
	TasksToday    int
	CurrentStreak int
	BaseURL       string
}

func buildReminderEmail(params reminderEmailParams) (string, string, string) {
	subject := "Your Stride check-in"
	if params.CurrentStreak > 1 {
		subject = fmt.Sprintf("Keep your %d-day streak going", params.CurrentStreak)
	}

	greeting := "Hi"
	if params.Name != "" {
		greeting = fmt.Sprintf("Hi %s", templateEscape(params.Name))
	}

	taskLine := "Your tasks for today are ready."
	if params.TasksToday > 0 {
		taskLine = fmt.Sprintf("You have %d task(s) scheduled today.", params.TasksToday)
	}

	openURL := templateEscape(fmt.Sprintf("%s/#today", params.BaseURL))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 640px; margin: 0 auto; padding: 24px;">
  <h1 style="color: #333; font-size: 24px;">Stride</h1>
  <p style="font-size: 18px; margin-bottom: 4px;"><strong>%s,</strong></p>
  <p style="color: #666; margin-top: 0;">%s working on <strong>%s</strong>.</p>
  <p>%s</p>
  <p>
    <a href="%s" style="display: inline-block; background: #0f6f62; color: white; padding: 10px 18px; text-decoration: none; border-radius: 6px; margin: 12px 0;">Open today's tasks</a>
  </p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
  <p style="color: #999; font-size: 12px;">Stride daily reminder</p>
</body>
</html>`,
		greeting,
		streakLine(params.CurrentStreak),
		templateEscape(params.PlanTitle),
		taskLine,
		openURL,
	)

	text := fmt.Sprintf(`%s,

%s working on %s.
%s

Open today's tasks: %s/#today

Stride daily reminder`,
		greeting, streakLine(params.CurrentStreak), params.PlanTitle, taskLine, params.BaseURL)

	return subject, html, text
}

func streakLine(streak int) string {
	if streak <= 0 {
		return "A fresh start today"
	}
	return fmt.Sprintf("You're on a %d-day streak", streak)
}

func templateEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
