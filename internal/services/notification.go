package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/models"
)

const reminderCapTTL = 48 * time.Hour

// DeliveryResult reports which channels a reminder actually went out on.
type DeliveryResult struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// NotificationService sends daily check-in reminders. RunDue walks the user
// table in keyset batches; each user gets at most one reminder per local
// day, deduplicated through redis when available and the reminder_log
// otherwise.
type NotificationService struct {
	db        DB
	redis     RedisClient
	email     EmailSender
	sms       SMSSender
	baseURL   string
	batchSize int
	now       func() time.Time
}

func NewNotificationService(db DB, redis RedisClient, email EmailSender, sms SMSSender, baseURL string, batchSize int) *NotificationService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &NotificationService{
		db:        db,
		redis:     redis,
		email:     email,
		sms:       sms,
		baseURL:   baseURL,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// RunDue processes every user whose local clock has passed their reminder
// time today. Send failures are logged per user and do not stop the batch.
func (s *NotificationService) RunDue(ctx context.Context) (int, error) {
	sent := 0
	cursor := ""
	for {
		emails, err := s.nextBatch(ctx, cursor)
		if err != nil {
			return sent, err
		}
		if len(emails) == 0 {
			return sent, nil
		}
		cursor = emails[len(emails)-1]

		for _, email := range emails {
			delivered, err := s.remindIfDue(ctx, email)
			if err != nil {
				logging.Error("Reminder failed", map[string]interface{}{
					"email": email,
					"error": err.Error(),
				})
				continue
			}
			if delivered.Email || delivered.SMS {
				sent++
			}
		}
	}
}

func (s *NotificationService) nextBatch(ctx context.Context, after string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		"SELECT email FROM users WHERE email > $1 ORDER BY email LIMIT $2",
		after, s.batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning user email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return emails, nil
}

func (s *NotificationService) remindIfDue(ctx context.Context, email string) (DeliveryResult, error) {
	record, err := loadUserRecord(ctx, s.db, email)
	if err != nil {
		return DeliveryResult{}, err
	}

	settings := record.Settings()
	if !settings.EmailNotifications && !settings.SMSNotifications {
		return DeliveryResult{}, nil
	}

	local := s.now().In(settings.Location())
	if !reminderDue(settings.ReminderTime, local) {
		return DeliveryResult{}, nil
	}

	localDay := local.Format("2006-01-02")
	fresh, err := s.claimDailySlot(ctx, email, localDay)
	if err != nil {
		return DeliveryResult{}, err
	}
	if !fresh {
		return DeliveryResult{}, nil
	}

	return s.SendReminder(ctx, record, localDay)
}

// SendReminder delivers on every enabled channel and logs the outcome.
func (s *NotificationService) SendReminder(ctx context.Context, record *UserRecord, localDay string) (DeliveryResult, error) {
	settings := record.Settings()
	result := DeliveryResult{}

	subject, html, text := buildReminderEmail(reminderEmailParams{
		Name:          record.Name(),
		PlanTitle:     reminderPlanTitle(record),
		TasksToday:    tasksOn(record, localDay),
		CurrentStreak: reminderStreak(record),
		BaseURL:       s.baseURL,
	})

	if settings.EmailNotifications && s.email != nil {
		err := s.email.Send(ctx, EmailMessage{To: record.Email(), Subject: subject, HTML: html, Text: text})
		s.logDelivery(ctx, record.Email(), "email", err, localDay)
		if err != nil {
			logging.Warn("Reminder email failed", map[string]interface{}{
				"email": record.Email(),
				"error": err.Error(),
			})
		} else {
			result.Email = true
		}
	}

	if settings.SMSNotifications && s.sms != nil && record.Phone() != "" {
		err := s.sms.SendSMS(ctx, record.Phone(), text)
		s.logDelivery(ctx, record.Email(), "sms", err, localDay)
		if err != nil {
			logging.Warn("Reminder SMS failed", map[string]interface{}{
				"email": record.Email(),
				"error": err.Error(),
			})
		} else {
			result.SMS = true
		}
	}

	return result, nil
}

// claimDailySlot enforces the one-reminder-per-local-day cap. Redis SETNX
// is the fast path; without redis the reminder_log is consulted.
func (s *NotificationService) claimDailySlot(ctx context.Context, email, localDay string) (bool, error) {
	if s.redis != nil {
		key := fmt.Sprintf("reminder:sent:%s:%s", email, localDay)
		ok, err := s.redis.SetNX(ctx, key, "1", reminderCapTTL)
		if err == nil {
			return ok, nil
		}
		logging.Warn("Reminder cap check via redis failed, using log", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
	}

	var count int
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM reminder_log WHERE user_email = $1 AND status = 'sent' AND sent_on = $2",
		email, localDay,
	).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("checking reminder log: %w", err)
	}
	return count == 0, nil
}

func (s *NotificationService) logDelivery(ctx context.Context, email, channel string, sendErr error, localDay string) {
	status := "sent"
	if sendErr != nil {
		status = "failed"
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO reminder_log (user_email, channel, status, sent_at, sent_on) VALUES ($1, $2, $3, $4, $5)",
		email, channel, status, s.now().UTC(), localDay,
	)
	if err != nil {
		logging.Error("Writing reminder log failed", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
	}
}

// reminderDue reports whether the local clock has reached the HH:MM
// reminder time. Malformed times fall back to 08:00.
func reminderDue(reminderTime string, local time.Time) bool {
	parsed, err := time.Parse("15:04", reminderTime)
	if err != nil {
		parsed, _ = time.Parse("15:04", "08:00")
	}
	nowMinutes := local.Hour()*60 + local.Minute()
	dueMinutes := parsed.Hour()*60 + parsed.Minute()
	return nowMinutes >= dueMinutes
}

func reminderPlanTitle(record *UserRecord) string {
	if record.SchemaVersion == models.SchemaV1 {
		return record.V1.Goal
	}
	if plan := record.V2.ActivePlan(); plan != nil {
		return plan.Title
	}
	return "your goals"
}

func reminderStreak(record *UserRecord) int {
	if record.SchemaVersion == models.SchemaV1 {
		return record.V1.CurrentStreak
	}
	if plan := record.V2.ActivePlan(); plan != nil {
		return plan.Progress.CurrentStreak
	}
	return 0
}

func tasksOn(record *UserRecord, localDay string) int {
	if record.SchemaVersion != models.SchemaV2 {
		return 0
	}
	plan := record.V2.ActivePlan()
	if plan == nil {
		return 0
	}
	count := 0
	for _, task := range plan.Tasks {
		if task.Date == localDay {
			count++
		}
	}
	return count
}
