package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion tags the persisted shape of a user record. It is the single
// source of truth for which reader/writer path applies; no field-presence
// sniffing.
type SchemaVersion int

const (
	// SchemaV1 is the original flat shape: one implicit plan stored
	// directly on the user record.
	SchemaV1 SchemaVersion = 1
	// SchemaV2 holds a list of plan sub-documents and an active-plan pointer.
	SchemaV2 SchemaVersion = 2
)

func (v SchemaVersion) IsValid() bool {
	return v == SchemaV1 || v == SchemaV2
}

// MaxPlansPerUser caps the number of plans a single user may hold.
const MaxPlansPerUser = 3

type UserSettings struct {
	ReminderTime       string `json:"reminderTime"` // HH:MM, user-local
	Timezone           string `json:"timezone"`
	EmailNotifications bool   `json:"emailNotifications"`
	SMSNotifications   bool   `json:"smsNotifications"`
	Theme              string `json:"theme"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		ReminderTime:       "08:00",
		Timezone:           "UTC",
		EmailNotifications: true,
		SMSNotifications:   true,
		Theme:              "light",
	}
}

// Location resolves the user's timezone, falling back to UTC when the
// setting is absent or unknown.
func (s UserSettings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// User is the V2 document shape, keyed by normalized email.
type User struct {
	Email               string       `json:"email"`
	Name                string       `json:"name"`
	Phone               string       `json:"phone"`
	PhoneHash           string       `json:"-"`
	CreatedAt           time.Time    `json:"createdAt"`
	Settings            UserSettings `json:"settings"`
	Plans               []Plan       `json:"plans"`
	ActivePlanID        *uuid.UUID   `json:"activePlanId,omitempty"`
	GlobalTotalPoints   int          `json:"globalTotalPoints"`
	GlobalCurrentStreak int          `json:"globalCurrentStreak"`
	GlobalLongestStreak int          `json:"globalLongestStreak"`
	SchemaVersion       SchemaVersion `json:"schemaVersion"`
}

// LegacyUser is the V1 flat shape: identity plus a single implicit plan's
// fields spread directly on the record.
type LegacyUser struct {
	Email          string                    `json:"email"`
	Name           string                    `json:"name"`
	Phone          string                    `json:"phone"`
	PhoneHash      string                    `json:"-"`
	CreatedAt      time.Time                 `json:"createdAt"`
	Goal           string                    `json:"goal"`
	StartDate      string                    `json:"startDate"`
	EndDate        string                    `json:"endDate"`
	TotalTasks     int                       `json:"totalTasks"`
	CompletedTasks map[string]TaskCompletion `json:"completedTasks"`
	EarnedPoints   int                       `json:"earnedPoints"`
	TotalPoints    int                       `json:"totalPoints"`
	CurrentStreak  int                       `json:"currentStreak"`
	LongestStreak  int                       `json:"longestStreak"`
	LastCheckIn    *time.Time                `json:"lastCheckIn,omitempty"`
	DailyCheckIns  map[string]bool           `json:"dailyCheckIns"`
	ReminderTime   string                    `json:"reminderTime"`
	Timezone       string                    `json:"timezone"`
}

// PlanSummary is the version-independent view handed to callers. V1 records
// normalize their implicit plan into the same shape, so downstream code
// never branches on schema version.
type PlanSummary struct {
	ID                  uuid.UUID `json:"id"`
	Title               string    `json:"title"`
	Category            string    `json:"category"`
	StartDate           string    `json:"startDate"`
	EndDate             string    `json:"endDate"`
	TotalTasks          int       `json:"totalTasks"`
	CompletedTasksCount int       `json:"completedTasksCount"`
	ProgressPercent     float64   `json:"progressPercent"`
	EarnedPoints        int       `json:"earnedPoints"`
	CurrentStreak       int       `json:"currentStreak"`
	LongestStreak       int       `json:"longestStreak"`
	IsActive            bool      `json:"isActive"`
}

// Summary normalizes the V1 implicit plan. The zero UUID marks the plan as
// implicit; it becomes a real plan id only through migration.
func (u *LegacyUser) Summary() PlanSummary {
	completed := len(u.CompletedTasks)
	return PlanSummary{
		ID:                  uuid.Nil,
		Title:               u.Goal,
		StartDate:           u.StartDate,
		EndDate:             u.EndDate,
		TotalTasks:          u.TotalTasks,
		CompletedTasksCount: completed,
		ProgressPercent:     progressPercent(completed, u.TotalTasks),
		EarnedPoints:        u.EarnedPoints,
		CurrentStreak:       u.CurrentStreak,
		LongestStreak:       u.LongestStreak,
		IsActive:            true,
	}
}

// ToV2Envelope synthesizes the V2 shell for a V1 record: identity fields
// carried over, default settings (keeping any configured reminder time and
// timezone), empty plan list. One-way; applied lazily on the first
// plan-mutating write.
func (u *LegacyUser) ToV2Envelope() *User {
	settings := DefaultSettings()
	if strings.TrimSpace(u.ReminderTime) != "" {
		settings.ReminderTime = u.ReminderTime
	}
	if strings.TrimSpace(u.Timezone) != "" {
		settings.Timezone = u.Timezone
	}
	return &User{
		Email:         u.Email,
		Name:          u.Name,
		Phone:         u.Phone,
		PhoneHash:     u.PhoneHash,
		CreatedAt:     u.CreatedAt,
		Settings:      settings,
		Plans:         []Plan{},
		SchemaVersion: SchemaV2,
	}
}

// PlanByID finds a plan on the user record.
func (u *User) PlanByID(id uuid.UUID) *Plan {
	for i := range u.Plans {
		if u.Plans[i].ID == id {
			return &u.Plans[i]
		}
	}
	return nil
}

// ActivePlan resolves the active-plan pointer, or nil when unset.
func (u *User) ActivePlan() *Plan {
	if u.ActivePlanID == nil {
		return nil
	}
	return u.PlanByID(*u.ActivePlanID)
}

// PlanSummaries returns the version-independent plan views.
func (u *User) PlanSummaries() []PlanSummary {
	summaries := make([]PlanSummary, 0, len(u.Plans))
	for i := range u.Plans {
		active := u.ActivePlanID != nil && *u.ActivePlanID == u.Plans[i].ID
		summaries = append(summaries, u.Plans[i].Summary(active))
	}
	return summaries
}

// RecomputeGlobals derives the cross-plan aggregates: total points is the
// sum across plans, streaks are the maximum across plans.
func (u *User) RecomputeGlobals() {
	total := 0
	current := 0
	longest := 0
	for i := range u.Plans {
		p := &u.Plans[i]
		total += p.Progress.EarnedPoints
		if p.Progress.CurrentStreak > current {
			current = p.Progress.CurrentStreak
		}
		if p.Progress.LongestStreak > longest {
			longest = p.Progress.LongestStreak
		}
	}
	u.GlobalTotalPoints = total
	u.GlobalCurrentStreak = current
	u.GlobalLongestStreak = longest
}

// NormalizeEmail lower-cases and trims an email for use as the record key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips everything but digits, keeping one leading +.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateEmail performs a shallow structural check; deliverability is the
// notification channel's problem.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return fmt.Errorf("invalid email address")
	}
	if !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("invalid email domain")
	}
	return nil
}

// ValidatePhone checks a normalized phone number has a plausible length.
func ValidatePhone(phone string) error {
	normalized := NormalizePhone(phone)
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return fmt.Errorf("invalid phone number")
	}
	return nil
}

type CreateUserParams struct {
	Email     string
	Name      string
	PhoneHash string
	Settings  *UserSettings
}

type SettingsPatch struct {
	ReminderTime       *string `json:"reminderTime,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
	SMSNotifications   *bool   `json:"smsNotifications,omitempty"`
	Theme              *string `json:"theme,omitempty"`
}

func progressPercent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(completed) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
