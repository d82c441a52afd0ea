package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/stridehq/stride/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPhone       = errors.New("invalid phone")
	ErrPhoneMismatch      = errors.New("phone does not match")
	ErrUnknownSchema      = errors.New("unknown schema version")
)

// UserRecord is the decoded persisted user. Exactly one of V1/V2 is set,
// selected by the stored schema version tag.
type UserRecord struct {
	SchemaVersion models.SchemaVersion
	V1            *models.LegacyUser
	V2            *models.User
}

// Snapshot is the version-independent view of a user. V1 records surface
// their implicit plan as a single summary, so callers never branch on the
// schema version.
type Snapshot struct {
	Email         string               `json:"email"`
	Name          string               `json:"name"`
	Settings      models.UserSettings  `json:"settings"`
	Plans         []models.PlanSummary `json:"plans"`
	ActivePlanID  string               `json:"activePlanId,omitempty"`
	TotalPoints   int                  `json:"totalPoints"`
	CurrentStreak int                  `json:"currentStreak"`
	LongestStreak int                  `json:"longestStreak"`
	SchemaVersion models.SchemaVersion `json:"schemaVersion"`
}

type SignupParams struct {
	Email    string
	Name     string
	Phone    string
	Settings *models.UserSettings
}

type UserService struct {
	db  DB
	now func() time.Time
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db, now: time.Now}
}

func (s *UserService) Signup(ctx context.Context, params SignupParams) (*models.User, error) {
	if err := models.ValidateEmail(params.Email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := models.ValidatePhone(params.Phone); err != nil {
		return nil, ErrInvalidPhone
	}
	email := models.NormalizeEmail(params.Email)

	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking email existence: %w", err)
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(models.NormalizePhone(params.Phone)), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing phone: %w", err)
	}

	settings := models.DefaultSettings()
	if params.Settings != nil {
		settings = *params.Settings
	}
	user := &models.User{
		Email:         email,
		Name:          params.Name,
		Phone:         models.NormalizePhone(params.Phone),
		PhoneHash:     string(hash),
		CreatedAt:     s.now().UTC(),
		Settings:      settings,
		Plans:         []models.Plan{},
		SchemaVersion: models.SchemaV2,
	}

	doc, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encoding user doc: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO users (email, schema_version, phone_hash, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		email, int(models.SchemaV2), user.PhoneHash, doc, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return user, nil
}

// VerifyPhone compares a claimed phone number against the stored hash. The
// phone acts as the login secret.
func (s *UserService) VerifyPhone(ctx context.Context, email, phone string) error {
	var hash *string
	err := s.db.QueryRow(ctx, "SELECT phone_hash FROM users WHERE email = $1", models.NormalizeEmail(email)).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("getting phone hash: %w", err)
	}
	if hash == nil {
		return ErrPhoneMismatch
	}
	if bcrypt.CompareHashAndPassword([]byte(*hash), []byte(models.NormalizePhone(phone))) != nil {
		return ErrPhoneMismatch
	}
	return nil
}

// GetByEmail loads and decodes a user record under whichever schema version
// its tag names.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return loadUserRecord(ctx, s.db, models.NormalizeEmail(email))
}

func loadUserRecord(ctx context.Context, q DBConn, email string) (*UserRecord, error) {
	var (
		version   int
		phoneHash *string
		doc       []byte
		createdAt time.Time
	)
	err := q.QueryRow(ctx,
		"SELECT schema_version, phone_hash, doc, created_at FROM users WHERE email = $1",
		email,
	).Scan(&version, &phoneHash, &doc, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}

	record := &UserRecord{SchemaVersion: models.SchemaVersion(version)}
	switch record.SchemaVersion {
	case models.SchemaV1:
		legacy := &models.LegacyUser{}
		if err := json.Unmarshal(doc, legacy); err != nil {
			return nil, fmt.Errorf("decoding v1 user doc: %w", err)
		}
		legacy.Email = email
		legacy.CreatedAt = createdAt
		if phoneHash != nil {
			legacy.PhoneHash = *phoneHash
		}
		if legacy.CompletedTasks == nil {
			legacy.CompletedTasks = make(map[string]models.TaskCompletion)
		}
		if legacy.DailyCheckIns == nil {
			legacy.DailyCheckIns = make(map[string]bool)
		}
		record.V1 = legacy
	case models.SchemaV2:
		user := &models.User{}
		if err := json.Unmarshal(doc, user); err != nil {
			return nil, fmt.Errorf("decoding v2 user doc: %w", err)
		}
		user.Email = email
		user.CreatedAt = createdAt
		if phoneHash != nil {
			user.PhoneHash = *phoneHash
		}
		if user.Plans == nil {
			user.Plans = []models.Plan{}
		}
		record.V2 = user
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSchema, version)
	}

	return record, nil
}

// Snapshot builds the version-independent view for a user.
func (s *UserService) Snapshot(ctx context.Context, email string) (*Snapshot, error) {
	record, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return record.Snapshot(), nil
}

func (r *UserRecord) Snapshot() *Snapshot {
	if r.SchemaVersion == models.SchemaV1 {
		summary := r.V1.Summary()
		return &Snapshot{
			Email:         r.V1.Email,
			Name:          r.V1.Name,
			Settings:      r.V1.ToV2Envelope().Settings,
			Plans:         []models.PlanSummary{summary},
			TotalPoints:   r.V1.EarnedPoints,
			CurrentStreak: r.V1.CurrentStreak,
			LongestStreak: r.V1.LongestStreak,
			SchemaVersion: models.SchemaV1,
		}
	}

	user := r.V2
	snap := &Snapshot{
		Email:         user.Email,
		Name:          user.Name,
		Settings:      user.Settings,
		Plans:         user.PlanSummaries(),
		TotalPoints:   user.GlobalTotalPoints,
		CurrentStreak: user.GlobalCurrentStreak,
		LongestStreak: user.GlobalLongestStreak,
		SchemaVersion: models.SchemaV2,
	}
	if user.ActivePlanID != nil {
		snap.ActivePlanID = user.ActivePlanID.String()
	}
	return snap
}

// Settings resolves the effective settings for either schema version.
func (r *UserRecord) Settings() models.UserSettings {
	if r.SchemaVersion == models.SchemaV1 {
		return r.V1.ToV2Envelope().Settings
	}
	return r.V2.Settings
}

// Email returns the record key.
func (r *UserRecord) Email() string {
	if r.SchemaVersion == models.SchemaV1 {
		return r.V1.Email
	}
	return r.V2.Email
}

// Name returns the display name for either schema version.
func (r *UserRecord) Name() string {
	if r.SchemaVersion == models.SchemaV1 {
		return r.V1.Name
	}
	return r.V2.Name
}

// Phone returns the stored normalized phone number.
func (r *UserRecord) Phone() string {
	if r.SchemaVersion == models.SchemaV1 {
		return r.V1.Phone
	}
	return r.V2.Phone
}

// UpdateSettings applies a partial settings patch. V1 records keep their
// flat shape: only the fields that exist on V1 (reminder time, timezone)
// are written, and the record is NOT migrated.
func (s *UserService) UpdateSettings(ctx context.Context, email string, patch models.SettingsPatch) (models.UserSettings, error) {
	email = models.NormalizeEmail(email)
	record, err := s.GetByEmail(ctx, email)
	if err != nil {
		return models.UserSettings{}, err
	}

	if record.SchemaVersion == models.SchemaV1 {
		flat := map[string]any{}
		if patch.ReminderTime != nil {
			record.V1.ReminderTime = *patch.ReminderTime
			flat["reminderTime"] = *patch.ReminderTime
		}
		if patch.Timezone != nil {
			record.V1.Timezone = *patch.Timezone
			flat["timezone"] = *patch.Timezone
		}
		if len(flat) > 0 {
			if err := s.patchDoc(ctx, email, flat); err != nil {
				return models.UserSettings{}, err
			}
		}
		return record.Settings(), nil
	}

	settings := record.V2.Settings
	if patch.ReminderTime != nil {
		settings.ReminderTime = *patch.ReminderTime
	}
	if patch.Timezone != nil {
		settings.Timezone = *patch.Timezone
	}
	if patch.EmailNotifications != nil {
		settings.EmailNotifications = *patch.EmailNotifications
	}
	if patch.SMSNotifications != nil {
		settings.SMSNotifications = *patch.SMSNotifications
	}
	if patch.Theme != nil {
		settings.Theme = *patch.Theme
	}

	if err := s.patchDoc(ctx, email, map[string]any{"settings": settings}); err != nil {
		return models.UserSettings{}, err
	}
	return settings, nil
}

// patchDoc merges the given top-level fields into the stored doc without
// rewriting the whole record.
func (s *UserService) patchDoc(ctx context.Context, email string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding doc patch: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE users SET doc = doc || $2::jsonb, updated_at = $3 WHERE email = $1",
		email, patch, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("patching user doc: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user and, through the foreign key, any externalized
// task payloads.
func (s *UserService) Delete(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE email = $1", models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
