package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stridehq/stride/internal/calendar"
	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/services/ai"
)

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrPlanLimitReached = errors.New("plan limit reached")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrEmptyTitle       = errors.New("title is required")
)

// maxEmbeddedTasks is the largest task list stored inline on the user doc.
// Bigger plans keep only the count on the parent and move the payload to the
// plan_tasks table.
const maxEmbeddedTasks = 25

type PlanService struct {
	db           DB
	generator    ai.Generator
	flexPerMonth int
	now          func() time.Time
}

func NewPlanService(db DB, generator ai.Generator, flexPerMonth int) *PlanService {
	if flexPerMonth <= 0 {
		flexPerMonth = calendar.DefaultFlexDaysPerMonth
	}
	return &PlanService{db: db, generator: generator, flexPerMonth: flexPerMonth, now: time.Now}
}

// CreateFromGoal generates a task plan for the goal and creates it. Tasks
// are positioned by day index into the working-day calendar; indexes past
// the end of the year are dropped.
func (s *PlanService) CreateFromGoal(ctx context.Context, email string, year int, schedule calendar.ScheduleType, category string, prompt ai.GoalPrompt) (*models.Plan, error) {
	if s.generator == nil {
		return nil, ai.ErrNotConfigured
	}
	if !schedule.IsValid() {
		return nil, ErrInvalidSchedule
	}

	generated, _, err := s.generator.GeneratePlan(ctx, prompt)
	if err != nil {
		return nil, err
	}

	days := calendar.Generate(year, schedule, s.flexPerMonth)
	tasks := make([]models.Task, 0, len(generated.Tasks))
	for i, gt := range generated.Tasks {
		if gt.DayIndex >= len(days) {
			continue
		}
		day := days[gt.DayIndex]
		taskType := models.TaskType(gt.Type)
		if !taskType.IsValid() {
			taskType = models.TaskLearn
		}
		tasks = append(tasks, models.Task{
			ID:              fmt.Sprintf("d%d-t%d", gt.DayIndex+1, i+1),
			Date:            day.Date,
			DayIndex:        gt.DayIndex,
			WeekIndex:       day.WeekNumber,
			MonthIndex:      day.Month,
			QuarterIndex:    day.Quarter,
			Type:            taskType,
			Title:           gt.Title,
			Description:     gt.Description,
			DurationMinutes: gt.DurationMinutes,
			Points:          gt.Points,
			Resources:       gt.Resources,
			Tags:            gt.Tags,
		})
	}

	return s.Create(ctx, email, models.CreatePlanParams{
		Title:       generated.Title,
		Description: generated.Description,
		Category:    category,
		Icon:        generated.Icon,
		Schedule:    schedule,
		Year:        year,
		Tasks:       tasks,
	})
}

// Create appends a new plan to the user. A V1 record is migrated first: the
// V2 envelope is persisted before the plan is appended, one way and one
// time. The plan cap applies after migration.
func (s *PlanService) Create(ctx context.Context, email string, params models.CreatePlanParams) (*models.Plan, error) {
	if params.Title == "" {
		return nil, ErrEmptyTitle
	}
	if !params.Schedule.IsValid() {
		return nil, ErrInvalidSchedule
	}
	if params.Category != "" && !models.IsValidCategory(params.Category) {
		return nil, ErrInvalidCategory
	}

	email = models.NormalizeEmail(email)

	var created models.Plan
	err := withTx(ctx, s.db, func(tx Tx) error {
		record, err := loadUserRecordForUpdate(ctx, tx, email)
		if err != nil {
			return err
		}

		user := record.V2
		if record.SchemaVersion == models.SchemaV1 {
			user = record.V1.ToV2Envelope()
		}
		if len(user.Plans) >= models.MaxPlansPerUser {
			return ErrPlanLimitReached
		}

		plan, err := s.buildPlan(params)
		if err != nil {
			return err
		}

		external := plan.Tasks
		if len(external) > maxEmbeddedTasks {
			encoded, err := json.Marshal(external)
			if err != nil {
				return fmt.Errorf("encoding task payload: %w", err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO plan_tasks (plan_id, user_email, task_count, tasks) VALUES ($1, $2, $3, $4)`,
				plan.ID, email, len(external), encoded,
			)
			if err != nil {
				return fmt.Errorf("storing task payload: %w", err)
			}
			plan.Tasks = nil
		}

		user.Plans = append(user.Plans, *plan)
		if user.ActivePlanID == nil {
			user.ActivePlanID = &plan.ID
		}
		user.RecomputeGlobals()

		if err := writeUserDoc(ctx, tx, email, user, s.now().UTC()); err != nil {
			return err
		}

		created = *plan
		created.Tasks = external
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *PlanService) buildPlan(params models.CreatePlanParams) (*models.Plan, error) {
	days := calendar.Generate(params.Year, params.Schedule, s.flexPerMonth)
	if len(days) == 0 {
		return nil, fmt.Errorf("no working days for year %d", params.Year)
	}

	id := uuid.New()
	totalPoints := 0
	for i := range params.Tasks {
		params.Tasks[i].PlanID = id
		totalPoints += params.Tasks[i].Points
	}

	now := s.now().UTC()
	return &models.Plan{
		ID:                id,
		Title:             params.Title,
		Description:       params.Description,
		Category:          params.Category,
		Icon:              params.Icon,
		Schedule:          params.Schedule,
		CustomDaysPerWeek: params.CustomDaysPerWeek,
		StartDate:         days[0].Date,
		EndDate:           days[len(days)-1].Date,
		TotalDays:         len(days),
		TotalTasks:        len(params.Tasks),
		Tasks:             params.Tasks,
		Progress:          models.NewProgressState(totalPoints),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Get returns a plan with its full task list, rehydrating an externalized
// payload from the plan_tasks table.
func (s *PlanService) Get(ctx context.Context, email string, planID uuid.UUID) (*models.Plan, error) {
	record, err := loadUserRecord(ctx, s.db, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if record.SchemaVersion != models.SchemaV2 {
		return nil, ErrPlanNotFound
	}

	plan := record.V2.PlanByID(planID)
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	result := *plan
	if result.TasksExternalized() {
		tasks, err := s.loadTasks(ctx, planID)
		if err != nil {
			return nil, err
		}
		result.Tasks = tasks
	}
	return &result, nil
}

func (s *PlanService) loadTasks(ctx context.Context, planID uuid.UUID) ([]models.Task, error) {
	var encoded []byte
	err := s.db.QueryRow(ctx, "SELECT tasks FROM plan_tasks WHERE plan_id = $1", planID).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task payload: %w", err)
	}
	var tasks []models.Task
	if err := json.Unmarshal(encoded, &tasks); err != nil {
		return nil, fmt.Errorf("decoding task payload: %w", err)
	}
	return tasks, nil
}

// SwitchActive points the active-plan pointer at another of the user's
// plans. The target must exist on the record.
func (s *PlanService) SwitchActive(ctx context.Context, email string, planID uuid.UUID) error {
	email = models.NormalizeEmail(email)
	record, err := loadUserRecord(ctx, s.db, email)
	if err != nil {
		return err
	}
	if record.SchemaVersion != models.SchemaV2 || record.V2.PlanByID(planID) == nil {
		return ErrPlanNotFound
	}

	patch, err := json.Marshal(map[string]any{"activePlanId": planID})
	if err != nil {
		return fmt.Errorf("encoding active plan patch: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE users SET doc = doc || $2::jsonb, updated_at = $3 WHERE email = $1",
		email, patch, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("switching active plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a plan and its externalized tasks. If the deleted plan was
// active the pointer moves to the first remaining plan, or clears.
func (s *PlanService) Delete(ctx context.Context, email string, planID uuid.UUID) error {
	email = models.NormalizeEmail(email)

	return withTx(ctx, s.db, func(tx Tx) error {
		record, err := loadUserRecordForUpdate(ctx, tx, email)
		if err != nil {
			return err
		}
		if record.SchemaVersion != models.SchemaV2 {
			return ErrPlanNotFound
		}
		user := record.V2

		kept := user.Plans[:0:0]
		found := false
		for _, p := range user.Plans {
			if p.ID == planID {
				found = true
				continue
			}
			kept = append(kept, p)
		}
		if !found {
			return ErrPlanNotFound
		}
		user.Plans = kept

		if user.ActivePlanID != nil && *user.ActivePlanID == planID {
			user.ActivePlanID = nil
			if len(user.Plans) > 0 {
				user.ActivePlanID = &user.Plans[0].ID
			}
		}
		user.RecomputeGlobals()

		if _, err := tx.Exec(ctx, "DELETE FROM plan_tasks WHERE plan_id = $1", planID); err != nil {
			return fmt.Errorf("deleting task payload: %w", err)
		}
		return writeUserDoc(ctx, tx, email, user, s.now().UTC())
	})
}

func loadUserRecordForUpdate(ctx context.Context, tx Tx, email string) (*UserRecord, error) {
	if _, err := tx.Exec(ctx, "SELECT 1 FROM users WHERE email = $1 FOR UPDATE", email); err != nil {
		return nil, fmt.Errorf("locking user row: %w", err)
	}
	return loadUserRecord(ctx, tx, email)
}

// writeUserDoc rewrites the whole doc and stamps the record V2.
func writeUserDoc(ctx context.Context, conn DBConn, email string, user *models.User, updatedAt time.Time) error {
	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user doc: %w", err)
	}
	tag, err := conn.Exec(ctx,
		"UPDATE users SET schema_version = $2, doc = $3, updated_at = $4 WHERE email = $1",
		email, int(models.SchemaV2), doc, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("writing user doc: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
