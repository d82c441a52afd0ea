package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/models"
	"github.com/stridehq/stride/internal/progress"
)

// ProgressService applies check-in and completion transitions to a user's
// plan state and persists the result. All day boundaries are evaluated in
// the user's configured timezone. Every successful mutation is announced on
// the sync queue.
type ProgressService struct {
	db    DB
	queue *SyncQueue
	now   func() time.Time
}

func NewProgressService(db DB, queue *SyncQueue) *ProgressService {
	return &ProgressService{db: db, queue: queue, now: time.Now}
}

// CheckInResult reports the streak after a check-in attempt. AlreadyDone is
// set when today's check-in had already been recorded.
type CheckInResult struct {
	CurrentStreak int  `json:"currentStreak"`
	LongestStreak int  `json:"longestStreak"`
	AlreadyDone   bool `json:"alreadyDone"`
}

// CheckIn records today's check-in on the user's plan. planID may be the
// zero UUID to target the active plan (or the implicit plan on a V1
// record).
func (s *ProgressService) CheckIn(ctx context.Context, email string, planID uuid.UUID) (*CheckInResult, error) {
	var result *CheckInResult
	err := s.mutate(ctx, email, planID, func(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
		next, reconciled := progress.Reconcile(state, now)
		next, changed := progress.CheckIn(next, now)
		result = &CheckInResult{
			CurrentStreak: next.CurrentStreak,
			LongestStreak: next.LongestStreak,
			AlreadyDone:   !changed,
		}
		return next, reconciled || changed
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteTaskResult reports whether the completion was newly recorded.
type CompleteTaskResult struct {
	AlreadyCompleted bool `json:"alreadyCompleted"`
	EarnedPoints     int  `json:"earnedPoints"`
}

// CompleteTask permanently records a task completion and credits its
// points. Completing an already-completed task succeeds without touching
// the stored record; no points are credited twice.
func (s *ProgressService) CompleteTask(ctx context.Context, email string, planID uuid.UUID, taskID string, points int, quizScore *int) (*CompleteTaskResult, error) {
	var result *CompleteTaskResult
	err := s.mutate(ctx, email, planID, func(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
		next, reconciled := progress.Reconcile(state, now)
		next, changed := progress.CompleteTask(next, taskID, points, quizScore, now)
		result = &CompleteTaskResult{
			AlreadyCompleted: !changed,
			EarnedPoints:     next.EarnedPoints,
		}
		return next, reconciled || changed
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordQuizAttempt appends to the plan's quiz log.
func (s *ProgressService) RecordQuizAttempt(ctx context.Context, email string, planID uuid.UUID, attempt models.QuizAttempt) error {
	return s.mutate(ctx, email, planID, func(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
		if attempt.AttemptedAt.IsZero() {
			attempt.AttemptedAt = now
		}
		return progress.AppendQuizAttempt(state, attempt), true
	})
}

// RecordProblemSubmission appends to the plan's external-problem log.
func (s *ProgressService) RecordProblemSubmission(ctx context.Context, email string, planID uuid.UUID, submission models.ProblemSubmission) error {
	return s.mutate(ctx, email, planID, func(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
		if submission.SubmittedAt.IsZero() {
			submission.SubmittedAt = now
		}
		return progress.AppendProblemSubmission(state, submission), true
	})
}

// Reconcile applies the lazy streak reset without recording anything. It is
// invoked on read paths so a stale streak never reaches a caller.
func (s *ProgressService) Reconcile(ctx context.Context, email string, planID uuid.UUID) error {
	return s.mutate(ctx, email, planID, func(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
		return progress.Reconcile(state, now)
	})
}

type transition func(state models.ProgressState, now time.Time) (models.ProgressState, bool)

// mutate loads the user under a row lock, applies fn to the targeted plan's
// progress state, and persists the result. V1 records keep their flat shape;
// the transition runs on a synthesized state and the changed fields are
// written back without migrating the record.
func (s *ProgressService) mutate(ctx context.Context, email string, planID uuid.UUID, fn transition) error {
	email = models.NormalizeEmail(email)

	written := false
	writtenPlan := uuid.Nil
	err := withTx(ctx, s.db, func(tx Tx) error {
		record, err := loadUserRecordForUpdate(ctx, tx, email)
		if err != nil {
			return err
		}

		now := s.now().In(record.Settings().Location())

		if record.SchemaVersion == models.SchemaV1 {
			state := legacyProgressState(record.V1)
			next, changed := fn(state, now)
			if !changed {
				return nil
			}
			if err := writeLegacyProgress(ctx, tx, email, next, s.now().UTC()); err != nil {
				return err
			}
			written = true
			return nil
		}

		user := record.V2
		plan := user.ActivePlan()
		if planID != uuid.Nil {
			plan = user.PlanByID(planID)
		}
		if plan == nil {
			return ErrPlanNotFound
		}

		next, changed := fn(plan.Progress, now)
		if !changed {
			return nil
		}
		plan.Progress = next
		plan.UpdatedAt = s.now().UTC()
		user.RecomputeGlobals()

		if err := writeUserDoc(ctx, tx, email, user, s.now().UTC()); err != nil {
			return err
		}
		written = true
		writtenPlan = plan.ID
		return nil
	})
	if err != nil {
		return err
	}
	if written {
		s.announce(email, writtenPlan)
	}
	return nil
}

func (s *ProgressService) announce(email string, planID uuid.UUID) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(SyncEvent{Email: email, PlanID: planID, OccurredAt: s.now().UTC()})
}

// legacyProgressState projects a V1 record's flat progress fields into the
// shared transition shape.
func legacyProgressState(legacy *models.LegacyUser) models.ProgressState {
	return models.ProgressState{
		CompletedTasks: legacy.CompletedTasks,
		TotalPoints:    legacy.TotalPoints,
		EarnedPoints:   legacy.EarnedPoints,
		CurrentStreak:  legacy.CurrentStreak,
		LongestStreak:  legacy.LongestStreak,
		LastCheckIn:    legacy.LastCheckIn,
		DailyCheckIns:  legacy.DailyCheckIns,
	}
}

func writeLegacyProgress(ctx context.Context, tx Tx, email string, state models.ProgressState, updatedAt time.Time) error {
	fields := map[string]any{
		"completedTasks": state.CompletedTasks,
		"earnedPoints":   state.EarnedPoints,
		"currentStreak":  state.CurrentStreak,
		"longestStreak":  state.LongestStreak,
		"lastCheckIn":    state.LastCheckIn,
		"dailyCheckIns":  state.DailyCheckIns,
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding progress patch: %w", err)
	}
	tag, err := tx.Exec(ctx,
		"UPDATE users SET doc = doc || $2::jsonb, updated_at = $3 WHERE email = $1",
		email, patch, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("patching progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
