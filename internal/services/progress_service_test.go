package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/models"
)

func progressServiceFor(store *planTestDB, queue *SyncQueue, now time.Time) *ProgressService {
	svc := NewProgressService(store.db(), queue)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCheckInOnActivePlan(t *testing.T) {
	planID := uuid.New()
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Title: "p", Progress: models.NewProgressState(100)}},
		ActivePlanID: &planID,
	})}
	queue := NewSyncQueue(4, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, queue, now).CheckIn(context.Background(), "a@b.co", uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CurrentStreak != 1 || result.AlreadyDone {
		t.Fatalf("unexpected result: %+v", result)
	}

	written := store.writtenUser(t)
	if !written.Plans[0].Progress.DailyCheckIns["2026-03-02"] {
		t.Error("expected the check-in persisted")
	}
	if written.GlobalCurrentStreak != 1 {
		t.Errorf("expected global streak recomputed, got %d", written.GlobalCurrentStreak)
	}

	select {
	case event := <-queue.events:
		if event.Email != "a@b.co" || event.PlanID != planID {
			t.Errorf("unexpected sync event: %+v", event)
		}
	default:
		t.Error("expected a sync event")
	}
}

func TestCheckInSameDayIsNoWrite(t *testing.T) {
	planID := uuid.New()
	progress := models.NewProgressState(100)
	progress.DailyCheckIns["2026-03-02"] = true
	progress.CurrentStreak = 1
	progress.LongestStreak = 1
	checkedIn := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	progress.LastCheckIn = &checkedIn

	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: progress}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, nil, now).CheckIn(context.Background(), "a@b.co", uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AlreadyDone || result.CurrentStreak != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.writtenDoc != nil {
		t.Error("expected no doc write for a same-day check-in")
	}
	if !store.committed {
		t.Error("expected the read transaction committed")
	}
}

func TestCheckInExplicitPlanID(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans: []models.Plan{
			{ID: first, Progress: models.NewProgressState(100)},
			{ID: second, Progress: models.NewProgressState(100)},
		},
		ActivePlanID: &first,
	})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := progressServiceFor(store, nil, now).CheckIn(context.Background(), "a@b.co", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := store.writtenUser(t)
	if written.Plans[0].Progress.CurrentStreak != 0 {
		t.Error("expected the first plan untouched")
	}
	if written.Plans[1].Progress.CurrentStreak != 1 {
		t.Error("expected the second plan checked in")
	}
}

func TestCheckInUnknownPlan(t *testing.T) {
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{Plans: []models.Plan{}})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := progressServiceFor(store, nil, now).CheckIn(context.Background(), "a@b.co", uuid.New()); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

// Day boundaries follow the user's timezone: 02:00 UTC on March 3rd is
// still March 2nd in New York.
func TestCheckInUsesUserTimezone(t *testing.T) {
	planID := uuid.New()
	settings := models.DefaultSettings()
	settings.Timezone = "America/New_York"
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Settings:     settings,
		Plans:        []models.Plan{{ID: planID, Progress: models.NewProgressState(100)}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)

	if _, err := progressServiceFor(store, nil, now).CheckIn(context.Background(), "a@b.co", uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := store.writtenUser(t)
	if !written.Plans[0].Progress.DailyCheckIns["2026-03-02"] {
		t.Errorf("expected a local-date key, got %v", written.Plans[0].Progress.DailyCheckIns)
	}
}

// A stale streak is reset on load before the new check-in applies.
func TestCheckInAfterGapStartsFresh(t *testing.T) {
	planID := uuid.New()
	progress := models.NewProgressState(100)
	progress.DailyCheckIns["2026-03-02"] = true
	progress.DailyCheckIns["2026-03-03"] = true
	progress.CurrentStreak = 2
	progress.LongestStreak = 2
	last := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	progress.LastCheckIn = &last

	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: progress}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, nil, now).CheckIn(context.Background(), "a@b.co", uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CurrentStreak != 1 {
		t.Errorf("expected a fresh streak of 1, got %d", result.CurrentStreak)
	}
	if result.LongestStreak != 2 {
		t.Errorf("expected longest streak preserved, got %d", result.LongestStreak)
	}
}

func TestCompleteTaskPersistsAndAggregates(t *testing.T) {
	planID := uuid.New()
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: models.NewProgressState(100)}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, nil, now).CompleteTask(context.Background(), "a@b.co", planID, "d1-t1", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyCompleted {
		t.Error("expected a fresh completion")
	}
	if result.EarnedPoints != 10 {
		t.Errorf("expected 10 earned points, got %d", result.EarnedPoints)
	}
	written := store.writtenUser(t)
	if written.Plans[0].Progress.EarnedPoints != 10 {
		t.Errorf("expected 10 points, got %d", written.Plans[0].Progress.EarnedPoints)
	}
	if written.GlobalTotalPoints != 10 {
		t.Errorf("expected global points recomputed, got %d", written.GlobalTotalPoints)
	}
}

func TestCompleteTaskDuplicate(t *testing.T) {
	planID := uuid.New()
	progress := models.NewProgressState(100)
	progress.CompletedTasks["d1-t1"] = models.TaskCompletion{Points: 10}
	progress.EarnedPoints = 10
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: progress}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, nil, now).CompleteTask(context.Background(), "a@b.co", planID, "d1-t1", 10, nil)
	if err != nil {
		t.Fatalf("expected a duplicate completion to succeed, got %v", err)
	}
	if !result.AlreadyCompleted {
		t.Error("expected the duplicate flagged")
	}
	if result.EarnedPoints != 10 {
		t.Errorf("expected points unchanged at 10, got %d", result.EarnedPoints)
	}
	if store.writtenDoc != nil {
		t.Error("expected no write for a duplicate completion")
	}
}

// Check-ins on a V1 record patch the flat fields and never migrate it.
func TestCheckInOnV1PatchesFlatFields(t *testing.T) {
	doc := mustJSON(t, map[string]any{
		"goal":          "Old goal",
		"currentStreak": 0,
	})
	store := &planTestDB{version: 1, doc: doc}
	queue := NewSyncQueue(4, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	result, err := progressServiceFor(store, queue, now).CheckIn(context.Background(), "bob@example.com", uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CurrentStreak != 1 {
		t.Errorf("expected streak 1, got %d", result.CurrentStreak)
	}
	if store.writtenDoc != nil {
		t.Fatal("a V1 check-in must not rewrite the record as V2")
	}
	if len(store.patchedPairs) != 1 {
		t.Fatalf("expected one flat patch, got %d", len(store.patchedPairs))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(store.patchedPairs[0], &fields); err != nil {
		t.Fatalf("decoding patch: %v", err)
	}
	for _, key := range []string{"currentStreak", "longestStreak", "dailyCheckIns", "lastCheckIn"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected %s in the flat patch", key)
		}
	}
	if _, ok := fields["plans"]; ok {
		t.Error("a V1 patch must not introduce a plans field")
	}

	select {
	case event := <-queue.events:
		if event.PlanID != uuid.Nil {
			t.Errorf("expected the implicit plan marker, got %s", event.PlanID)
		}
	default:
		t.Error("expected a sync event")
	}
}

func TestRecordQuizAttemptAppends(t *testing.T) {
	planID := uuid.New()
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: models.NewProgressState(100)}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	attempt := models.QuizAttempt{TaskID: "d1-t1", Score: 7, Total: 10}
	if err := progressServiceFor(store, nil, now).RecordQuizAttempt(context.Background(), "a@b.co", planID, attempt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := store.writtenUser(t)
	attempts := written.Plans[0].Progress.QuizAttempts
	if len(attempts) != 1 || attempts[0].Score != 7 {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
	if attempts[0].AttemptedAt.IsZero() {
		t.Error("expected the attempt timestamped")
	}
}

func TestRecordProblemSubmissionAppends(t *testing.T) {
	planID := uuid.New()
	store := &planTestDB{version: 2, doc: v2Doc(t, &models.User{
		Plans:        []models.Plan{{ID: planID, Progress: models.NewProgressState(100)}},
		ActivePlanID: &planID,
	})}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	submission := models.ProblemSubmission{TaskID: "d1-t1", Problem: "two-sum", Status: "accepted"}
	if err := progressServiceFor(store, nil, now).RecordProblemSubmission(context.Background(), "a@b.co", planID, submission); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := store.writtenUser(t)
	if len(written.Plans[0].Progress.ProblemSubmissions) != 1 {
		t.Fatal("expected one submission")
	}
}
