package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/calendar"
)

// ValidCategories defines the allowed plan categories
var ValidCategories = []string{
	"career",    // Career & Skills
	"fitness",   // Health & Fitness
	"learning",  // Learning & Education
	"creative",  // Creative Projects
	"finance",   // Money & Finance
	"personal",  // Personal Growth
}

// IsValidCategory checks if a category string is valid
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Plan is one multi-month task plan owned by a single user. Tasks may be
// embedded or externalized under the plan id; TotalTasks is stored
// independently so an empty embedded list is detectable as externalized.
type Plan struct {
	ID                uuid.UUID             `json:"id"`
	Title             string                `json:"title"`
	Description       string                `json:"description,omitempty"`
	Category          string                `json:"category,omitempty"`
	Icon              string                `json:"icon,omitempty"`
	Schedule          calendar.ScheduleType `json:"schedule"`
	CustomDaysPerWeek int                   `json:"customDaysPerWeek,omitempty"`
	StartDate         string                `json:"startDate"`
	EndDate           string                `json:"endDate"`
	TotalDays         int                   `json:"totalDays"`
	TotalTasks        int                   `json:"totalTasks"`
	Tasks             []Task                `json:"tasks,omitempty"`
	Progress          ProgressState         `json:"progress"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// ProgressState carries a plan's mutable progress fields. Transitions live
// in the progress package and always return a new snapshot.
type ProgressState struct {
	CompletedTasks     map[string]TaskCompletion `json:"completedTasks"`
	TotalPoints        int                       `json:"totalPoints"`
	EarnedPoints       int                       `json:"earnedPoints"`
	CurrentStreak      int                       `json:"currentStreak"`
	LongestStreak      int                       `json:"longestStreak"`
	LastCheckIn        *time.Time                `json:"lastCheckIn,omitempty"`
	DailyCheckIns      map[string]bool           `json:"dailyCheckIns"`
	QuizAttempts       []QuizAttempt             `json:"quizAttempts,omitempty"`
	ProblemSubmissions []ProblemSubmission       `json:"problemSubmissions,omitempty"`
}

// NewProgressState returns an empty state with allocated maps. totalPoints
// is the plan's full point value, fixed at creation.
func NewProgressState(totalPoints int) ProgressState {
	return ProgressState{
		CompletedTasks: make(map[string]TaskCompletion),
		TotalPoints:    totalPoints,
		DailyCheckIns:  make(map[string]bool),
	}
}

// TaskCompletion is the permanent record of a single task's completion.
// Once present it is never removed or overwritten.
type TaskCompletion struct {
	CompletedAt time.Time `json:"completedAt"`
	Points      int       `json:"points"`
	QuizScore   *int      `json:"quizScore,omitempty"`
}

// QuizAttempt is one entry in the append-only quiz log. A task may be
// retried; appending never replaces prior entries.
type QuizAttempt struct {
	TaskID      string    `json:"taskId"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// ProblemSubmission is one entry in the append-only external-problem log.
type ProblemSubmission struct {
	TaskID      string    `json:"taskId"`
	Problem     string    `json:"problem"`
	URL         string    `json:"url,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// CompletedCount returns the number of completed tasks.
func (p *Plan) CompletedCount() int {
	return len(p.Progress.CompletedTasks)
}

// ProgressPercent returns completion as a 0-100 percentage.
func (p *Plan) ProgressPercent() float64 {
	return progressPercent(p.CompletedCount(), p.TotalTasks)
}

// TasksExternalized reports whether the task payload lives in the external
// task store rather than embedded on the plan.
func (p *Plan) TasksExternalized() bool {
	return p.TotalTasks > 0 && len(p.Tasks) == 0
}

// Summary builds the version-independent plan view.
func (p *Plan) Summary(active bool) PlanSummary {
	return PlanSummary{
		ID:                  p.ID,
		Title:               p.Title,
		Category:            p.Category,
		StartDate:           p.StartDate,
		EndDate:             p.EndDate,
		TotalTasks:          p.TotalTasks,
		CompletedTasksCount: p.CompletedCount(),
		ProgressPercent:     p.ProgressPercent(),
		EarnedPoints:        p.Progress.EarnedPoints,
		CurrentStreak:       p.Progress.CurrentStreak,
		LongestStreak:       p.Progress.LongestStreak,
		IsActive:            active,
	}
}

type CreatePlanParams struct {
	Title             string
	Description       string
	Category          string
	Icon              string
	Schedule          calendar.ScheduleType
	CustomDaysPerWeek int
	Year              int
	Tasks             []Task
}
