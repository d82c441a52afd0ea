package models

import "github.com/google/uuid"

type TaskType string

const (
	TaskLearn    TaskType = "learn"
	TaskPractice TaskType = "practice"
	TaskBuild    TaskType = "build"
	TaskReview   TaskType = "review"
)

func (t TaskType) IsValid() bool {
	switch t {
	case TaskLearn, TaskPractice, TaskBuild, TaskReview:
		return true
	}
	return false
}

// Task is one daily unit of work. Content is immutable after plan creation;
// only its completion status changes, and that lives on the plan's
// ProgressState, not here.
type Task struct {
	ID              string    `json:"id"`
	PlanID          uuid.UUID `json:"planId"`
	Date            string    `json:"date"` // yyyy-mm-dd
	DayIndex        int       `json:"dayIndex"`
	WeekIndex       int       `json:"weekIndex"`
	MonthIndex      int       `json:"monthIndex"`
	QuarterIndex    int       `json:"quarterIndex"`
	Type            TaskType  `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	Points          int       `json:"points"`
	Resources       []string  `json:"resources,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}
