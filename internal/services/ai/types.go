package ai

import "context"

// GoalPrompt describes the user's goal for plan generation.
type GoalPrompt struct {
	Goal            string `json:"goal"`
	Category        string `json:"category"`
	ExperienceLevel string `json:"experienceLevel"`
	HoursPerDay     int    `json:"hoursPerDay"`
	Schedule        string `json:"schedule"`
	Context         string `json:"context"`
}

// GeneratedTask is one task proposed by the model, positioned by day index
// into the plan's working-day calendar.
type GeneratedTask struct {
	DayIndex        int      `json:"dayIndex"`
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"durationMinutes"`
	Points          int      `json:"points"`
	Resources       []string `json:"resources,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// GeneratedPlan is the model's full proposal.
type GeneratedPlan struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Tasks       []GeneratedTask `json:"tasks"`
}

// UsageStats reports token spend for a single generation call.
type UsageStats struct {
	InputTokens  int
	OutputTokens int
}

// Generator produces a task plan for a goal.
type Generator interface {
	GeneratePlan(ctx context.Context, prompt GoalPrompt) (*GeneratedPlan, UsageStats, error)
}
