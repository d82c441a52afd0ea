package ai

import (
	"context"
	"fmt"
)

// StubGenerator produces a small deterministic plan. Used when no provider
// is configured, so local development works without an API key.
type StubGenerator struct{}

func (StubGenerator) GeneratePlan(_ context.Context, prompt GoalPrompt) (*GeneratedPlan, UsageStats, error) {
	if prompt.Goal == "" {
		return nil, UsageStats{}, ErrInvalidInput
	}

	types := []string{"learn", "practice", "build", "review"}
	tasks := make([]GeneratedTask, 0, 20)
	for i := 0; i < 20; i++ {
		tasks = append(tasks, GeneratedTask{
			DayIndex:        i,
			Type:            types[i%len(types)],
			Title:           fmt.Sprintf("Day %d: work toward %s", i+1, prompt.Goal),
			DurationMinutes: 60,
			Points:          10,
		})
	}

	return &GeneratedPlan{
		Title:       prompt.Goal,
		Description: "Starter plan generated without an AI provider.",
		Icon:        "target",
		Tasks:       tasks,
	}, UsageStats{}, nil
}
