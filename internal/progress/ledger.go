package progress

import (
	"time"

	"github.com/stridehq/stride/internal/models"
)

// CompleteTask records a permanent completion and credits its points.
// Idempotent: a task already in the completion map is a no-op, never a
// double credit or an overwrite.
func CompleteTask(state models.ProgressState, taskID string, points int, quizScore *int, now time.Time) (models.ProgressState, bool) {
	if _, done := state.CompletedTasks[taskID]; done {
		return state, false
	}

	next := cloneState(state)
	next.CompletedTasks[taskID] = models.TaskCompletion{
		CompletedAt: now,
		Points:      points,
		QuizScore:   quizScore,
	}
	next.EarnedPoints += points

	return next, true
}

// AppendQuizAttempt adds to the append-only quiz log. Retries for the same
// task append new entries; nothing is ever removed.
func AppendQuizAttempt(state models.ProgressState, attempt models.QuizAttempt) models.ProgressState {
	next := cloneState(state)
	next.QuizAttempts = append(next.QuizAttempts, attempt)
	return next
}

// AppendProblemSubmission adds to the append-only external-problem log.
func AppendProblemSubmission(state models.ProgressState, submission models.ProblemSubmission) models.ProgressState {
	next := cloneState(state)
	next.ProblemSubmissions = append(next.ProblemSubmissions, submission)
	return next
}
