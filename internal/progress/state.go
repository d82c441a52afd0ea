// Package progress holds the pure state transitions for streaks and task
// completion. Every transition returns a new snapshot; callers persist the
// result through the sync queue, and persistence failures never roll a
// transition back.
package progress

import (
	"time"

	"github.com/stridehq/stride/internal/calendar"
	"github.com/stridehq/stride/internal/models"
)

// DayKey formats a time as the canonical yyyy-mm-dd check-in key.
func DayKey(t time.Time) string {
	return t.Format(calendar.DateLayout)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// wholeDaysBetween counts calendar days from earlier's date to later's
// date, evaluated in later's location. The dates are re-anchored in UTC so
// a DST transition inside the gap never shortens a day below 24 hours.
func wholeDaysBetween(earlier, later time.Time) int {
	ay, am, ad := earlier.In(later.Location()).Date()
	by, bm, bd := later.Date()
	a := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	b := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func cloneState(state models.ProgressState) models.ProgressState {
	next := state

	next.CompletedTasks = make(map[string]models.TaskCompletion, len(state.CompletedTasks)+1)
	for k, v := range state.CompletedTasks {
		next.CompletedTasks[k] = v
	}

	next.DailyCheckIns = make(map[string]bool, len(state.DailyCheckIns)+1)
	for k, v := range state.DailyCheckIns {
		next.DailyCheckIns[k] = v
	}

	if state.QuizAttempts != nil {
		next.QuizAttempts = append([]models.QuizAttempt(nil), state.QuizAttempts...)
	}
	if state.ProblemSubmissions != nil {
		next.ProblemSubmissions = append([]models.ProblemSubmission(nil), state.ProblemSubmissions...)
	}
	if state.LastCheckIn != nil {
		t := *state.LastCheckIn
		next.LastCheckIn = &t
	}

	return next
}
