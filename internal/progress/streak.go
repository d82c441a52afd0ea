package progress

import (
	"time"

	"github.com/stridehq/stride/internal/models"
)

// CheckIn records today's check-in and advances the streak. Idempotent per
// calendar day: a second call on the same date returns the state unchanged.
//
// Continuation precedence:
//  1. yesterday has a check-in entry: increment from the stored streak;
//  2. otherwise, a lastCheckIn exists: a whole-day gap above 1 starts a new
//     streak of 1, anything closer increments;
//  3. otherwise this is the first check-in ever: streak is 1.
func CheckIn(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
	today := DayKey(now)
	if state.DailyCheckIns[today] {
		return state, false
	}

	next := cloneState(state)
	next.DailyCheckIns[today] = true

	yesterday := DayKey(dayStart(now).AddDate(0, 0, -1))

	var streak int
	switch {
	case state.DailyCheckIns[yesterday]:
		streak = state.CurrentStreak + 1
	case state.LastCheckIn != nil:
		if wholeDaysBetween(*state.LastCheckIn, now) > 1 {
			streak = 1
		} else {
			streak = state.CurrentStreak + 1
		}
	default:
		streak = 1
	}

	next.CurrentStreak = streak
	if streak > next.LongestStreak {
		next.LongestStreak = streak
	}
	checkedInAt := now
	next.LastCheckIn = &checkedInAt

	return next, true
}

// Reconcile is the lazy reset check, invoked on state load rather than on a
// timer. A gap of more than one whole day since the last check-in forces
// the current streak to zero. longestStreak is never reduced.
func Reconcile(state models.ProgressState, now time.Time) (models.ProgressState, bool) {
	if state.LastCheckIn == nil || state.CurrentStreak == 0 {
		return state, false
	}
	if wholeDaysBetween(*state.LastCheckIn, now) <= 1 {
		return state, false
	}

	next := cloneState(state)
	next.CurrentStreak = 0
	return next, true
}
