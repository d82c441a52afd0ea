// Package calendar derives the set of active working days for a plan year.
// Generation is pure: the same inputs always produce the same sequence.
package calendar

import "time"

type ScheduleType string

const (
	// ScheduleWeekdays includes Monday through Friday only.
	ScheduleWeekdays ScheduleType = "weekdays"
	// ScheduleFullWeek includes every day of the year.
	ScheduleFullWeek ScheduleType = "fullweek"
)

func (s ScheduleType) IsValid() bool {
	return s == ScheduleWeekdays || s == ScheduleFullWeek
}

const (
	// DefaultFlexDaysPerMonth is the flex-day budget granted to each month.
	DefaultFlexDaysPerMonth = 2

	// SlotsPerDay is the number of sub-task slots each active day carries.
	SlotsPerDay = 3

	// DateLayout is the canonical yyyy-mm-dd form used for day keys.
	DateLayout = "2006-01-02"
)

// recoveryWeeks are the quarter-boundary lighter-load weeks. Days in these
// weeks stay in the sequence; callers use the flag to reduce task density.
var recoveryWeeks = map[int]bool{13: true, 26: true, 39: true, 52: true}

// IsRecoveryWeek reports whether the given ISO week number is a recovery week.
func IsRecoveryWeek(week int) bool {
	return recoveryWeeks[week]
}

// Day is one active calendar day of a plan year. Values are never mutated
// after generation.
type Day struct {
	Date           string `json:"date"` // yyyy-mm-dd
	DayOfWeek      string `json:"dayOfWeek"`
	WeekNumber     int    `json:"weekNumber"` // ISO week, Monday start
	Month          int    `json:"month"`      // 1-12
	Quarter        int    `json:"quarter"`    // 1-4
	IsWeekend      bool   `json:"isWeekend"`
	IsRecoveryWeek bool   `json:"isRecoveryWeek"`
	IsFlexDay      bool   `json:"isFlexDay"`
}

// Generate produces the ordered active-day sequence for a year. Weekend
// dates are excluded entirely under the weekdays schedule. flexBudget is
// the per-month flex-day allowance; values below zero fall back to the
// default.
func Generate(year int, schedule ScheduleType, flexBudget int) []Day {
	if !schedule.IsValid() {
		schedule = ScheduleWeekdays
	}
	if flexBudget < 0 {
		flexBudget = DefaultFlexDaysPerMonth
	}

	days := make([]Day, 0, 366)
	flexUsed := make(map[int]int, 12)

	for date := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); date.Year() == year; date = date.AddDate(0, 0, 1) {
		weekday := date.Weekday()
		isWeekend := weekday == time.Saturday || weekday == time.Sunday
		if schedule == ScheduleWeekdays && isWeekend {
			continue
		}

		_, week := date.ISOWeek()
		month := int(date.Month())

		day := Day{
			Date:           date.Format(DateLayout),
			DayOfWeek:      weekday.String(),
			WeekNumber:     week,
			Month:          month,
			Quarter:        (month + 2) / 3,
			IsWeekend:      isWeekend,
			IsRecoveryWeek: recoveryWeeks[week],
		}

		// Flex selection depends on ISO week parity, not "last Friday of
		// the month"; the two are not equivalent for all month layouts.
		if weekday == time.Friday && week%2 == 0 && flexUsed[month] < flexBudget {
			day.IsFlexDay = true
			flexUsed[month]++
		}

		days = append(days, day)
	}

	return days
}

// DaysInWeek returns the active days carrying the given ISO week number.
func DaysInWeek(days []Day, week int) []Day {
	var out []Day
	for _, d := range days {
		if d.WeekNumber == week {
			out = append(out, d)
		}
	}
	return out
}

// DaysInMonth returns the active days of the given month (1-12).
func DaysInMonth(days []Day, month int) []Day {
	var out []Day
	for _, d := range days {
		if d.Month == month {
			out = append(out, d)
		}
	}
	return out
}

// DayOn finds the entry for a yyyy-mm-dd date string.
func DayOn(days []Day, date string) (Day, bool) {
	for _, d := range days {
		if d.Date == date {
			return d, true
		}
	}
	return Day{}, false
}

// Today finds the entry for the current date, if it is an active day.
func Today(days []Day, now time.Time) (Day, bool) {
	return DayOn(days, now.Format(DateLayout))
}

// StreakLength counts consecutive completed days ending at today, or at
// yesterday when today has no entry yet. It walks calendar dates, so a
// single missed day breaks the run; this agrees with the check-in streak
// rules in the progress package.
func StreakLength(completed map[string]bool, now time.Time) int {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !completed[day.Format(DateLayout)] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for completed[day.Format(DateLayout)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// WeekProgress returns the completed ratio for an ISO week, where each
// active day contributes SlotsPerDay completion slots.
func WeekProgress(days []Day, week, completed int) float64 {
	return slotRatio(len(DaysInWeek(days, week)), completed)
}

// MonthProgress returns the completed ratio for a month.
func MonthProgress(days []Day, month, completed int) float64 {
	return slotRatio(len(DaysInMonth(days, month)), completed)
}

func slotRatio(dayCount, completed int) float64 {
	total := dayCount * SlotsPerDay
	if total == 0 {
		return 0
	}
	ratio := float64(completed) / float64(total)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
