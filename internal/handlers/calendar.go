package handlers

import (
	"net/http"
	"strconv"

	"github.com/stridehq/stride/internal/calendar"
)

// CalendarHandler serves the derived working-day calendar. The calendar is
// pure computation, so no service sits behind it.
type CalendarHandler struct {
	flexPerMonth int
}

func NewCalendarHandler(flexPerMonth int) *CalendarHandler {
	if flexPerMonth <= 0 {
		flexPerMonth = calendar.DefaultFlexDaysPerMonth
	}
	return &CalendarHandler{flexPerMonth: flexPerMonth}
}

func (h *CalendarHandler) Year(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 2000 || year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	schedule := calendar.ScheduleType(r.URL.Query().Get("schedule"))
	if schedule == "" {
		schedule = calendar.ScheduleWeekdays
	}
	if !schedule.IsValid() {
		writeError(w, http.StatusBadRequest, "Invalid schedule")
		return
	}

	days := calendar.Generate(year, schedule, h.flexPerMonth)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"schedule": schedule,
		"total":    len(days),
		"days":     days,
	})
}
