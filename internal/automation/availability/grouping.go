package availability

import (
	"sort"
	"strings"
	"time"

	"courtbot-service/pkg/timeutil"
)

// DaySection is one day header and the time buttons listed under it,
// exactly as scraped from the schedule page.
type DaySection struct {
	Label string
	Times []string
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday, "sunday": time.Sunday,
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miércoles": time.Wednesday, "miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sábado": time.Saturday, "sabado": time.Saturday, "saturday": time.Saturday,
}

// GroupSections resolves day-section labels into ISO dates and collects
// each section's valid times under its date. Sections whose label
// cannot be resolved are dropped rather than guessed.
func GroupSections(sections []DaySection, now time.Time) map[string][]string {
	out := make(map[string][]string)
	for _, section := range sections {
		date, ok := resolveLabel(section.Label, now)
		if !ok {
			continue
		}
		for _, slot := range section.Times {
			if !timeutil.ValidClock(slot) {
				continue
			}
			out[date] = append(out[date], slot)
		}
	}
	for date := range out {
		sort.Strings(out[date])
	}
	return out
}

// FallbackToday assigns every scraped time to today's date. Used when
// the page's day-section markup is missing entirely.
func FallbackToday(times []string, now time.Time) map[string][]string {
	today := now.Format(timeutil.DateLayout)
	out := make(map[string][]string)
	for _, slot := range times {
		if timeutil.ValidClock(slot) {
			out[today] = append(out[today], slot)
		}
	}
	sort.Strings(out[today])
	if len(out[today]) == 0 {
		delete(out, today)
	}
	return out
}

// resolveLabel turns a day header into an ISO date: "hoy"/"today",
// "mañana"/"tomorrow", a weekday name (next occurrence), or an explicit
// date.
func resolveLabel(label string, now time.Time) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch normalized {
	case "hoy", "today":
		return now.Format(timeutil.DateLayout), true
	case "mañana", "manana", "tomorrow":
		return now.AddDate(0, 0, 1).Format(timeutil.DateLayout), true
	}

	// Headers often read "jueves 17" or "jueves, 17 de julio".
	for name, weekday := range weekdayNames {
		if strings.HasPrefix(normalized, name) {
			days := (int(weekday) - int(now.Weekday()) + 7) % 7
			return now.AddDate(0, 0, days).Format(timeutil.DateLayout), true
		}
	}

	if _, err := timeutil.ParseDate(normalized); err == nil {
		return normalized, true
	}
	return "", false
}

// FilterPast drops times already behind the wall clock. Only applied to
// today's date; resolution is one minute.
func FilterPast(times []string, now time.Time) []string {
	var out []string
	for _, slot := range times {
		hour, minute, err := timeutil.ParseClock(slot)
		if err != nil {
			continue
		}
		slotAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !slotAt.Before(now.Truncate(time.Minute)) {
			out = append(out, slot)
		}
	}
	return out
}

// ApplyFeasibility enforces the day-level guardrails on a grouped
// result: today's past times go, today disappears entirely once the
// venue's last bookable hour is behind the clock, and the day after
// tomorrow only stays when its earliest slot already sits inside the
// advance booking window. Mutates and returns the map.
func ApplyFeasibility(grouped map[string][]string, now time.Time, lastBookableHour, windowHours int) map[string][]string {
	today := now.Format(timeutil.DateLayout)
	if slots, ok := grouped[today]; ok {
		slots = FilterPast(slots, now)
		if len(slots) == 0 || !TodayFeasible(now, lastBookableHour) {
			delete(grouped, today)
		} else {
			grouped[today] = slots
		}
	}

	dayAfterTomorrow := now.AddDate(0, 0, 2).Format(timeutil.DateLayout)
	if slots, ok := grouped[dayAfterTomorrow]; ok {
		if len(slots) == 0 || !DayAfterTomorrowFeasible(now, slots[0], windowHours) {
			delete(grouped, dayAfterTomorrow)
		}
	}

	return grouped
}

// TodayFeasible reports whether today still has bookable hours left
func TodayFeasible(now time.Time, lastBookableHour int) bool {
	return now.Hour() < lastBookableHour
}

// DayAfterTomorrowFeasible reports whether the earliest slot two days
// out already sits inside the advance booking window.
func DayAfterTomorrowFeasible(now time.Time, earliestSlot string, windowHours int) bool {
	hour, minute, err := timeutil.ParseClock(earliestSlot)
	if err != nil {
		return false
	}
	dayAfter := now.AddDate(0, 0, 2)
	slotAt := time.Date(dayAfter.Year(), dayAfter.Month(), dayAfter.Day(), hour, minute, 0, 0, now.Location())
	return slotAt.Sub(now) <= time.Duration(windowHours)*time.Hour
}
