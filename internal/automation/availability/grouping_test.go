package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2025-07-14 10:30 in Guatemala.
func monday(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Guatemala")
	require.NoError(t, err)
	return time.Date(2025, 7, 14, 10, 30, 0, 0, loc)
}

func TestGroupSections(t *testing.T) {
	now := monday(t)

	sections := []DaySection{
		{Label: "Hoy", Times: []string{"18:00", "08:00"}},
		{Label: "Mañana", Times: []string{"07:00"}},
		{Label: "miércoles 16", Times: []string{"09:00", "not-a-time"}},
		{Label: "2025-07-20", Times: []string{"11:00"}},
		{Label: "???", Times: []string{"12:00"}},
	}

	grouped := GroupSections(sections, now)

	assert.Equal(t, []string{"08:00", "18:00"}, grouped["2025-07-14"], "sorted")
	assert.Equal(t, []string{"07:00"}, grouped["2025-07-15"])
	assert.Equal(t, []string{"09:00"}, grouped["2025-07-16"], "weekday resolves to next occurrence")
	assert.Equal(t, []string{"11:00"}, grouped["2025-07-20"])
	assert.Len(t, grouped, 4, "unresolvable labels are dropped, not guessed")
}

func TestResolveLabel_WeekdayWrapsForward(t *testing.T) {
	now := monday(t)

	// "domingo" from a Monday is six days out, not yesterday.
	date, ok := resolveLabel("Domingo 20", now)
	require.True(t, ok)
	assert.Equal(t, "2025-07-20", date)

	// Same weekday as today resolves to today.
	date, ok = resolveLabel("lunes", now)
	require.True(t, ok)
	assert.Equal(t, "2025-07-14", date)
}

func TestFallbackToday(t *testing.T) {
	now := monday(t)

	grouped := FallbackToday([]string{"18:00", "junk", "11:00"}, now)
	assert.Equal(t, map[string][]string{"2025-07-14": {"11:00", "18:00"}}, grouped)

	assert.Empty(t, FallbackToday([]string{"junk"}, now))
}

func TestFilterPast(t *testing.T) {
	now := monday(t) // 10:30

	kept := FilterPast([]string{"08:00", "10:29", "10:30", "18:00"}, now)
	assert.Equal(t, []string{"10:30", "18:00"}, kept)
}

func TestApplyFeasibility(t *testing.T) {
	now := monday(t) // Monday 2025-07-14 10:30

	t.Run("drops past times and infeasible day after tomorrow", func(t *testing.T) {
		grouped := map[string][]string{
			"2025-07-14": {"08:00", "18:00"},
			"2025-07-15": {"07:00"},
			"2025-07-16": {"07:00", "18:00"},
		}

		out := ApplyFeasibility(grouped, now, 21, 48)

		assert.Equal(t, []string{"18:00"}, out["2025-07-14"], "past times filtered")
		assert.Equal(t, []string{"07:00"}, out["2025-07-15"], "tomorrow untouched")
		assert.Contains(t, out, "2025-07-16",
			"Wednesday 07:00 is 44.5h out, inside the 48h window")
	})

	t.Run("drops day after tomorrow outside the window", func(t *testing.T) {
		grouped := map[string][]string{
			"2025-07-16": {"18:00"},
		}

		out := ApplyFeasibility(grouped, now, 21, 48)
		assert.NotContains(t, out, "2025-07-16",
			"Wednesday 18:00 is 55.5h out, beyond the 48h window")
	})

	t.Run("drops today past the last bookable hour", func(t *testing.T) {
		grouped := map[string][]string{
			"2025-07-14": {"18:00"},
		}

		out := ApplyFeasibility(grouped, now, 10, 48)
		assert.NotContains(t, out, "2025-07-14",
			"hour 10 is not before a last bookable hour of 10")
	})

	t.Run("drops today when only past times remain", func(t *testing.T) {
		grouped := map[string][]string{
			"2025-07-14": {"07:00", "09:00"},
		}

		out := ApplyFeasibility(grouped, now, 21, 48)
		assert.NotContains(t, out, "2025-07-14")
	})
}

func TestTodayFeasible(t *testing.T) {
	now := monday(t) // hour 10

	assert.True(t, TodayFeasible(now, 21))
	assert.False(t, TodayFeasible(now, 10))
	assert.False(t, TodayFeasible(now, 9))
}

func TestDayAfterTomorrowFeasible(t *testing.T) {
	now := monday(t) // Monday 10:30

	// Wednesday 08:00 is 45.5h away: inside a 48h window.
	assert.True(t, DayAfterTomorrowFeasible(now, "08:00", 48))
	// Wednesday 18:00 is 55.5h away: outside.
	assert.False(t, DayAfterTomorrowFeasible(now, "18:00", 48))
	assert.False(t, DayAfterTomorrowFeasible(now, "junk", 48))
}

func TestNormalizeTimes(t *testing.T) {
	assert.Equal(t, []string{"08:00", "18:30", "x:yy"}, normalizeTimes([]string{"8:00", "18:30", "x:yy"}))
}
