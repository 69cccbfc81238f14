package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 8, hour)
	assert.Equal(t, 30, minute)

	for _, bad := range []string{"8am", "25:00", "08:61", "0800", ""} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestValidClock(t *testing.T) {
	assert.True(t, ValidClock("00:00"))
	assert.True(t, ValidClock("23:59"))
	assert.False(t, ValidClock("24:00"))
	assert.False(t, ValidClock("junk"))
}

func TestCombine(t *testing.T) {
	loc, err := time.LoadLocation("America/Guatemala")
	require.NoError(t, err)

	at, err := Combine("2025-07-14", "08:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 14, 8, 0, 0, 0, loc), at)

	_, err = Combine("07/14/2025", "08:00", loc)
	assert.Error(t, err)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2025, 7, 14, 0, 1, 0, 0, time.UTC)
	b := time.Date(2025, 7, 14, 23, 59, 0, 0, time.UTC)
	c := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestISO8601RoundTrip(t *testing.T) {
	at := time.Date(2025, 7, 12, 7, 59, 30, 0, time.UTC)
	parsed, err := ParseISO8601(FormatISO8601(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed))
}
