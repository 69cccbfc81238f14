package timeutil

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for target dates
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for target times
	ClockLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil - ParseDate: %w", err)
	}
	return t, nil
}

// ParseClock parses an HH:MM 24-hour wall clock value
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("timeutil - ParseClock: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

// ValidClock reports whether s is a well-formed HH:MM value
func ValidClock(s string) bool {
	_, _, err := ParseClock(s)
	return err == nil
}

// Combine builds the absolute instant for a date + clock pair in loc
func Combine(date string, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

// StartOfDay returns the start of the day for the given time
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatISO8601 formats a time in ISO8601 format
func FormatISO8601(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseISO8601 parses an ISO8601 formatted string
func ParseISO8601(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
