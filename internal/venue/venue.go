package venue

import (
	"fmt"
	"strconv"
	"time"

	"courtbot-service/internal/config"
	"courtbot-service/pkg/errors"
	"courtbot-service/pkg/timeutil"
)

// Selectors for the venue's scheduling pages. The markup drifts, so the
// executor also falls back to text-matched variants of the time button.
const (
	TimeButtonSelector   = "button.time-selection"
	ScheduleFrameName    = "scheduling"
	UnavailableMarker    = "no hay horarios disponibles"
	ConfirmLabel         = "Confirmar"
	ConfirmationPathPart = "/confirmation/"
)

// BotDetectionPhrases are the localized banner substrings the venue shows
// when it flags automated use. Their presence is a sticky, non-retryable
// failure.
var BotDetectionPhrases = []string{
	"Se detectó un uso irregular del sitio",
	"uso irregular",
	"Comunícate con el negocio",
}

// Known schedule endpoints per court. Overridable through configuration.
var defaultScheduleURLs = map[int]string{
	1: "https://clublavilla.as.me/schedule/7d558012/appointment/15970897/calendar/4282490",
	2: "https://clublavilla.as.me/schedule/7d558012/appointment/16021953/calendar/4291312",
	3: "https://clublavilla.as.me/schedule/7d558012/appointment/16120442/calendar/4307254",
}

var defaultAppointmentTypeIDs = map[int]string{
	1: "15970897",
	2: "16021953",
	3: "16120442",
}

// Venue models the booking site: court schedule URLs, the datetime deep
// link format, and the timezone all scheduling arithmetic happens in.
type Venue struct {
	baseURL            string
	location           *time.Location
	courts             []int
	scheduleURLs       map[int]string
	appointmentTypeIDs map[int]string
	windowHours        int
	lastBookableHour   int
}

// New builds a Venue from configuration, falling back to the known
// per-court endpoints when none are configured.
func New(cfg config.VenueConfig) (*Venue, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.ErrInvalidInput.WithDetails("timezone", cfg.Timezone).Wrap(err)
	}

	if len(cfg.Courts) == 0 {
		return nil, errors.ErrInvalidInput.WithDetails("reason", "at least one court is required")
	}

	v := &Venue{
		baseURL:            cfg.BaseURL,
		location:           loc,
		courts:             append([]int(nil), cfg.Courts...),
		scheduleURLs:       make(map[int]string, len(cfg.Courts)),
		appointmentTypeIDs: make(map[int]string, len(cfg.Courts)),
		windowHours:        cfg.BookingWindowHours,
		lastBookableHour:   cfg.LastBookableHour,
	}
	if v.windowHours <= 0 {
		v.windowHours = 48
	}
	if v.lastBookableHour <= 0 {
		v.lastBookableHour = 21
	}

	for _, court := range cfg.Courts {
		key := strconv.Itoa(court)
		if url, ok := cfg.ScheduleURLs[key]; ok {
			v.scheduleURLs[court] = url
		} else if url, ok := defaultScheduleURLs[court]; ok {
			v.scheduleURLs[court] = url
		} else {
			return nil, errors.ErrInvalidInput.WithDetails("court", court).WithDetails("reason", "no schedule URL configured")
		}

		if id, ok := cfg.AppointmentTypeIDs[key]; ok {
			v.appointmentTypeIDs[court] = id
		} else if id, ok := defaultAppointmentTypeIDs[court]; ok {
			v.appointmentTypeIDs[court] = id
		}
	}

	return v, nil
}

// Location returns the venue timezone
func (v *Venue) Location() *time.Location {
	return v.location
}

// Courts returns the configured court ids
func (v *Venue) Courts() []int {
	return append([]int(nil), v.courts...)
}

// WindowHours returns the advance booking window in hours
func (v *Venue) WindowHours() int {
	return v.windowHours
}

// LastBookableHour returns the final hour of the day the venue accepts
// bookings for
func (v *Venue) LastBookableHour() int {
	return v.lastBookableHour
}

// WindowOpen computes the instant the booking window opens for a target
func (v *Venue) WindowOpen(target time.Time) time.Time {
	return target.Add(-time.Duration(v.windowHours) * time.Hour)
}

// ScheduleURL returns the base schedule page for a court
func (v *Venue) ScheduleURL(court int) string {
	return v.scheduleURLs[court]
}

// HasCourt reports whether the venue serves the given court id
func (v *Venue) HasCourt(court int) bool {
	_, ok := v.scheduleURLs[court]
	return ok
}

// DatetimeURL builds the deep link straight to a slot's booking form:
// <schedule>/datetime/YYYY-MM-DDThh:mm:00±HH:MM?appointmentTypeIds[]=<id>
func (v *Venue) DatetimeURL(court int, targetDate, targetTime string) (string, error) {
	base, ok := v.scheduleURLs[court]
	if !ok {
		return "", errors.ErrNotFound.WithDetails("court", court)
	}

	target, err := timeutil.Combine(targetDate, targetTime, v.location)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/datetime/%sT%s:00%s", base, targetDate, targetTime, utcOffset(target))
	if id, ok := v.appointmentTypeIDs[court]; ok && id != "" {
		url += "?appointmentTypeIds[]=" + id
	}
	return url, nil
}

// ConfirmationURL rebuilds the shareable confirmation link for a code
func (v *Venue) ConfirmationURL(code string) string {
	return v.baseURL + "/schedule/7d558012" + ConfirmationPathPart + code
}

func utcOffset(t time.Time) string {
	_, seconds := t.Zone()
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
