package domain

import (
	"strings"
	"time"

	"courtbot-service/pkg/errors"
	"courtbot-service/pkg/timeutil"
)

const (
	// scheduleLeadTime is how far before window-open the scheduler
	// should dispatch, so executors are mid pre-window wait when the
	// venue starts accepting clicks.
	scheduleLeadTime = 30 * time.Second

	// lateInsertDelay schedules records whose window already opened.
	lateInsertDelay = time.Minute
)

// Service holds reservation business rules that span records: status
// transitions, slot uniqueness, and execution-time arithmetic.
type Service struct {
	location    *time.Location
	windowHours int
}

// NewService creates a reservation domain service for the venue timezone
func NewService(location *time.Location, windowHours int) *Service {
	if windowHours <= 0 {
		windowHours = 48
	}
	return &Service{location: location, windowHours: windowHours}
}

// Validate checks a record has everything the queue requires
func (s *Service) Validate(record Record) error {
	if record.UserID == 0 {
		return errors.ErrValidation.WithDetails("field", "user_id").WithDetails("reason", "user_id is required")
	}
	if _, err := timeutil.ParseDate(record.TargetDate); err != nil {
		return errors.ErrValidation.WithDetails("field", "target_date").WithDetails("value", record.TargetDate)
	}
	if !timeutil.ValidClock(record.TargetTime) {
		return errors.ErrValidation.WithDetails("field", "target_time").WithDetails("value", record.TargetTime)
	}
	if len(record.CourtPreferences) == 0 {
		return errors.ErrValidation.WithDetails("field", "court_preferences").WithDetails("reason", "at least one court is required")
	}
	return nil
}

// EnsureUniqueSlot rejects a record when the user already holds an
// active reservation for the same (date, time).
func (s *Service) EnsureUniqueSlot(record Record, existing []Record) error {
	for _, other := range existing {
		if other.ID == record.ID {
			continue
		}
		if other.UserID != record.UserID || !other.Status.Active() {
			continue
		}
		if other.TargetDate == record.TargetDate && other.TargetTime == record.TargetTime {
			return errors.ErrDuplicateSlot.
				WithDetails("target_date", record.TargetDate).
				WithDetails("target_time", record.TargetTime).
				WithDetails("existing_id", other.ID)
		}
	}
	return nil
}

// CanTransition enforces terminal monotonicity
func (s *Service) CanTransition(from, to Status) error {
	if !to.Valid() {
		return errors.ErrValidation.WithDetails("field", "status").WithDetails("value", string(to))
	}
	if from.Terminal() {
		return errors.ErrTerminalStatus.WithDetails("status", string(from))
	}
	return nil
}

// TargetDateTime resolves the record's slot to an instant in venue time
func (s *Service) TargetDateTime(record Record) (time.Time, error) {
	return timeutil.Combine(record.TargetDate, record.TargetTime, s.location)
}

// WindowOpen returns the instant the booking window opens for the record
func (s *Service) WindowOpen(record Record) (time.Time, error) {
	target, err := s.TargetDateTime(record)
	if err != nil {
		return time.Time{}, err
	}
	return target.Add(-time.Duration(s.windowHours) * time.Hour), nil
}

// ComputeScheduledExecution applies the scheduling rule: 30 seconds
// before the advance-window boundary, or now+1m when that is already
// past. testDelay > 0 short-circuits to now+delay (test mode).
func (s *Service) ComputeScheduledExecution(record Record, now time.Time, testDelay time.Duration) (time.Time, error) {
	if testDelay > 0 {
		return now.Add(testDelay), nil
	}

	windowOpen, err := s.WindowOpen(record)
	if err != nil {
		return time.Time{}, err
	}

	scheduled := windowOpen.Add(-scheduleLeadTime)
	if !scheduled.After(now) {
		scheduled = now.Add(lateInsertDelay)
	}
	return scheduled, nil
}

// NormalizeTargetTime repairs legacy YYYY-MM-DD_HH:MM encodings by
// taking the clock suffix. Returns the value and whether it changed.
func (s *Service) NormalizeTargetTime(value string) (string, bool) {
	if !strings.Contains(value, "_") {
		return value, false
	}
	parts := strings.Split(value, "_")
	candidate := parts[len(parts)-1]
	if timeutil.ValidClock(candidate) {
		return candidate, true
	}
	return value, false
}

// MarkWaitlisted moves a record onto the waitlist at the given position
func (s *Service) MarkWaitlisted(record *Record, position int) error {
	if err := s.CanTransition(record.Status, StatusWaitlisted); err != nil {
		return err
	}
	if position < 1 {
		return errors.ErrValidation.WithDetails("field", "position").WithDetails("value", position)
	}
	record.Status = StatusWaitlisted
	record.WaitlistPosition = position
	return nil
}
