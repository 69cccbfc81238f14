package domain

import (
	"time"

	"courtbot-service/pkg/errors"
	"courtbot-service/pkg/timeutil"
)

// Source indicates which subsystem originated a booking request
type Source string

const (
	SourceImmediate Source = "immediate"
	SourceQueued    Source = "queued"
	SourceAdmin     Source = "admin"
	SourceRetry     Source = "retry"
)

// CourtPreference is a non-empty ordered list of preferred courts:
// one primary plus zero or more fallbacks. Ordering is respected.
type CourtPreference struct {
	Primary   int   `json:"primary"`
	Fallbacks []int `json:"fallbacks,omitempty"`
}

// NewCourtPreference builds a preference from an ordered court list
func NewCourtPreference(courts []int) (CourtPreference, error) {
	if len(courts) == 0 {
		return CourtPreference{}, errors.ErrValidation.WithDetails("reason", "at least one court must be provided")
	}
	pref := CourtPreference{Primary: courts[0]}
	if len(courts) > 1 {
		pref.Fallbacks = append([]int(nil), courts[1:]...)
	}
	return pref, nil
}

// Courts returns the preference as a list in priority order
func (p CourtPreference) Courts() []int {
	out := make([]int, 0, 1+len(p.Fallbacks))
	out = append(out, p.Primary)
	out = append(out, p.Fallbacks...)
	return out
}

// Request is the canonical payload consumed by the executor and scheduler.
// TargetDate is YYYY-MM-DD and TargetTime is HH:MM, both in venue time.
type Request struct {
	RequestID      string                 `json:"request_id,omitempty"`
	Source         Source                 `json:"source"`
	User           User                   `json:"user"`
	TargetDate     string                 `json:"target_date"`
	TargetTime     string                 `json:"target_time"`
	Preference     CourtPreference        `json:"court_preference"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata"`
	ExecutorConfig map[string]interface{} `json:"executor_config,omitempty"`
}

func newRequest(id string, source Source, user User, targetDate, targetTime string, pref CourtPreference, metadata, executorConfig map[string]interface{}) (Request, error) {
	if _, err := timeutil.ParseDate(targetDate); err != nil {
		return Request{}, errors.ErrValidation.WithDetails("field", "target_date").WithDetails("value", targetDate)
	}
	if !timeutil.ValidClock(targetTime) {
		return Request{}, errors.ErrValidation.WithDetails("field", "target_time").WithDetails("value", targetTime)
	}

	req := Request{
		RequestID:  id,
		Source:     source,
		User:       user,
		TargetDate: targetDate,
		TargetTime: targetTime,
		Preference: pref,
		CreatedAt:  time.Now().UTC(),
		Metadata:   cloneMap(metadata),
	}
	if req.Metadata == nil {
		req.Metadata = map[string]interface{}{}
	}
	if executorConfig != nil {
		req.ExecutorConfig = cloneMap(executorConfig)
	}
	return req, nil
}

// NewImmediateRequest builds a request for bookings triggered directly by
// the chat layer. Immediate requests carry no request id and a single court.
func NewImmediateRequest(user User, targetDate, targetTime string, court int, metadata, executorConfig map[string]interface{}) (Request, error) {
	return newRequest("", SourceImmediate, user, targetDate, targetTime, CourtPreference{Primary: court}, metadata, executorConfig)
}

// NewQueuedRequest builds a request from a queued reservation record
func NewQueuedRequest(requestID string, user User, targetDate, targetTime string, courts []int, source Source, metadata, executorConfig map[string]interface{}) (Request, error) {
	pref, err := NewCourtPreference(courts)
	if err != nil {
		return Request{}, err
	}
	if source == "" {
		source = SourceQueued
	}
	return newRequest(requestID, source, user, targetDate, targetTime, pref, metadata, executorConfig)
}

// PreferredCourts returns courts in priority order
func (r Request) PreferredCourts() []int {
	return r.Preference.Courts()
}

// TargetDateTime resolves the request's slot to an absolute instant in loc
func (r Request) TargetDateTime(loc *time.Location) (time.Time, error) {
	return timeutil.Combine(r.TargetDate, r.TargetTime, loc)
}

// Clone returns a deep copy so callers cannot mutate shared metadata
func (r Request) Clone() Request {
	out := r
	out.Preference.Fallbacks = append([]int(nil), r.Preference.Fallbacks...)
	out.Metadata = cloneMap(r.Metadata)
	if r.ExecutorConfig != nil {
		out.ExecutorConfig = cloneMap(r.ExecutorConfig)
	}
	return out
}

// ComposeMetadata builds the standard metadata envelope attached to
// requests: source, ISO target date, target time, plus any extras.
func ComposeMetadata(source Source, targetDate, targetTime string, extras map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"source":      string(source),
		"target_date": targetDate,
		"target_time": targetTime,
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
