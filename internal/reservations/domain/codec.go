package domain

import (
	"encoding/json"

	booking "courtbot-service/internal/booking/domain"
	"courtbot-service/pkg/timeutil"
)

// Wire keys owned by this version. Anything else round-trips via Extra.
var knownKeys = map[string]struct{}{
	"id": {}, "user_id": {}, "first_name": {}, "source": {},
	"target_date": {}, "target_time": {}, "court_preferences": {},
	"status": {}, "scheduled_execution": {}, "attempts": {},
	"last_error": {}, "confirmation_code": {}, "confirmation_url": {},
	"calendar_links": {}, "waitlist_position": {}, "priority": {},
	"created_at": {}, "metadata": {}, "executor_config": {},
}

type recordWire struct {
	ID                 string                 `json:"id,omitempty"`
	UserID             int64                  `json:"user_id"`
	FirstName          string                 `json:"first_name,omitempty"`
	Source             string                 `json:"source,omitempty"`
	TargetDate         string                 `json:"target_date"`
	TargetTime         string                 `json:"target_time"`
	CourtPreferences   []int                  `json:"court_preferences,omitempty"`
	Status             string                 `json:"status,omitempty"`
	ScheduledExecution string                 `json:"scheduled_execution,omitempty"`
	Attempts           int                    `json:"attempts,omitempty"`
	LastError          string                 `json:"last_error,omitempty"`
	ConfirmationCode   string                 `json:"confirmation_code,omitempty"`
	ConfirmationURL    string                 `json:"confirmation_url,omitempty"`
	CalendarLinks      map[string]string      `json:"calendar_links,omitempty"`
	WaitlistPosition   int                    `json:"waitlist_position,omitempty"`
	Priority           *int                   `json:"priority,omitempty"`
	CreatedAt          string                 `json:"created_at,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	ExecutorConfig     map[string]interface{} `json:"executor_config,omitempty"`
}

// MarshalJSON emits the wire form plus any preserved unknown fields
func (r Record) MarshalJSON() ([]byte, error) {
	wire := recordWire{
		ID:               r.ID,
		UserID:           r.UserID,
		FirstName:        r.FirstName,
		Source:           string(r.Source),
		TargetDate:       r.TargetDate,
		TargetTime:       r.TargetTime,
		CourtPreferences: r.CourtPreferences,
		Status:           string(r.Status),
		Attempts:         r.Attempts,
		LastError:        r.LastError,
		ConfirmationCode: r.ConfirmationCode,
		ConfirmationURL:  r.ConfirmationURL,
		CalendarLinks:    r.CalendarLinks,
		WaitlistPosition: r.WaitlistPosition,
		Priority:         r.Priority,
		Metadata:         r.Metadata,
		ExecutorConfig:   r.ExecutorConfig,
	}
	if !r.ScheduledExecution.IsZero() {
		wire.ScheduledExecution = timeutil.FormatISO8601(r.ScheduledExecution)
	}
	if !r.CreatedAt.IsZero() {
		wire.CreatedAt = timeutil.FormatISO8601(r.CreatedAt)
	}

	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, owned := knownKeys[k]; owned {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the wire form, stashing unknown fields in Extra
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{
		ID:               wire.ID,
		UserID:           wire.UserID,
		FirstName:        wire.FirstName,
		Source:           booking.Source(wire.Source),
		TargetDate:       wire.TargetDate,
		TargetTime:       wire.TargetTime,
		CourtPreferences: wire.CourtPreferences,
		Status:           Status(wire.Status),
		Attempts:         wire.Attempts,
		LastError:        wire.LastError,
		ConfirmationCode: wire.ConfirmationCode,
		ConfirmationURL:  wire.ConfirmationURL,
		CalendarLinks:    wire.CalendarLinks,
		WaitlistPosition: wire.WaitlistPosition,
		Priority:         wire.Priority,
		Metadata:         wire.Metadata,
		ExecutorConfig:   wire.ExecutorConfig,
	}
	if wire.ScheduledExecution != "" {
		if ts, err := timeutil.ParseISO8601(wire.ScheduledExecution); err == nil {
			r.ScheduledExecution = ts
		}
	}
	if wire.CreatedAt != "" {
		if ts, err := timeutil.ParseISO8601(wire.CreatedAt); err == nil {
			r.CreatedAt = ts
		}
	}

	for k := range raw {
		if _, owned := knownKeys[k]; owned {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = raw[k]
	}
	return nil
}
