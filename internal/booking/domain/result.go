package domain

import "time"

// ResultStatus is the overall outcome of a booking attempt
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
	StatusPartial ResultStatus = "partial"
)

// Result is the canonical outcome surfaced to persistence and messaging.
// Results are immutable; MergeMetadata returns a new value.
type Result struct {
	Status           ResultStatus           `json:"status"`
	User             User                   `json:"user"`
	RequestID        string                 `json:"request_id,omitempty"`
	CourtReserved    int                    `json:"court_reserved,omitempty"`
	TimeReserved     string                 `json:"time_reserved,omitempty"`
	ConfirmationCode string                 `json:"confirmation_code,omitempty"`
	ConfirmationURL  string                 `json:"confirmation_url,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Errors           []string               `json:"errors,omitempty"`
	StartedAt        time.Time              `json:"started_at,omitempty"`
	CompletedAt      time.Time              `json:"completed_at,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Success reports whether the attempt booked the slot
func (r Result) Success() bool {
	return r.Status == StatusSuccess
}

// ResultOption mutates a result under construction
type ResultOption func(*Result)

func WithConfirmation(code, url string) ResultOption {
	return func(r *Result) {
		r.ConfirmationCode = code
		r.ConfirmationURL = url
	}
}

func WithMessage(message string) ResultOption {
	return func(r *Result) { r.Message = message }
}

func WithErrors(errs ...string) ResultOption {
	return func(r *Result) { r.Errors = append(r.Errors, errs...) }
}

func WithTimestamps(started, completed time.Time) ResultOption {
	return func(r *Result) {
		r.StartedAt = started
		r.CompletedAt = completed
	}
}

func WithResultMetadata(metadata map[string]interface{}) ResultOption {
	return func(r *Result) { r.Metadata = cloneMap(metadata) }
}

// SuccessResult builds a success outcome for the given slot
func SuccessResult(user User, requestID string, courtReserved int, timeReserved string, opts ...ResultOption) Result {
	res := Result{
		Status:        StatusSuccess,
		User:          user,
		RequestID:     requestID,
		CourtReserved: courtReserved,
		TimeReserved:  timeReserved,
		CompletedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&res)
	}
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	return res
}

// FailureResult builds a failure outcome
func FailureResult(user User, requestID string, opts ...ResultOption) Result {
	res := Result{
		Status:      StatusFailure,
		User:        user,
		RequestID:   requestID,
		CompletedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&res)
	}
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	return res
}

// MergeMetadata returns a copy of the result with extra metadata folded in
func (r Result) MergeMetadata(extra map[string]interface{}) Result {
	out := r
	out.Errors = append([]string(nil), r.Errors...)
	merged := make(map[string]interface{}, len(r.Metadata)+len(extra))
	for k, v := range r.Metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	out.Metadata = merged
	return out
}
