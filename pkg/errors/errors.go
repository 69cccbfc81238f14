package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a domain error with additional context
type Error struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements the unwrap interface for error chaining
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error with an extra detail attached.
// Sentinel errors stay untouched so errors.Is keeps working.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	clone := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Err:        e.Err,
		Details:    make(map[string]interface{}, len(e.Details)+1),
	}
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return clone
}

// WithMessage returns a copy of the error with a replacement message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Code:       e.Code,
		Message:    message,
		HTTPStatus: e.HTTPStatus,
		Err:        e.Err,
		Details:    e.Details,
	}
}

// Wrap wraps an underlying error with this domain error
func (e *Error) Wrap(err error) *Error {
	return &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Err:        err,
		Details:    e.Details,
	}
}

// Common domain errors
var (
	ErrValidation = &Error{
		Code:       "VALIDATION_ERROR",
		Message:    "Validation failed",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidInput = &Error{
		Code:       "INVALID_INPUT",
		Message:    "Invalid input provided",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &Error{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAlreadyExists = &Error{
		Code:       "ALREADY_EXISTS",
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrInternal = &Error{
		Code:       "INTERNAL_ERROR",
		Message:    "Internal error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrStore = &Error{
		Code:       "STORE_ERROR",
		Message:    "Store operation failed",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrTimeout = &Error{
		Code:       "TIMEOUT",
		Message:    "Operation timed out",
		HTTPStatus: http.StatusRequestTimeout,
	}
)

// Booking domain errors
var (
	ErrDuplicateSlot = &Error{
		Code:       "DUPLICATE_SLOT",
		Message:    "User already has an active reservation for this slot",
		HTTPStatus: http.StatusConflict,
	}

	ErrSlotUnavailable = &Error{
		Code:       "SLOT_UNAVAILABLE",
		Message:    "Time slot is not available",
		HTTPStatus: http.StatusConflict,
	}

	ErrBotDetected = &Error{
		Code:       "BOT_DETECTED",
		Message:    "Venue flagged automated use, book manually",
		HTTPStatus: http.StatusForbidden,
	}

	ErrFormValidation = &Error{
		Code:       "FORM_VALIDATION",
		Message:    "Booking form rejected the submitted values",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrPoolUnhealthy = &Error{
		Code:       "POOL_UNHEALTHY",
		Message:    "Browser pool could not be brought to a healthy state",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrTerminalStatus = &Error{
		Code:       "TERMINAL_STATUS",
		Message:    "Reservation is in a terminal status",
		HTTPStatus: http.StatusConflict,
	}
)

// Is is a convenience wrapper around errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
