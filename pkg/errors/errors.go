package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status for the error middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrSlotConflict, ErrInvalidStateTransition:
		return http.StatusConflict
	case ErrTokenAllocationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrInternal
	ErrSlotConflict
	ErrTokenAllocationFailed
	ErrInvalidStateTransition
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// SlotConflict signals that a doctor already has a live booking for the
// exact date and time. The caller must resubmit with a different slot.
func SlotConflict(doctorID, date, slot string) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: fmt.Sprintf("doctor %s already booked for %s %s", doctorID, date, slot),
	}
}

// TokenAllocationFailed signals sustained contention on the daily token
// sequence after the bounded retry was exhausted. The caller may resubmit.
func TokenAllocationFailed(day string, attempts int, err error) *AppError {
	return &AppError{
		Code:    ErrTokenAllocationFailed,
		Message: fmt.Sprintf("could not allocate daily token for %s after %d attempts", day, attempts),
		Err:     err,
	}
}

// InvalidStateTransition signals a mutation against a terminal or
// incompatible state, e.g. paying or double-cancelling a cancelled bill.
func InvalidStateTransition(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidStateTransition,
		Message: message,
	}
}

// IsCode reports whether err is an *AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
