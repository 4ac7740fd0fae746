package services

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorExpired         ErrorCode = "expired"
	ErrorAlreadyBurned   ErrorCode = "already_burned"
	ErrorLockedOut       ErrorCode = "locked_out"
	ErrorTransient       ErrorCode = "transient"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

// ServiceError is the error taxonomy surfaced to route collaborators. The Code is
// stable and drives both the HTTP status and the localized message.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches two service errors with the same code and message, so package-level
// sentinels work with errors.Is even after being re-created by a store.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

// NewTransientError wraps a data-access failure. The cause stays reachable through
// errors.Unwrap.
func NewTransientError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Code: ErrorTransient, Message: op, Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or ErrorTransient for anything that is
// not a ServiceError.
func CodeOf(err error) ErrorCode {
	if se, ok := AsServiceError(err); ok {
		return se.Code
	}
	return ErrorTransient
}

var (
	ErrTokenNotFound = &ServiceError{Code: ErrorNotFound, Message: "review token not found"}
	ErrTokenExpired  = &ServiceError{Code: ErrorExpired, Message: "review token expired"}
	ErrTokenBurned   = &ServiceError{Code: ErrorAlreadyBurned, Message: "review token already used"}
	ErrTokenNotYours = &ServiceError{Code: ErrorForbidden, Message: "review token was issued to another user"}
	ErrUserNotFound  = &ServiceError{Code: ErrorNotFound, Message: "user not found"}
	ErrLockedOut     = &ServiceError{Code: ErrorLockedOut, Message: "account temporarily locked"}
	// ErrTurnstileVerificationFailed indicates the bot check rejected the submission.
	ErrTurnstileVerificationFailed = &ServiceError{Code: ErrorForbidden, Message: "turnstile verification failed"}
)

// LockedOutError reports a gated action attempted during a lockout window.
type LockedOutError struct {
	LockedUntil    time.Time
	RemainingHours int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account locked for %d more hour(s)", e.RemainingHours)
}

// Unwrap exposes ErrLockedOut so callers can use errors.Is and AsServiceError.
func (e *LockedOutError) Unwrap() error { return ErrLockedOut }

func newLockedOutError(until, now time.Time) error {
	return &LockedOutError{LockedUntil: until, RemainingHours: remainingHours(until, now)}
}

// remainingHours is the ceiling of the remaining lock window in hours.
func remainingHours(until, now time.Time) int {
	ms := until.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Ceil(float64(ms) / float64(time.Hour.Milliseconds())))
}
