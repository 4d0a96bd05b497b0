package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}
	ErrMedicationInvalid  = &AppError{Code: "MED_002", Message: "invalid medication"}

	ErrScheduleInvalid  = &AppError{Code: "SCHED_001", Message: "invalid schedule"}
	ErrScheduleNotFound = &AppError{Code: "SCHED_002", Message: "schedule not found"}

	ErrLogInvalid = &AppError{Code: "LOG_001", Message: "invalid medication log"}

	ErrNoDoseAtTime      = &AppError{Code: "DOSE_001", Message: "no doses scheduled at that time today"}
	ErrDoseWriteFailed   = &AppError{Code: "DOSE_002", Message: "failed to record dose"}
	ErrStoreUnavailable  = &AppError{Code: "DOSE_003", Message: "log store temporarily unavailable"}
	ErrDoseAlreadyTaken  = &AppError{Code: "DOSE_004", Message: "dose already taken that day"}
	ErrPreferenceInvalid = &AppError{Code: "PREF_001", Message: "invalid preferences"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}
	ErrRateLimited  = &AppError{Code: "AUTH_003", Message: "rate limit exceeded"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithCause returns a copy of a sentinel carrying cause.
func WithCause(sentinel *AppError, cause error) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}
