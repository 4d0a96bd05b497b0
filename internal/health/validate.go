package health

import (
	"fmt"
	"regexp"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/go-playground/validator/v10"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("clock", validateClock); err != nil {
		panic(fmt.Sprintf("failed to register clock validator: %v", err))
	}
	if err := validate.RegisterValidation("weekday", validateWeekday); err != nil {
		panic(fmt.Sprintf("failed to register weekday validator: %v", err))
	}
	if err := validate.RegisterValidation("log_status", validateLogStatus); err != nil {
		panic(fmt.Sprintf("failed to register log_status validator: %v", err))
	}
}

func validateClock(fl validator.FieldLevel) bool {
	return IsClock(fl.Field().String())
}

func validateWeekday(fl validator.FieldLevel) bool {
	return Weekday(fl.Field().String()).Valid()
}

func validateLogStatus(fl validator.FieldLevel) bool {
	return LogStatus(fl.Field().String()).Valid()
}

// IsClock reports whether s is a zero-padded 24-hour HH:MM string.
func IsClock(s string) bool {
	return clockPattern.MatchString(s)
}

func ValidateMedication(m *Medication) error {
	if err := validate.Struct(m); err != nil {
		return apperrors.WithCause(apperrors.ErrMedicationInvalid, err)
	}
	return nil
}

// ValidateSchedule rejects schedules the engine cannot evaluate: malformed
// times and empty or duplicated weekday sets.
func ValidateSchedule(s *Schedule) error {
	if err := validate.Struct(s); err != nil {
		return apperrors.WithCause(apperrors.ErrScheduleInvalid, err)
	}
	return nil
}

func ValidateLog(l *MedicationLog) error {
	if err := validate.Struct(l); err != nil {
		return apperrors.WithCause(apperrors.ErrLogInvalid, err)
	}
	if l.TakenAt.IsZero() {
		return apperrors.WithCause(apperrors.ErrLogInvalid, fmt.Errorf("taken_at is required"))
	}
	return nil
}
