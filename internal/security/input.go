// Package security screens user-supplied text and scrubs credentials from
// strings before they reach logs or error messages.
package security

import (
	"errors"
	"unicode"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// TextValidator checks short free-text fields such as medication names,
// instructions and dose notes.
type TextValidator struct {
	MaxSize       int
	MaxRepetition int
}

func NewTextValidator() *TextValidator {
	return &TextValidator{
		MaxSize:       2 * 1024,
		MaxRepetition: 64,
	}
}

func (v *TextValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for _, r := range input {
		switch {
		case r == 0:
			return ErrNullByteDetected
		case r == '\n' || r == '\t':
		case unicode.IsControl(r):
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}
	return nil
}

// ValidateAll stops at the first failing field.
func (v *TextValidator) ValidateAll(inputs ...string) error {
	for _, in := range inputs {
		if err := v.Validate(in); err != nil {
			return err
		}
	}
	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

func ValidateText(input string) error {
	return NewTextValidator().Validate(input)
}
