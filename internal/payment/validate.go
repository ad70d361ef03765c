package payment

import (
	"fmt"
	"strings"
	"unicode"
)

// InputError reports a malformed payment request. The engine rejects these
// before any scorer runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid payment request: %s %s", e.Field, e.Reason)
}

// Validate checks the request for missing or non-positive fields. It never
// coerces input.
func Validate(r Request) error {
	if strings.TrimSpace(r.Recipient) == "" {
		return &InputError{Field: "recipient", Reason: "is required"}
	}
	if r.Amount.IsZero() {
		return &InputError{Field: "amount", Reason: "must be positive"}
	}
	if r.Amount.IsNegative() {
		return &InputError{Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(r.Purpose) == "" {
		return &InputError{Field: "purpose", Reason: "is required"}
	}
	if r.Timestamp.IsZero() {
		return &InputError{Field: "timestamp", Reason: "is required"}
	}
	return nil
}

// Sanitize replaces control characters with spaces so reasoning text can be
// logged or displayed as-is.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
