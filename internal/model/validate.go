package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidInput marks caller-supplied values that violate field limits.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedRow marks a stored row that does not map onto a domain value.
	ErrMalformedRow = errors.New("malformed row")
)

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

func malformed(table, id, reason string) error {
	return fmt.Errorf("%w: %s %q: %s", ErrMalformedRow, table, id, reason)
}

// checkLength validates the rune length of a trimmed value.
func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < min {
		if min == 1 {
			return invalid(field, "is required")
		}
		return invalid(field, fmt.Sprintf("must be at least %d characters", min))
	}
	if n > max {
		return invalid(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}
