package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientCredits    = errors.New("insufficient session credits")

	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrTrainerNotFound = fmt.Errorf("trainer %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w or not completed", ErrNotFound)

	// ErrSessionUnavailable reports a lost booking race. It also matches
	// ErrInvalidStateTransition.
	ErrSessionUnavailable = fmt.Errorf("%w: session is no longer available", ErrInvalidStateTransition)
)

// ValidationError captures field level problems with caller input.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match every validation failure with ErrInvalidInput.
func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func validationFailure(field, message string) error {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
