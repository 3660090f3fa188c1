// Package types provides shared type definitions used across the recorder.
package types

import "errors"

// Sentinel errors for the failure classes of a recording session.
// Callers match them with errors.Is; every one of them ends the session.
var (
	// ErrHardwareUnavailable is returned when the signal chain or the gain sink cannot be reached.
	ErrHardwareUnavailable = errors.New("hardware unavailable")

	// ErrStorageUnavailable is returned when the storage medium cannot be opened, written or seeked.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrProtocolMisuse is returned when a component is driven outside its contract,
	// such as appending to a finalized container.
	ErrProtocolMisuse = errors.New("protocol misuse")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "vad.threshold")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors reports whether any field errors were collected.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	switch len(v.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return "invalid " + v.Errors[0].Field + ": " + v.Errors[0].Message
	default:
		msg := "invalid configuration:"
		for _, e := range v.Errors {
			msg += " " + e.Field + " " + e.Message + ";"
		}
		return msg
	}
}
