package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotFound is returned when a movie, comment or user key is absent.
var ErrNotFound = errors.New("not found")

// ErrStore wraps every failure of an underlying key-value, object or SQL store call.
var ErrStore = errors.New("store failure")

// ErrValidation matches any *ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a single input so callers can
// re-display all of them at once.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Add records a problem with field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns e when at least one field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
	}
}

func (e *ValidationError) rating(field string, r float64) {
	if math.IsNaN(r) || r < MinRating || r > MaxRating {
		e.Add(field, fmt.Sprintf("must be between %g and %g", MinRating, MaxRating))
	}
}

// StoreError wraps err with ErrStore and an operation description.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
