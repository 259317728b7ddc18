package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrContextRetrieval is returned when the context retriever fails.
	ErrContextRetrieval = errors.New("context retrieval failed")
	// ErrCompletion is returned when the completion stream cannot be opened.
	ErrCompletion = errors.New("completion failed")
)

// Error kinds used as structured log and trace attributes.
const (
	KindValidation = "validation"
	KindRetrieval  = "upstream-retrieval"
	KindCompletion = "upstream-completion"
	KindInternal   = "internal"
)

// ValidationError represents a validation error with a field name.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ErrorKind classifies err for logging. Untagged errors are KindInternal.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrContextRetrieval):
		return KindRetrieval
	case errors.Is(err, ErrCompletion):
		return KindCompletion
	default:
		return KindInternal
	}
}
