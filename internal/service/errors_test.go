package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "field and message",
			err: &ValidationError{
				Field:   "messages",
				Message: "must not be empty",
			},
			want: "validation error on field messages: must not be empty",
		},
		{
			name: "empty field",
			err: &ValidationError{
				Field:   "",
				Message: "invalid",
			},
			want: "validation error on field : invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("ValidationError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := fmt.Errorf("chat: %w", &ValidationError{Field: "messages", Message: "must not be empty"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("wrapped ValidationError should match ErrInvalidInput")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation", err: &ValidationError{Field: "messages", Message: "empty"}, want: KindValidation},
		{name: "retrieval", err: fmt.Errorf("%w: %w", ErrContextRetrieval, errors.New("timeout")), want: KindRetrieval},
		{name: "completion", err: fmt.Errorf("%w: %w", ErrCompletion, context.DeadlineExceeded), want: KindCompletion},
		{name: "untagged", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %v, want %v", got, tt.want)
			}
		})
	}
}
