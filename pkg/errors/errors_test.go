package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidArgument,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrInvariant,
				Message: "test message",
				Cause:   nil,
			},
			want: "invariant: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   nil,
	}

	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrInvalidArgument, "test message", cause)

	if err.Type != ErrInvalidArgument {
		t.Errorf("NewError().Type = %v, want %v", err.Type, ErrInvalidArgument)
	}
	if err.Message != "test message" {
		t.Errorf("NewError().Message = %v, want %v", err.Message, "test message")
	}
	if err.Cause != cause {
		t.Errorf("NewError().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found matches", NewNotFoundError("missing", nil), IsNotFound, true},
		{"not found wrapped", fmt.Errorf("outer: %w", NewNotFoundError("missing", nil)), IsNotFound, true},
		{"not found mismatch", NewInvariantError("broken", nil), IsNotFound, false},
		{"invariant matches", NewInvariantError("broken", nil), IsInvariant, true},
		{"validation matches", NewValidationError("rejected", nil), IsValidation, true},
		{"timeout matches", NewTimeoutError("expired", nil), IsTimeout, true},
		{"transient matches", NewTransientError("store read", nil), IsTransient, true},
		{"invalid argument matches", NewInvalidArgumentError("bad payload", nil), IsInvalidArgument, true},
		{"plain error matches nothing", errors.New("plain"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}
