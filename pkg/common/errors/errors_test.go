package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestSentinels(t *testing.T) {
	for _, err := range []error{ErrClosed, ErrInvalidConfiguration, ErrBlocked, ErrUnknownController} {
		for _, other := range []error{ErrClosed, ErrInvalidConfiguration, ErrBlocked, ErrUnknownController} {
			if (err == other) != errors.Is(err, other) {
				t.Errorf("errors.Is(%v, %v) mismatch", err, other)
			}
		}
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "plain",
			err:  NewValidationError("flow", "threshold", -1.0, "cannot be negative"),
			want: "flow: invalid threshold=-1 (cannot be negative)",
		},
		{
			name: "hint",
			err: NewValidationError("flow", "warmUpPeriodSec", 0, "must be positive").
				WithHint("warm-up needs a ramp period in seconds"),
			want: "flow: invalid warmUpPeriodSec=0 (must be positive) - warm-up needs a ramp period in seconds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInvalidConfiguration) {
				t.Error("ValidationError should unwrap to ErrInvalidConfiguration")
			}
		})
	}
}

func TestIsValidationError(t *testing.T) {
	verr := NewValidationError("stat", "sampleCount", 0, "must be positive")
	joined := errors.Join(fmt.Errorf("rule 1: %w", verr), io.EOF)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", verr, true},
		{"joined and wrapped", joined, true},
		{"sentinel only", ErrInvalidConfiguration, false},
		{"other", io.EOF, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperationError(t *testing.T) {
	err := NewOperationError("datasource", "get", io.ErrUnexpectedEOF)
	if got := err.Error(); got != "datasource.get failed: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("OperationError should unwrap to its cause")
	}

	err = err.WithContext("key flowguard:rules")
	if got := err.Error(); got != "datasource.get failed: unexpected EOF (key flowguard:rules)" {
		t.Errorf("Error() with context = %q", got)
	}

	var oerr *OperationError
	if !errors.As(fmt.Errorf("refresh: %w", err), &oerr) || oerr.Module != "datasource" {
		t.Error("errors.As should find the OperationError")
	}
}

func TestIsBlocked(t *testing.T) {
	if !IsBlocked(fmt.Errorf("orders: %w", ErrBlocked)) {
		t.Error("wrapped ErrBlocked should be blocked")
	}
	if IsBlocked(ErrClosed) || IsBlocked(nil) {
		t.Error("only ErrBlocked is blocked")
	}
}
