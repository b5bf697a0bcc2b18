package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// Table-driven: each case checks that errors.Is identifies the sentinel,
// including through an fmt.Errorf %w wrap.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("health record", "u1/2025-01-01"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "MissingArgument wraps ErrValidation",
			err:       MissingArgument("user_id"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "UnknownTool wraps ErrUnknownTool",
			err:       UnknownTool("unknown.tool"),
			target:    ErrUnknownTool,
			wantMatch: true,
		},
		{
			name:      "UnknownTool does NOT match ErrValidation",
			err:       UnknownTool("unknown.tool"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "MissingArgument does NOT match ErrNotFound",
			err:       MissingArgument("user_id"),
			target:    ErrNotFound,
			wantMatch: false,
		},
		{
			name:      "wrapped Unauthorized still matches",
			err:       fmt.Errorf("auth: %w", Unauthorized("unauthorized")),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("health record", "u1/2025-01-01"),
			wantMessage: "health record not found with id u1/2025-01-01",
		},
		{
			name:        "MissingArgument uses the tool protocol message",
			err:         MissingArgument("user_id"),
			wantMessage: "Missing required argument: user_id",
		},
		{
			name:        "InvalidArgument names the argument",
			err:         InvalidArgument("days"),
			wantMessage: "Invalid argument: days",
		},
		{
			name:        "UnknownTool echoes the tool name",
			err:         UnknownTool("garmin.deleteEverything"),
			wantMessage: "Unknown tool: garmin.deleteEverything",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("health record", "abc")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestErrorsAsExtractsField(t *testing.T) {
	err := fmt.Errorf("tools: %w", MissingArgument("user_id"))

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As() did not find *AppError in chain")
	}
	if appErr.Field != "user_id" {
		t.Errorf("Field = %q, want %q", appErr.Field, "user_id")
	}
}
