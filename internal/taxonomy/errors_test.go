package taxonomy

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCode(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, CodeOK},
		{"validation", validationError("create", "name is required"), CodeValidation},
		{"not found", opError("get", id, ErrNotFound, ""), CodeNotFound},
		{"parent not found", opError("create", id, ErrParentNotFound, ""), CodeParentNotFound},
		{"wrapped duplicate", fmt.Errorf("insert: %w", ErrDuplicateSlug), CodeDuplicateSlug},
		{"cycle", opError("move", id, ErrCycleDetected, ""), CodeCycleDetected},
		{"children", opError("delete", id, ErrHasActiveChildren, ""), CodeHasActiveChildren},
		{"conflict", fmt.Errorf("commit: %w", ErrConflict), CodeConflict},
		{"too deep", opError("move", id, ErrTooDeep, "ancestor chain"), CodeTooDeep},
		{"other", errors.New("disk on fire"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestParentNotFoundIsNotFound(t *testing.T) {
	if !errors.Is(ErrParentNotFound, ErrNotFound) {
		t.Error("ErrParentNotFound should wrap ErrNotFound")
	}
}

func TestErrorMessage(t *testing.T) {
	id := uuid.MustParse("5f0c6d3e-1111-4222-8333-944455556666")
	err := opError("delete", id, ErrHasActiveChildren, "2 direct children")
	msg := err.Error()
	for _, part := range []string{"delete", "category has children", id.String(), "2 direct children"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}

	var te *Error
	if !errors.As(fmt.Errorf("wrapped: %w", err), &te) || te.Op != "delete" {
		t.Error("errors.As should find *Error through wrapping")
	}
}
