package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("start task: %w", InvalidState("task is running"))
	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected wrapped error to match ErrInvalidState")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("invalid state should not match not found")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{Validation("bad count"), CodeValidation},
		{fmt.Errorf("wrap: %w", NotFound("no task")), CodeNotFound},
		{errors.New("disk full"), CodeInternal},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
