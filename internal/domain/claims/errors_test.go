package claims

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", &NotFoundError{ClaimID: uuid.New()}, CodeNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", ErrNotFound), CodeNotFound},
		{"transition", &InvalidStateTransitionError{Operation: OpApprove, Current: StatusPaid}, CodeInvalidTransition},
		{"validation", &ValidationError{Reasons: []string{"x"}}, CodeValidationFailure},
		{"denial reason", ErrDenialRequiresReason, CodeDenialRequiresReason},
		{"persistence", persistenceErr("save claim", errors.New("boom")), CodePersistenceFailure},
		{"concurrent", persistenceErr("save claim", ErrConcurrentModification), CodePersistenceFailure},
		{"other", context.DeadlineExceeded, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestPersistenceErr_DoesNotDoubleWrap(t *testing.T) {
	inner := persistenceErr("duplicate lookup", errors.New("timeout"))
	outer := persistenceErr("adjudicate", inner)
	if outer != inner {
		t.Error("an existing persistence error should pass through unchanged")
	}
	if outer.Error() != "duplicate lookup: timeout" {
		t.Errorf("unexpected message %q", outer.Error())
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Reasons: []string{"member_id is required", "units must be >= 1"}}
	want := "validation failed with 2 error(s): member_id is required; units must be >= 1"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestClaimNumberFormat(t *testing.T) {
	if got := FormatClaimNumber(2026, 42); got != "CLM-2026-000042" {
		t.Errorf("unexpected claim number %s", got)
	}
	year, seq, err := ParseClaimNumber("CLM-2026-1234567")
	if err != nil || year != 2026 || seq != 1234567 {
		t.Errorf("unexpected parse: %d %d %v", year, seq, err)
	}
	for _, bad := range []string{"", "CLM-2026", "CLX-2026-000001", "CLM-20x6-000001", "CLM-2026-00001", "CLM-2026-00000a"} {
		if _, _, err := ParseClaimNumber(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCheckNumberFormat(t *testing.T) {
	if got := FormatCheckNumber(testNow, 7); got != "CHK-20260301-00007" {
		t.Errorf("unexpected check number %s", got)
	}
}
