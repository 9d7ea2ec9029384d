package claims

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error codes returned by CodeOf.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidTransition    = "INVALID_STATE_TRANSITION"
	CodeValidationFailure    = "VALIDATION_FAILURE"
	CodeDenialRequiresReason = "DENIAL_REQUIRES_REASON"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeInternal             = "INTERNAL"
)

var (
	ErrNotFound          = errors.New("claim not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation failure")
	ErrPersistence       = errors.New("persistence failure")

	// ErrDenialRequiresReason is returned by Deny when no denial reason code
	// or description is supplied.
	ErrDenialRequiresReason = errors.New("denial requires a reason code and description")

	// ErrConcurrentModification is returned by Repository.Save when the stored
	// version no longer matches the claim being written.
	ErrConcurrentModification = errors.New("claim was modified concurrently")
)

// NotFoundError is returned when an org-scoped lookup has no match.
type NotFoundError struct {
	ClaimID        uuid.UUID
	OrganizationID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("claim %s not found", e.ClaimID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateTransitionError reports an operation attempted from a status
// that does not permit it.
type InvalidStateTransitionError struct {
	Operation   Operation
	ClaimNumber string
	Current     Status
	Allowed     []Status
}

func (e *InvalidStateTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("claim %s cannot %s in status '%s' (allowed: %s)",
		e.ClaimNumber, e.Operation, e.Current, strings.Join(allowed, ", "))
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError carries every reason a submission was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s): %s", len(e.Reasons), strings.Join(e.Reasons, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError wraps a repository failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func persistenceErr(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// CodeOf maps an error to its stable taxonomy code.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrValidation):
		return CodeValidationFailure
	case errors.Is(err, ErrDenialRequiresReason):
		return CodeDenialRequiresReason
	case errors.Is(err, ErrPersistence):
		return CodePersistenceFailure
	}
	return CodeInternal
}
