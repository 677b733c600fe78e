package models

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateApplication = errors.New("application already exists for this event")
	ErrCapacityExceeded     = errors.New("no free seats left")

	ErrAutoApproveDisabled = errors.New("event does not auto-approve signups")
	ErrEventClosed         = errors.New("signups are closed for this event")
	ErrEventArchived       = errors.New("event is archived")
	ErrRequirementsNotMet  = errors.New("stats do not meet event requirements")
	ErrInvalidTransition   = errors.New("application status transition not allowed")
	ErrAlreadySeated       = errors.New("user already holds a seat")
)

// ValidationError describes malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RequirementsError carries the unmet requirement keys.
type RequirementsError struct {
	Missing []string
}

func (e *RequirementsError) Error() string {
	return fmt.Sprintf("%s: missing %v", ErrRequirementsNotMet.Error(), e.Missing)
}

func (e *RequirementsError) Is(target error) bool {
	return target == ErrRequirementsNotMet
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a state conflict the caller may resolve (waitlist, delete-then-resubmit, ...).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateApplication) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrAutoApproveDisabled) ||
		errors.Is(err, ErrEventClosed) ||
		errors.Is(err, ErrEventArchived) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadySeated)
}
