/*
errors.go - Error taxonomy shared by all packages

PURPOSE:
  One place for the three error families the engine can return. Domain
  packages return the structured forms; callers classify with errors.Is
  or the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. NotFound     - a referenced staff member, client, allocation, expense
                    or compensation does not exist
  2. InvalidState - a status transition that the lifecycle does not allow
                    (approve twice, pay before approve, edit after approve)
  3. Validation   - malformed input (negative hours, unknown field, ...)

NOT ERRORS:
  Over-budget commits and unreconciled remainders are business warnings.
  They travel as Warning values in results, never as errors.

USAGE:
  if generic.IsInvalidState(err) {
      // 409 to the caller, nothing was written
  }

SEE ALSO:
  - api/handlers.go: Maps these to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a lifecycle transition is not allowed.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned when input is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateID is returned by stores when an insert reuses an id.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "staff", "client", "allocation", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for &NotFoundError{...}.
func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// InvalidStateError describes a rejected transition.
type InvalidStateError struct {
	Action  string // "approve", "mark_paid", ...
	Current string
	Allowed []string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s from status %q (allowed: %v)", e.Action, e.Current, e.Allowed)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ValidationError describes a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for &ValidationError{...}.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }

// IsClientError returns true if the caller can fix the request.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsInvalidState(err) || IsValidation(err) || errors.Is(err, ErrDuplicateID)
}
