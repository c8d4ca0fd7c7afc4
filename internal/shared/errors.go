package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports input rejected before any mutation took place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateError reports an operation that is illegal for the record's current
// status. It is raised before any side effect.
type StateError struct {
	Entity string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s in status %q does not allow %s", e.Entity, e.Status, e.Op)
}

// PartialFailureError reports a composite mutation that failed after at least
// one step already committed. Step names the exact point to resume from.
type PartialFailureError struct {
	DocumentID int64
	Step       string
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("document %d: step %q failed after earlier steps committed: %v", e.DocumentID, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// StoreError wraps a failed per-table store call with the table it targeted.
type StoreError struct {
	Table string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore tags an error from a store call. Nil passes through.
func WrapStore(table, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Table: table, Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
