package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input or an illegal state transition.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates lock contention; the whole transition may be retried.
	ErrConflict = errors.New("conflict")
	// ErrMissingConfiguration indicates required master data is absent.
	ErrMissingConfiguration = errors.New("missing configuration")
	// ErrFiscalRejected indicates the fiscal authority rejected a document.
	// The document stays Confirmed; the attempt may be repeated after correction.
	ErrFiscalRejected = errors.New("fiscal authority rejected document")
	// ErrFiscalNumberingMismatch indicates local and remote sequences diverged.
	// Requires manual reconciliation before further authorization attempts.
	ErrFiscalNumberingMismatch = errors.New("fiscal numbering mismatch")
)

// ValidationError carries a field-level message and unwraps to ErrValidation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Msg)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a lost race on a shared row (counter, balance).
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %s is locked by a concurrent writer", e.Resource, e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DuplicateNumberError reports a manually assigned number colliding with an
// existing document in the same series.
type DuplicateNumberError struct {
	Series string
	Number int64
}

func (e *DuplicateNumberError) Error() string {
	return fmt.Sprintf("duplicate document number %d in series %s", e.Number, e.Series)
}

func (e *DuplicateNumberError) Unwrap() error { return ErrConflict }

// MissingWarehouseError reports that no warehouse could be resolved for a
// stock-affecting line.
type MissingWarehouseError struct {
	ArticleID int64
}

func (e *MissingWarehouseError) Error() string {
	return fmt.Sprintf("no warehouse resolvable for article %d", e.ArticleID)
}

func (e *MissingWarehouseError) Unwrap() error { return ErrMissingConfiguration }
