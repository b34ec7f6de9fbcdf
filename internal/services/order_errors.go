package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrUnresolvedReference indicates a requested line references a missing catalog entry.
	ErrUnresolvedReference = errors.New("order: unresolved inventory reference")
	// ErrOrderPersistence indicates the order store rejected the write.
	ErrOrderPersistence = errors.New("order: persistence failed")
	// ErrCatalogUnavailable indicates catalog lookups failed for reasons other than a missing entry.
	ErrCatalogUnavailable = errors.New("order: catalog unavailable")
	// ErrCatalogEntryNotFound indicates a catalog read resolved to nothing.
	ErrCatalogEntryNotFound = errors.New("catalog: entry not found")
)

// Error kinds reported to callers.
const (
	ErrorKindValidation          = "validation_error"
	ErrorKindUnresolvedReference = "unresolved_reference"
	ErrorKindPersistence         = "persistence_error"
	ErrorKindCatalogUnavailable  = "catalog_unavailable"
	ErrorKindCanceled            = "request_canceled"
	ErrorKindNotFound            = "not_found"
	ErrorKindInternal            = "internal_error"
)

// ValidationError reports a structural violation together with the offending field path.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrOrderInvalidInput.Error(), e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrOrderInvalidInput }

func invalidField(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnresolvedReferenceError identifies the first requested line whose catalog entry is missing.
// Line is the zero-based index of the line in the request.
type UnresolvedReferenceError struct {
	Reference string
	Line      int
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: %q (line %d)", ErrUnresolvedReference.Error(), e.Reference, e.Line)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// PersistenceError wraps a failed order write. The cause stays reachable through errors.Is/As.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrOrderPersistence.Error(), e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrOrderPersistence, e.Err} }

// ErrorKind classifies an error returned by the order services into the caller-facing taxonomy.
// A cancellation observed during the write is a persistence error, since the outcome is unknown.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOrderInvalidInput):
		return ErrorKindValidation
	case errors.Is(err, ErrUnresolvedReference):
		return ErrorKindUnresolvedReference
	case errors.Is(err, ErrOrderPersistence):
		return ErrorKindPersistence
	case errors.Is(err, ErrCatalogUnavailable):
		return ErrorKindCatalogUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrCatalogEntryNotFound):
		return ErrorKindNotFound
	default:
		return ErrorKindInternal
	}
}
