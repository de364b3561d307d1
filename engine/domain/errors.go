package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrMissingAppID     = errors.New("app id is required")
	ErrMinClusterSize   = errors.New("min cluster size out of range")
	ErrMaxClusters      = errors.New("max clusters out of range")
	ErrClusterBounds    = errors.New("min cluster size must be below max clusters")
	ErrThresholdRange   = errors.New("threshold out of range")
	ErrDateRange        = errors.New("malformed date range")
	ErrEmptyClusterID   = errors.New("cluster id is empty")
	ErrDuplicateCluster = errors.New("duplicate cluster id")
	ErrUnknownCluster   = errors.New("unknown cluster id")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrTooManyTags      = errors.New("too many tags")
)

// Sentinel errors for runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrPersistence       = errors.New("persistence failed")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// NotFoundError reports a missing resource such as an unknown application.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UpstreamError reports a failed call to an external dependency for one ticket.
type UpstreamError struct {
	Dependency string
	TicketID   string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: ticket %s: %v", e.Dependency, e.TicketID, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrEmbeddingFailed, e.Err} }

// PersistenceError reports a failed write of one cluster's FAQ entry.
type PersistenceError struct {
	ClusterID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cluster %s: %v", e.ClusterID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
