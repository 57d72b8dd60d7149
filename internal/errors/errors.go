// Package errors holds the sentinel errors shared by the cache, the migrator,
// the fetch pipeline and the HTTP layer, plus helpers to classify them.
//
// Every package wraps one of these sentinels with fmt.Errorf("...: %w") so
// callers can branch with errors.Is without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Fetch errors
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrFetchDisabled       = errors.New("fetching is disabled")

	// Snapshot errors
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrMalformedSnapshot  = errors.New("malformed snapshot")

	// Store errors
	ErrWriteFailure = errors.New("write failure")
	ErrCorruptEntry = errors.New("corrupt cache entry")
	ErrNotFound     = errors.New("not found")

	// Migration errors
	ErrRelocationConflict = errors.New("relocation conflict")
	ErrRootUnusable       = errors.New("cache root unusable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err means no entry could be resolved.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsReadSkippable returns true for errors a read scan logs and moves past.
func IsReadSkippable(err error) bool {
	return errors.Is(err, ErrCorruptEntry) ||
		errors.Is(err, ErrNotFound)
}

// IsValidation returns true if err is a configuration error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps an error to the status code the serving layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case Is(err, ErrMalformedTimestamp), IsValidation(err):
		return http.StatusBadRequest
	case Is(err, ErrUpstreamUnavailable), Is(err, ErrCorruptEntry), Is(err, ErrFetchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithKind attaches a sentinel to an underlying cause so that both
// errors.Is(err, kind) and errors.Is(err, cause) hold.
func WithKind(kind error, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), kind, cause)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewConflict creates a relocation conflict error for a move from src to dst.
func NewConflict(src, dst string) error {
	return fmt.Errorf("%s -> %s: destination exists: %w", src, dst, ErrRelocationConflict)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
