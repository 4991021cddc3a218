package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fetch/store taxonomy. Handlers map these to
// HTTP status codes; the scheduler logs and continues on them.
var (
	// ErrUnknownSource means no registry entry exists for the
	// jurisdiction/agency pair. Permanent; surfaced as 400.
	ErrUnknownSource = errors.New("no source registered for jurisdiction/agency")

	// ErrDocumentUnavailable means every fallback (API, scrape, archive)
	// was exhausted.
	ErrDocumentUnavailable = errors.New("document unavailable from all sources")

	// ErrNotFound means the requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict means a store write lost a bounded lock-contention retry
	ErrConflict = errors.New("write conflict")

	// ErrAccessDenied means the client's tier or jurisdiction grant does
	// not cover the requested operation.
	ErrAccessDenied = errors.New("access denied")
)

// TransientFetchError marks a retryable network-level failure. The fetch
// pipeline retries these with backoff; anything else short-circuits to the
// next fallback.
type TransientFetchError struct {
	Source string // api, scrape
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure from %s: %v", e.Source, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable fetch failure
func IsTransient(err error) bool {
	var t *TransientFetchError
	return errors.As(err, &t)
}

// ValidationError reports a missing or malformed request parameter
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
