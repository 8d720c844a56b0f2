package apperrors

import "errors"

// Sentinel errors returned by services and repositories. Handlers map
// them to HTTP status codes with errors.Is.
var (
	// ErrNotFound covers both a missing record and a record that fails
	// the precondition of a consent transition (wrong status, wrong
	// acceptor). The two cases are deliberately indistinguishable to
	// the caller.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a semantically duplicate record already exists,
	// or a pending proposal blocks a new one.
	ErrConflict = errors.New("conflict")

	// ErrValidation means malformed input.
	ErrValidation = errors.New("validation failed")
)
