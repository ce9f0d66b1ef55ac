package models

import "errors"

// Error kinds shared across the store, feed and follow packages. Handlers
// translate them to HTTP status codes at the request boundary.
var (
	// ErrNotFound: a username or profile lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a uniqueness guarantee was violated, e.g. a second
	// profile creation for the same account. A contract violation by the
	// caller, fatal to the operation but not to the process.
	ErrConflict = errors.New("already exists")

	// ErrForbidden: a mutation was attempted without an authenticated
	// viewer. No state change accompanies it.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports invalid user input, currently only dweet bodies.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
