// Package apperr defines the error taxonomy shared by every service.
// Services wrap these sentinels with %w and the HTTP layer maps them
// to status codes, so callers can tell "your card failed" apart from
// "our system failed".
package apperr

import "errors"

var (
	ErrValidation = errors.New("validation") // 400
	ErrNotFound   = errors.New("not found")  // 404
	ErrConflict   = errors.New("conflict")   // 409
	ErrGateway    = errors.New("gateway")    // 502
)

// IsClient reports whether err should be surfaced with its message intact.
// Internal errors are logged with full detail and returned as a generic 500.
func IsClient(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrGateway)
}
