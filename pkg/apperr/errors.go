// Package apperr defines the error kinds shared by every service. Domain and
// application code wrap these sentinels with fmt.Errorf("%w: ...") and the
// transport layer maps them to status codes with errors.Is.
package apperr

import "errors"

var (
	ErrInvalid               = errors.New("invalid request")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrLimitExceeded         = errors.New("limit exceeded")
	ErrValidationUnavailable = errors.New("credential validation unavailable")
)

// Kind returns the sentinel err wraps, or nil for internal errors.
func Kind(err error) error {
	for _, k := range []error{
		ErrInvalid,
		ErrUnauthorized,
		ErrNotFound,
		ErrConflict,
		ErrLimitExceeded,
		ErrValidationUnavailable,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
