package apperr

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
)

// Validation wraps a human-readable reason so callers can still match
// errors.Is(err, ErrValidation) while handlers surface the reason verbatim.
func Validation(reason string) error {
	return &validationError{reason: reason}
}

type validationError struct {
	reason string
}

func (e *validationError) Error() string { return e.reason }

func (e *validationError) Is(target error) bool { return target == ErrValidation }
