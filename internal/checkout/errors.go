package checkout

import "errors"

// Errors returned by the checkout flow. Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrExternalService = errors.New("payment provider error")
	ErrInvalidState    = errors.New("invalid state")
	ErrAlreadyEnrolled = errors.New("already enrolled")
)
