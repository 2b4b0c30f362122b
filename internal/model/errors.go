package model

import "errors"

// Error kinds shared across packages. Wrap them with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream failure")
)

// ValidationError is a client input error carrying a stable machine-readable
// code such as "no-endpoint".
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// Is makes errors.Is(err, ErrValidation) true for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError returns a *ValidationError.
func NewValidationError(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}
