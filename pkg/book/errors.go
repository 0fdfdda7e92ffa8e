package book

import "errors"

var (
	ErrNotFound    = errors.New("order not found")
	ErrDuplicateID = errors.New("duplicate order id")
)

// ValidationError reports a malformed order or operation payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
