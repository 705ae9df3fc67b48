package session

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a submission arrives while another user
// action is still in flight.
var ErrBusy = errors.New("another action is in flight")

// ValidationError reports input rejected locally before any remote call.
// Validation failures are surfaced inline only; they never produce a
// message log entry and never reach the gateway.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
