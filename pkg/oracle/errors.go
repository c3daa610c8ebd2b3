package oracle

import (
	"errors"
	"fmt"
)

// ErrNoResult marks an oracle call that returned nothing at all. It is
// retried like any other failure.
var ErrNoResult = errors.New("oracle returned no result")

// UnavailableError is returned once every attempt has failed.
type UnavailableError struct {
	Label    string
	Attempts int
	Model    string
	LastErr  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable for %s after %d attempts (model %q): %v", e.Label, e.Attempts, e.Model, e.LastErr)
}

func (e *UnavailableError) Unwrap() error {
	return e.LastErr
}

// IsUnavailable reports whether err came from an exhausted invocation.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// MalformedOutputError is a structured-output parse failure. The invocation
// wrapper treats it as a failed attempt.
type MalformedOutputError struct {
	Content string
	Err     error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed oracle output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}
