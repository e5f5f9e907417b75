package fingerprint

import (
	"errors"
	"fmt"
)

// Sentinel errors for key derivation.
var (
	// ErrUnhashableArgument indicates an argument has no canonical encoding.
	ErrUnhashableArgument = errors.New("fingerprint: argument cannot be canonicalized")

	// ErrEmptyProducerID indicates the producer ID is empty.
	ErrEmptyProducerID = errors.New("fingerprint: producer id is required")

	// ErrInvalidKey indicates a string is not a hex-encoded Key.
	ErrInvalidKey = errors.New("fingerprint: invalid key")
)

// UnhashableError describes which argument could not be canonicalized.
// It matches ErrUnhashableArgument with errors.Is.
type UnhashableError struct {
	// Path locates the argument, e.g. args[1].Items[0] or kwargs["opts"].
	Path string

	// Type is the Go type of the offending value.
	Type string

	// Reason is a short description such as "func" or "reference cycle".
	Reason string
}

func (e *UnhashableError) Error() string {
	return fmt.Sprintf("fingerprint: cannot canonicalize %s (%s): %s", e.Path, e.Type, e.Reason)
}

// Unwrap returns ErrUnhashableArgument.
func (e *UnhashableError) Unwrap() error {
	return ErrUnhashableArgument
}

func (e *UnhashableError) under(segment string) *UnhashableError {
	e.Path = segment + e.Path
	return e
}
