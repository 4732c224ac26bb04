package services

import "errors"

// ErrUnsupported is returned by a capability provider whose backing service
// is not available in the current environment. It is surfaced to the user at
// invocation time, not at startup.
var ErrUnsupported = errors.New("capability not supported")

// TransportError means the solve call itself failed: network, backend
// unreachable, or a non-success response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "solve transport failure: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the backend answered but the payload could not be parsed
// into the expected structured shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "solve response decode failure: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }
