package api

import (
	"fmt"

	errs "github.com/mwarrick/digital-business-card-sub000/internal/errors"
)

// TransportError wraps a DNS, connect or timeout failure. These are
// retried by a later sync pass, never inside the gateway.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string        { return e.Err.Error() }
func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == errs.ErrTransport }

// ServerRejectedError is a non-2xx answer, or a 2xx answer whose
// envelope says success:false.
type ServerRejectedError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("API %s (%d): %s", e.Endpoint, e.Status, e.Message)
}

func (e *ServerRejectedError) Is(target error) bool { return target == errs.ErrServerRejected }

// DecodeError is a response body that could not be decoded.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error        { return e.Err }
func (e *DecodeError) Is(target error) bool { return target == errs.ErrDecode }
