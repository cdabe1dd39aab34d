package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks a failed request to the gateway.
	ErrTransport = errors.New("gateway transport error")

	// ErrDecode marks a gateway reply that does not have the expected shape.
	ErrDecode = errors.New("gateway reply decode error")

	// ErrAuthRejected marks a well-formed login reply that did not grant a session.
	ErrAuthRejected = errors.New("gateway rejected login")
)

// RejectedError describes a login reply without a usable session.
// HasResult is false when the reply carried no numeric result field.
type RejectedError struct {
	Result    int64
	HasResult bool
}

func (e *RejectedError) Error() string {
	if !e.HasResult {
		return fmt.Sprintf("%s: reply has no result", ErrAuthRejected)
	}
	if e.Result == 0 {
		return fmt.Sprintf("%s: reply has no session token", ErrAuthRejected)
	}
	return fmt.Sprintf("%s: result %d", ErrAuthRejected, e.Result)
}

func (e *RejectedError) Unwrap() error { return ErrAuthRejected }
