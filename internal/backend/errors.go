package backend

import (
	"errors"
	"fmt"
)

// TransportError reports that the backend could not be reached or answered
// with something that is not a valid response.  The backend did not apply
// the change, or it is unknown whether it did.
type TransportError struct {
	Op     string // unassign, assign, pool-data, preferences-match
	Status int    // HTTP status, 0 when no response arrived
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError carries a structured refusal from the backend, such as a
// capacity conflict.  Message is the backend's text, verbatim.
type RejectionError struct {
	Op      string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("backend %s rejected: %s", e.Op, e.Message)
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is, or wraps, a *RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// RejectionMessage returns the backend message of a rejection, or "".
func RejectionMessage(err error) string {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}
