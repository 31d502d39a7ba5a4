package fault

import (
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Compile-time checks that both error types implement the error interface.
var (
	_ error = Error("")
	_ error = (*AdmissionError)(nil)
)

// Error is an immutable error type backed by a string constant.
// Unlike errors.New, which returns a pointer and must be stored in a var,
// Error values can be declared as const, preventing reassignment.
//
// errors.Is compatibility: since Error is a comparable type, the default
// == comparison used by errors.Is works correctly through wrapped error chains.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

// AdmissionError is returned when a start request is rejected by admission
// control. It is never retried automatically; the Reason is suitable for
// returning to the requesting user verbatim.
type AdmissionError struct {
	Reason string
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	return "admission rejected: " + e.Reason
}

// IsAdmissionRejected reports whether err is (or wraps) an AdmissionError.
func IsAdmissionRejected(err error) bool {
	var ae *AdmissionError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err represents an expected-absence outcome:
// either a Kubernetes 404 from the control plane or a wrapped ErrNotFound
// from a store. Stop, poll, and delete paths treat this as a valid terminal
// state rather than a failure.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err) || errors.Is(err, ErrNotFound)
}

// ErrNotFound is the store-level counterpart of a Kubernetes 404: the
// requested record does not exist.
const ErrNotFound = Error("record not found")
