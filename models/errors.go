package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a federation failure. Every error escaping the
// pipeline is one of these; the inbox controller maps the kind to an HTTP
// status so peers know whether to retry.
type ErrorKind int

const (
	// KindMalformed marks a structurally invalid envelope or an unknown
	// top-level activity type. Permanent.
	KindMalformed ErrorKind = iota
	// KindAuthentication marks a signature or digest mismatch, or a
	// signing actor that differs from the activity actor. Permanent.
	KindAuthentication
	// KindAuthorization marks a verified actor that lacks permission
	// (blocked, not a moderator, wrong authority). Permanent.
	KindAuthorization
	// KindRecursionExceeded marks a resolution chain that spent its
	// budget; the referenced object graph is untrusted. Permanent.
	KindRecursionExceeded
	// KindResolution marks a transient remote fetch failure; the
	// sender's own retry re-delivers.
	KindResolution
	// KindStorage marks a local persistence fault; the sender retries.
	KindStorage
)

// Error is a classified federation error.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds a classified error.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr classifies an underlying error. If err is already classified its
// kind is preserved.
func WrapErr(kind ErrorKind, err error, msg string) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	return &Error{Kind: kind, Msg: msg, Cause: err}
}

// KindOf extracts the kind of err. Unclassified errors count as storage
// faults so they surface as retryable 5xx rather than being coerced into
// a permanent reject.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindStorage
}

// HTTPStatus maps an error to the response code promised to peers:
// 4xx permanent reject, 5xx retryable local fault, 502 for transient
// resolution failures the sender's retry can heal.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMalformed, KindRecursionExceeded:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindResolution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
