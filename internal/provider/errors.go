package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a provider failure into the buckets the link engine
// branches on. Unrecognized provider codes map to KindInternal.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindAuthFailure
	KindMFAFailure
	KindTransient
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindAuthFailure:
		return "auth_failure"
	case KindMFAFailure:
		return "mfa_failure"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the single tagged error type for everything that crosses the
// provider boundary: HTTP failures, provider error codes, and session
// problems all land here.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider: %s: %s", e.Kind, e.Message)
}

// Temporary reports whether retrying the same call may succeed.
func (e *Error) Temporary() bool { return e.Kind == KindTransient }

// KindOf extracts the error kind from err, or KindInternal if err does not
// wrap a provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err means the remote object no longer exists.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsTransient reports whether err is worth one more try.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// classify maps an HTTP status plus provider error code to an ErrorKind.
func classify(status int, code string) ErrorKind {
	switch code {
	case "INVALID_CREDENTIALS", "CREDENTIALS_LOCKED":
		return KindAuthFailure
	case "MFA_REQUIRED_NOT_PROVIDED", "INCORRECT_MFA_RESPONSE":
		return KindMFAFailure
	case "INVALID_INPUT", "MISSING_REQUIRED_FIELD":
		return KindBadRequest
	}
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthFailure
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindInternal
	}
}
