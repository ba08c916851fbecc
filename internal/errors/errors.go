// Package errors provides the application error taxonomy for the control
// plane. It classifies failures into the categories the control plane
// distinguishes operationally and maps each to an HTTP status and exit
// behavior.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes, one per category the control plane distinguishes.
const (
	// CodeValidation covers bad JSON, a missing required field, or a bad
	// flag value.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound covers an unknown service name.
	CodeNotFound Code = "NOT_FOUND"
	// CodeLiveness covers "no healthy backend available".
	CodeLiveness Code = "NO_HEALTHY_BACKEND"
	// CodeUpstreamTimeout covers a backend call that exceeded its budget.
	CodeUpstreamTimeout Code = "UPSTREAM_TIMEOUT"
	// CodeUpstreamTransport covers connection refused, reset, or DNS
	// failure talking to a backend.
	CodeUpstreamTransport Code = "UPSTREAM_TRANSPORT_ERROR"
	// CodeInternal covers any unexpected failure.
	CodeInternal Code = "INTERNAL_ERROR"
	// CodeStartupFatal covers a missing config file or a port bind
	// conflict; the process logs and exits non-zero.
	CodeStartupFatal Code = "STARTUP_FATAL"
)

// Kind classifies an error for propagation-policy decisions: whether it
// is safe to log-and-retry, or fatal.
type Kind int

const (
	// KindUnknown is an unclassified error kind.
	KindUnknown Kind = iota
	// KindUser indicates the caller's request was malformed or referred
	// to an unknown resource.
	KindUser
	// KindSystem indicates an unexpected internal failure.
	KindSystem
	// KindTransient indicates a temporary condition (upstream down,
	// timed out) that a subsequent periodic tick may resolve on its own.
	KindTransient
	// KindFatal indicates a startup failure the process cannot recover
	// from; the caller should log and exit.
	KindFatal
)

// Error is the application error type returned by every component's
// request handlers and background loops.
type Error struct {
	// Code is the machine-readable error code.
	Code Code `json:"code"`
	// Message is the human-readable error message, suitable for the
	// stable {"error": "..."} envelope.
	Message string `json:"message"`
	// Kind classifies the error for handling decisions.
	Kind Kind `json:"-"`
	// Op is the operation being performed (e.g., "registry.Heartbeat").
	Op string `json:"-"`
	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the HTTP status for this error, per spec.md §7's
// taxonomy table.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLiveness:
		return http.StatusServiceUnavailable
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable reports whether the error may resolve itself on the next
// periodic tick without operator intervention.
func (e *Error) IsRetriable() bool {
	return e.Kind == KindTransient
}

// IsUserError reports whether the error was caused by the caller.
func (e *Error) IsUserError() bool {
	return e.Kind == KindUser
}

// Envelope is the stable JSON error response shape every component
// returns: {"error": "<human-readable>"}.
type Envelope struct {
	Error string `json:"error"`
}

// ToEnvelope converts an Error to the wire envelope.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{Error: e.Message}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
		Op:      op,
		Err:     err,
	}
}

// WrapWithOp wraps an existing error preserving its code but adding
// operation context. Non-*Error inputs are classified CodeInternal.
func WrapWithOp(err error, op string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Code:    e.Code,
			Message: e.Message,
			Kind:    e.Kind,
			Op:      op,
			Err:     e.Err,
		}
	}
	return &Error{
		Code:    CodeInternal,
		Message: err.Error(),
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

func kindForCode(code Code) Kind {
	switch code {
	case CodeValidation, CodeNotFound:
		return KindUser
	case CodeLiveness, CodeUpstreamTimeout, CodeUpstreamTransport:
		return KindTransient
	case CodeStartupFatal:
		return KindFatal
	default:
		return KindSystem
	}
}

// Sentinel errors for common cases.
var (
	// ErrNotFound indicates an unknown service name.
	ErrNotFound = New(CodeNotFound, "service not found")

	// ErrNoHealthyBackend indicates the Router's pool has no healthy
	// member to select.
	ErrNoHealthyBackend = New(CodeLiveness, "No healthy services available")

	// ErrUpstreamTimeout indicates a backend call exceeded its budget.
	ErrUpstreamTimeout = New(CodeUpstreamTimeout, "Service timeout")

	// ErrUpstreamTransport indicates a backend call failed at the
	// transport layer (refused, reset, DNS).
	ErrUpstreamTransport = New(CodeUpstreamTransport, "Service error")
)

// NotFound creates a not-found error for a named service.
func NotFound(name string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("service %q not found", name),
		Kind:    KindUser,
	}
}

// ValidationFailed creates a validation error with a human-readable
// message.
func ValidationFailed(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Kind:    KindUser,
	}
}

// MissingField creates a missing-required-field validation error.
func MissingField(field string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("missing required field: %s", field),
		Kind:    KindUser,
	}
}

// UpstreamTransportError creates an upstream-transport error naming the
// backend that failed.
func UpstreamTransportError(service string, err error) *Error {
	return &Error{
		Code:    CodeUpstreamTransport,
		Message: "Service error",
		Kind:    KindTransient,
		Op:      service,
		Err:     err,
	}
}

// InternalError creates a generic internal error.
func InternalError(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Kind:    KindSystem,
		Err:     err,
	}
}

// StartupFatal creates a startup-fatal error; callers log it and exit
// non-zero.
func StartupFatal(message string, err error) *Error {
	return &Error{
		Code:    CodeStartupFatal,
		Message: message,
		Kind:    KindFatal,
		Err:     err,
	}
}

// GetCode extracts the error code from an error, returning CodeInternal
// for non-app errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error, returning 500
// for non-app errors.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsRetriable reports whether an error is retriable on the next tick.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetriable()
	}
	return false
}

// IsNotFound reports whether an error is a not-found error.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound
	}
	return false
}
