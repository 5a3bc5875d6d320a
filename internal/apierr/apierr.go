// Package apierr defines the error kinds surfaced by the API and their HTTP status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind string

const (
	Validation           Kind = "validation_error"
	NotFound             Kind = "not_found"
	Forbidden            Kind = "forbidden"
	Unauthorized         Kind = "unauthorized"
	CredentialMissing    Kind = "credential_missing"
	CredentialExpired    Kind = "credential_expired"
	MalformedAIResponse  Kind = "malformed_ai_response"
	IncompleteAIResponse Kind = "incomplete_ai_response"
	AIBlocked            Kind = "ai_blocked"
	AIFailure            Kind = "ai_failure"
	SandboxExecution     Kind = "sandbox_execution"
	SandboxTimeout       Kind = "sandbox_timeout"
	Internal             Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	Validation:           http.StatusBadRequest,
	NotFound:             http.StatusNotFound,
	Forbidden:            http.StatusForbidden,
	Unauthorized:         http.StatusUnauthorized,
	CredentialMissing:    http.StatusBadRequest,
	CredentialExpired:    http.StatusUnauthorized,
	MalformedAIResponse:  http.StatusInternalServerError,
	IncompleteAIResponse: http.StatusInternalServerError,
	AIBlocked:            http.StatusBadRequest,
	AIFailure:            http.StatusInternalServerError,
	SandboxExecution:     http.StatusInternalServerError,
	SandboxTimeout:       http.StatusInternalServerError,
	Internal:             http.StatusInternalServerError,
}

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified error carrying a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind with a client-facing message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Internal when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Body is the JSON error envelope written to clients.
type Body struct {
	Message string `json:"message"`
	Code    Kind   `json:"code"`
	Details any    `json:"details,omitempty"`
}

// ToBody converts err into a status code and response body. Unclassified errors are reported as internal without leaking their text.
func ToBody(err error) (int, Body) {
	if e, ok := As(err); ok {
		return e.Status(), Body{Message: e.Message, Code: e.Kind, Details: e.Details}
	}
	return http.StatusInternalServerError, Body{Message: "Internal server error", Code: Internal}
}
