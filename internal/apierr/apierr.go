// Package apierr defines the error taxonomy surfaced across the HTTP API.
//
// Every error that can reach a client carries a stable string code and an
// HTTP status, mirroring the {error, message} JSON envelope the CLI parses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	Unauthorized      Code = "UNAUTHORIZED"
	RepoNotFound      Code = "REPO_NOT_FOUND"
	DistNotFound      Code = "DIST_NOT_FOUND"
	PackageNotFound   Code = "PACKAGE_NOT_FOUND"
	DistAlreadyExists Code = "DIST_ALREADY_EXISTS"
	PackageConflict   Code = "PACKAGE_CONFLICT"
	InvalidComponent  Code = "INVALID_COMPONENT_NAME"
	InvalidRepoName   Code = "INVALID_REPO_NAME"
	CouldNotParse     Code = "COULD_NOT_PARSE_UPLOAD"
	ConcurrentChange  Code = "CONCURRENT_INDEX_CHANGE"
	SigVerifyFailed   Code = "DETACHED_SIGNATURE_VERIFICATION_FAILED"
	DatabaseError     Code = "DATABASE_ERROR"
	RequestFailed     Code = "REQUEST_FAILED"
	ParseError        Code = "PARSE_ERROR"
	URLError          Code = "URL_ERROR"
)

// statusFor maps each code to the HTTP status it is reported with.
// DatabaseError is reported as 409 by default; callers that know the
// failure is not a conflict can override it with WithStatus.
var statusFor = map[Code]int{
	Unauthorized:      http.StatusUnauthorized,
	RepoNotFound:      http.StatusNotFound,
	DistNotFound:      http.StatusNotFound,
	PackageNotFound:   http.StatusNotFound,
	DistAlreadyExists: http.StatusBadRequest,
	PackageConflict:   http.StatusBadRequest,
	InvalidComponent:  http.StatusBadRequest,
	InvalidRepoName:   http.StatusBadRequest,
	CouldNotParse:     http.StatusBadRequest,
	ConcurrentChange:  http.StatusConflict,
	SigVerifyFailed:   http.StatusConflict,
	DatabaseError:     http.StatusConflict,
	RequestFailed:     http.StatusInternalServerError,
	ParseError:        http.StatusInternalServerError,
	URLError:          http.StatusInternalServerError,
}

// Error is the concrete error type carried through handler return values.
type Error struct {
	Code    Code
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error for code with the given message, using the code's
// default HTTP status.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusFor[code]}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to an underlying cause, retaining it for
// logging but never for the client-facing message.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Status: statusFor[code], cause: cause}
}

// WithStatus overrides the default HTTP status for this instance, used when
// DatabaseError must be surfaced as 500 rather than 409.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
