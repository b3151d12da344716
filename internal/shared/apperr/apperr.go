// Package apperr defines the error kinds shared by every domain package.
// Domain packages build their sentinels on top of these kinds so handlers can
// map any error to a status code with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("state conflict")
	ErrGone       = errors.New("gone")
	ErrForbidden  = errors.New("forbidden")
)

// Error pairs a kind with a stable machine-readable code.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New creates a coded error of the given kind.
func New(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation builds a formatted validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Code: "validation_error", Message: fmt.Sprintf(format, args...)}
}

// Status maps an error to its HTTP status and code.
func Status(err error) (int, string) {
	code := ""
	var coded *Error
	if errors.As(err, &coded) {
		code = coded.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, orDefault(code, "validation_error")
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, orDefault(code, "not_found")
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, orDefault(code, "forbidden")
	case errors.Is(err, ErrGone):
		return http.StatusGone, orDefault(code, "gone")
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, orDefault(code, "conflict")
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func orDefault(code, def string) string {
	if code == "" {
		return def
	}
	return code
}
