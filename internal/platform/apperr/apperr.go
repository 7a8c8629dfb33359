// Package apperr defines the error kinds returned by resource services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("authentication required")
)

// Error carries a kind (one of the sentinels above), a caller-facing message
// and optional extra response fields.
type Error struct {
	Kind    error
	Message string
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

func Unauthenticated() error {
	return &Error{Kind: ErrUnauthenticated, Message: "authentication credentials were not provided"}
}

// ValidationWithFields returns a Validation error carrying extra response
// fields such as the list of allowed referral transitions.
func ValidationWithFields(msg string, fields map[string]interface{}) error {
	return &Error{Kind: ErrValidation, Message: msg, Fields: fields}
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// HTTP converts a service error into an *echo.HTTPError with a JSON body of
// the form {"detail": "...", ...fields}. Unknown errors become a generic 500
// so internal details never reach the client.
func HTTP(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	status := Status(err)
	body := map[string]interface{}{}
	if status == http.StatusInternalServerError {
		body["detail"] = "internal server error"
		return echo.NewHTTPError(status, body).SetInternal(err)
	}

	var ae *Error
	if errors.As(err, &ae) {
		body["detail"] = ae.Error()
		for k, v := range ae.Fields {
			body[k] = v
		}
	} else {
		body["detail"] = err.Error()
	}
	return echo.NewHTTPError(status, body)
}
