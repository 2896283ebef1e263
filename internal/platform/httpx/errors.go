// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is implemented by domain errors that know their HTTP mapping.
type StatusError interface {
	error
	HTTPStatus() int
	Title() string
}

// RetryableError marks failures a client may retry unchanged.
type RetryableError interface {
	Retryable() bool
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		detail := statusErr.Error()
		status := statusErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			detail = ""
		}
		problem := ProblemDetail{Title: statusErr.Title(), Status: status, Detail: detail}
		var retryable RetryableError
		if errors.As(err, &retryable) {
			problem.Retryable = retryable.Retryable()
		}
		JSON(w, status, problem)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
