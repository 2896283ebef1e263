package sales

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure the sale operations return.
type ErrorKind string

const (
	KindItemNotFound       ErrorKind = "ItemNotFound"
	KindInsufficientStock  ErrorKind = "InsufficientStock"
	KindStockRace          ErrorKind = "StockRace"
	KindPersistenceFailure ErrorKind = "PersistenceFailure"
	KindNotFound           ErrorKind = "NotFound"
	KindInvalidInput       ErrorKind = "InvalidInput"
)

// Error is the single error type crossing the sales boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	EntryID string
	Err     error
}

// Sentinels for errors.Is checks by kind.
var (
	ErrItemNotFound       = &Error{Kind: KindItemNotFound}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrStockRace          = &Error{Kind: KindStockRace}
	ErrPersistenceFailure = &Error{Kind: KindPersistenceFailure}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("sales: %s: %v", msg, e.Err)
	}
	return "sales: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether repeating the identical request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindStockRace
}

// HTTPStatus maps the kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound, KindItemNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindStockRace:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Title is the short problem title.
func (e *Error) Title() string {
	return string(e.Kind)
}

// KindOf extracts the kind of err, or "" when err is not a sales error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind ErrorKind, entryID string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, EntryID: entryID, Err: err, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, "", nil, format, args...)
}
