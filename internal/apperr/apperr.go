// Package apperr defines the error kinds the upload API reports and their HTTP status codes.
package apperr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Auth
	NotFound
	Conflict
	SizeLimit
	Storage
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case SizeLimit:
		return "size_limit"
	case Storage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is a classified error. Msg is safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(Validation, format, args...) }
func Authf(format string, args ...any) error       { return newf(Auth, format, args...) }
func NotFoundf(format string, args ...any) error   { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) error   { return newf(Conflict, format, args...) }
func SizeLimitf(format string, args ...any) error  { return newf(SizeLimit, format, args...) }

// StorageErr wraps a backend failure.
func StorageErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Storage, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case SizeLimit:
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
