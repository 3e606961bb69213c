// Package apierr carries an HTTP status and a stable machine code alongside an error.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidRequest       = "invalid_request"
	CodeNotFound             = "not_found"
	CodeStoreUnavailable     = "store_unavailable"
	CodeEmbeddingUnavailable = "embedding_unavailable"
	CodeTimeout              = "timeout"
	CodeInternal             = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, err)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}
