// Package domainerrors defines the error codes services return to transports.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate those
// into coded errors here, and the HTTP layer maps codes to status codes.
package domainerrors

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeBadRequest          Code = "bad_request"
	CodeValidation          Code = "validation_error"
	CodeNotFound            Code = "not_found"
	CodeCellNotFound        Code = "cell_not_found"
	CodeConflict            Code = "conflict"
	CodeCellFull            Code = "cell_full"
	CodeStoreUnavailable    Code = "store_unavailable"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal_error"
)

// Error is a coded error. Message is safe to show to clients unless the code is internal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is returns the outermost coded error in err's chain.
func Is(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := Is(err); ok {
		return de.Code
	}
	return CodeInternal
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound, CodeCellNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeCellFull:
		return http.StatusConflict
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
