// Package apperr carries business error codes from the services to the HTTP edge.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a business error code returned in the response envelope
type Code int

const (
	OK             Code = 0
	ParamsError    Code = 40000
	NotLoginError  Code = 40100
	NoAuthError    Code = 40101
	ForbiddenError Code = 40300
	NotFoundError  Code = 40400
	TooManyError   Code = 42900
	SystemError    Code = 50000
	OperationError Code = 50001
)

var defaultMessages = map[Code]string{
	OK:             "ok",
	ParamsError:    "invalid request parameters",
	NotLoginError:  "not logged in",
	NoAuthError:    "no permission",
	ForbiddenError: "access forbidden",
	NotFoundError:  "requested data does not exist",
	TooManyError:   "too many requests, slow down",
	SystemError:    "internal system error",
	OperationError: "operation failed",
}

// Message returns the default message for a code
func (c Code) Message() string {
	return defaultMessages[c]
}

// HTTPStatus maps the code family onto an HTTP status
func (c Code) HTTPStatus() int {
	switch c {
	case OK:
		return http.StatusOK
	case ParamsError:
		return http.StatusBadRequest
	case NotLoginError, NoAuthError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case TooManyError:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// BusinessError is an error the client is allowed to see
type BusinessError struct {
	Code    Code
	Message string
	cause   error
}

func (e *BusinessError) Error() string {
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.cause
}

// New builds a BusinessError, falling back to the code's default message
func New(code Code, message string) *BusinessError {
	if message == "" {
		message = code.Message()
	}
	return &BusinessError{Code: code, Message: message}
}

// Wrap builds a BusinessError that keeps err in the chain for logging and errors.Is
func Wrap(code Code, message string, err error) *BusinessError {
	be := New(code, message)
	be.cause = err
	return be
}

func Params(message string) *BusinessError   { return New(ParamsError, message) }
func NotFound(message string) *BusinessError { return New(NotFoundError, message) }

// As extracts a BusinessError from the chain
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// CodeOf returns the business code of err, SystemError for anything unknown
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if be, ok := As(err); ok {
		return be.Code
	}
	return SystemError
}
