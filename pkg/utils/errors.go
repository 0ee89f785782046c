package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies errors that reach the HTTP boundary
type ErrorCode int

const (
	CodeInternalError ErrorCode = iota + 1
	CodeInvalidParam
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeUpstreamError
	CodeRateLimit
)

var codeStatus = map[ErrorCode]int{
	CodeInternalError: http.StatusInternalServerError,
	CodeInvalidParam:  http.StatusBadRequest,
	CodeUnauthorized:  http.StatusUnauthorized,
	CodeForbidden:     http.StatusForbidden,
	CodeNotFound:      http.StatusNotFound,
	CodeUpstreamError: http.StatusInternalServerError,
	CodeRateLimit:     http.StatusTooManyRequests,
}

// AppError application error structure
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code to a status, defaulting to 500.
func (e *AppError) HTTPStatus() int {
	if status, ok := codeStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewError create new application error
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// WrapError wrap error
func WrapError(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// AsAppError unwraps err to an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return WrapError(err, CodeInternalError, "Internal server error")
}
