package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrConfigInvalid   ErrorType = "CONFIG_INVALID"
	ErrSinkUnavailable ErrorType = "SINK_UNAVAILABLE"
	ErrInvalidRequest  ErrorType = "INVALID_REQUEST"
	ErrNotFound        ErrorType = "NOT_FOUND"
	ErrSystemPanic     ErrorType = "SYSTEM_PANIC"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the toolkit and its demo API.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func NewConfigInvalid(msg string) *AppError {
	return New(ErrConfigInvalid, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrConfigInvalid, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrSinkUnavailable:
		return http.StatusServiceUnavailable
	case ErrSystemPanic:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
