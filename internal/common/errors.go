package common

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindAuthentication ErrorKind = "AuthenticationError"
	KindValidation     ErrorKind = "ValidationError"
	KindNotFound       ErrorKind = "NotFoundError"
	KindPersistence    ErrorKind = "PersistenceError"
	KindDelivery       ErrorKind = "DeliveryFailure"
	KindConflict       ErrorKind = "Conflict"
	KindInternal       ErrorKind = "InternalError"
)

// AppError carries a kind for routing, a message safe to show the caller,
// and the underlying cause for logs.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func AuthenticationError(err error, format string, args ...interface{}) *AppError {
	return newError(KindAuthentication, err, format, args...)
}

func ValidationError(format string, args ...interface{}) *AppError {
	return newError(KindValidation, nil, format, args...)
}

func NotFoundError(format string, args ...interface{}) *AppError {
	return newError(KindNotFound, nil, format, args...)
}

func PersistenceError(err error, format string, args ...interface{}) *AppError {
	return newError(KindPersistence, err, format, args...)
}

func DeliveryFailure(err error, format string, args ...interface{}) *AppError {
	return newError(KindDelivery, err, format, args...)
}

func ConflictError(format string, args ...interface{}) *AppError {
	return newError(KindConflict, nil, format, args...)
}

// KindOf returns the kind of the first AppError in the chain, or
// KindInternal for anything unclassified.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether resubmitting the same request may succeed.
func Retryable(err error) bool {
	return IsKind(err, KindPersistence)
}

// PublicMessage is the text the originator of a failed request sees.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorPayloadFor builds the structured error event sent back to a client.
func ErrorPayloadFor(err error) ErrorPayload {
	return ErrorPayload{
		Reason:    PublicMessage(err),
		Code:      string(KindOf(err)),
		Retryable: Retryable(err),
	}
}
