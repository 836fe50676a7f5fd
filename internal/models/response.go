package models

import (
	"encoding/json"
	"fmt"
)

// Error codes shared by the envelope, AppError and the HTTP layer.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeLoading         = "loading"
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidPayload  = "invalid_payload"
	CodeNotFound        = "not_found"
	CodeBackend         = "backend_error"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

// ErrNotAuthenticated is returned by calls that need a session when there is none.
var ErrNotAuthenticated = NewAppError(CodeUnauthenticated, "Não autenticado", nil)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// APIResponse is either {ok: true, data} or {ok: false, error}.
type APIResponse[T any] struct {
	OK    bool       `json:"ok"`
	Data  T          `json:"data"`
	Error *ErrorBody `json:"error,omitempty"`
}

func (r APIResponse[T]) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			OK   bool `json:"ok"`
			Data T    `json:"data"`
		}{true, r.Data})
	}
	return json.Marshal(struct {
		OK    bool       `json:"ok"`
		Error *ErrorBody `json:"error"`
	}{false, r.Error})
}

// Success wraps data in a successful envelope.
func Success[T any](data T) APIResponse[T] {
	return APIResponse[T]{OK: true, Data: data}
}

// Failure builds a failed envelope. details may be nil.
func Failure(code, message string, details any) APIResponse[any] {
	return APIResponse[any]{
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	}
}

// FailureFrom turns an AppError into a failed envelope.
func FailureFrom(err *AppError) APIResponse[any] {
	return Failure(err.Code, err.Message, err.Details)
}

// AppError is an error carrying a machine readable code.
type AppError struct {
	Code    string
	Message string
	Details any
}

func NewAppError(code, message string, details any) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another AppError by code, so errors.Is works against the sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
