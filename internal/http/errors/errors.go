// Package errors defines the HTTP error envelope shared by all
// controllers.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError is the standard application error. HTTPStatus and Err are for
// the server side only and never serialized.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithDetail returns a copy so the predefined errors stay immutable.
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithCause returns a copy carrying the original error for logs.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// FromError converts any error into an AppError, defaulting to a generic
// internal error that hides the cause from the client.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

var (
	ErrBadRequest = &AppError{
		Code: "BAD_REQUEST", Message: "Invalid or missing parameters.",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrUnauthorized = &AppError{
		Code: "UNAUTHORIZED", Message: "Authentication required.",
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrForbidden = &AppError{
		Code: "FORBIDDEN", Message: "Not allowed.",
		HTTPStatus: http.StatusForbidden,
	}
	ErrNotFound = &AppError{
		Code: "NOT_FOUND", Message: "Resource not found.",
		HTTPStatus: http.StatusNotFound,
	}
	ErrMethodNotAllowed = &AppError{
		Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
	ErrInternal = &AppError{
		Code: "INTERNAL_ERROR", Message: "Internal server error.",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// WriteError writes the error envelope with the request id echoed back.
func WriteError(w http.ResponseWriter, e *AppError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(struct {
		*AppError
		RequestID string `json:"request_id,omitempty"`
	}{e, w.Header().Get("X-Request-ID")})
}

// WriteJSON writes a plain JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
