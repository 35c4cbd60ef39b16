// Package errors provides the structured application error used at the API edge.
//
// Domain packages return their own typed errors; handlers translate them into
// an AppError carrying a machine-readable code, an HTTP status and optional
// field-level details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned by stores.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// AppError is the API form of a failure.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	// Params carries structured context, e.g. the panels a save committed.
	Params map[string]interface{} `json:"params,omitempty"`
	// FieldErrors lists per-field validation failures as "panel.field".
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	// Err is the cause. It is logged, never rendered.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status, defaulting to 500.
func (e *AppError) Status() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// Body is the JSON document rendered for the error.
func (e *AppError) Body() map[string]interface{} {
	body := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Params) > 0 {
		body["params"] = e.Params
	}
	if len(e.FieldErrors) > 0 {
		body["field_errors"] = e.FieldErrors
	}
	return body
}

// New creates an AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// WithCause records err as the underlying cause.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	e.Err = err
	return e
}

// WithParams attaches structured parameters. Empty params are ignored.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors. An empty list is ignored.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

func Unauthorized(code, message string) *AppError {
	return New(code, message, http.StatusUnauthorized)
}

func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// Gone reports a resource that existed but was closed.
func Gone(code, message string) *AppError {
	return New(code, message, http.StatusGone)
}

func TooLarge(code, message string) *AppError {
	return New(code, message, http.StatusRequestEntityTooLarge)
}

func UnsupportedMedia(code, message string) *AppError {
	return New(code, message, http.StatusUnsupportedMediaType)
}

func Unprocessable(code, message string) *AppError {
	return New(code, message, http.StatusUnprocessableEntity)
}

func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// IsAppError reports whether err wraps an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
