package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Store errors
	ErrorTypeStoreUnavailable   ErrorType = "STORE_UNAVAILABLE"
	ErrorTypeValidationRejected ErrorType = "VALIDATION_REJECTED"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeForbidden          ErrorType = "FORBIDDEN"

	// Workflow errors
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeUploadFailed ErrorType = "UPLOAD_FAILED"
	ErrorTypeAuthFailed   ErrorType = "AUTH_FAILED"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"

	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

func newError(t ErrorType, status int, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// NewStoreUnavailableError reports that the backing store could not be reached.
func NewStoreUnavailableError(operation string, cause error) *AppError {
	return newError(ErrorTypeStoreUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("store unavailable during %s", operation)).WithCause(cause)
}

// NewValidationRejectedError reports a payload refused by store-side constraints.
func NewValidationRejectedError(message string, cause error) *AppError {
	return newError(ErrorTypeValidationRejected, http.StatusUnprocessableEntity, message).WithCause(cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return newError(ErrorTypeForbidden, http.StatusForbidden, message)
}

// NewValidationError creates a validation error for input checked before any store call.
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewUploadFailedError reports an object store or conversion failure.
func NewUploadFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeUploadFailed, http.StatusBadGateway, message).WithCause(cause)
}

// NewAuthFailedError reports bad credentials, an unverified email or an invalid token.
func NewAuthFailedError(message string, cause error) *AppError {
	if message == "" {
		message = "authentication failed"
	}
	return newError(ErrorTypeAuthFailed, http.StatusUnauthorized, message).WithCause(cause)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return newError(ErrorTypeRateLimit, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window))
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message).WithCause(cause)
}

// GetAppError extracts the outermost AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether any AppError in err's chain has type t.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsStoreUnavailable reports a transient store failure.
func IsStoreUnavailable(err error) bool { return IsType(err, ErrorTypeStoreUnavailable) }

// IsNotFound reports a missing row.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsForbidden reports an ownership violation.
func IsForbidden(err error) bool { return IsType(err, ErrorTypeForbidden) }

// IsUploadFailed reports an upload failure.
func IsUploadFailed(err error) bool { return IsType(err, ErrorTypeUploadFailed) }

// IsAuthFailed reports an authentication failure.
func IsAuthFailed(err error) bool { return IsType(err, ErrorTypeAuthFailed) }
