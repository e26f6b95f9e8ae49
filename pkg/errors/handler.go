package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	// Retryable is set when repeating the same action may succeed later.
	Retryable bool   `json:"retryable,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

// ErrorHandler writes AppErrors as JSON and logs them once per request.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler returns a handler. With debug set, stack traces and the
// text of unclassified errors are included in responses.
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes err to w. Errors outside the taxonomy become INTERNAL with a
// generic message.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	appErr := GetAppError(err)
	if appErr == nil {
		appErr = &AppError{
			Type:       ErrorTypeInternal,
			Message:    "an internal error occurred",
			Cause:      err,
			HTTPStatus: http.StatusInternalServerError,
		}
		if h.debug {
			appErr.Message = err.Error()
		}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := ErrorResponse{
		Error:     true,
		Type:      string(appErr.Type),
		Message:   appErr.Message,
		Code:      appErr.Code,
		Details:   appErr.Details,
		RequestID: middleware.GetReqID(r.Context()),
		Retryable: appErr.Type == ErrorTypeStoreUnavailable || appErr.Type == ErrorTypeRateLimit,
	}
	if h.debug {
		body.Stack = appErr.StackTrace
	}

	h.log(r, status, appErr, body.RequestID)
	h.write(w, status, body)
}

func (h *ErrorHandler) log(r *http.Request, status int, e *AppError, requestID string) {
	level := zapcore.InfoLevel
	switch {
	case status >= http.StatusInternalServerError:
		level = zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		level = zapcore.WarnLevel
	}

	ce := h.logger.Check(level, "Request failed")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("message", e.Message),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("requestID", requestID),
	}
	if e.Code != "" {
		fields = append(fields, zap.String("code", e.Code))
	}
	if e.Cause != nil {
		fields = append(fields, zap.Error(e.Cause))
	}
	ce.Write(fields...)
}

func (h *ErrorHandler) write(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Client went away before error body was written", zap.Error(err))
	}
}

// Middleware turns handler panics into INTERNAL responses. http.ErrAbortHandler
// is re-raised so net/http can abort the connection.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec), nil))
		}()
		next.ServeHTTP(w, r)
	})
}
