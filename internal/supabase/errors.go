package supabase

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/supabase-community/gotrue-go/types"
	storage "github.com/supabase-community/storage-go"

	apperrors "lens-backend/pkg/errors"
)

// PostgREST renders failures as "(code) message".
var restCode = regexp.MustCompile(`^\(([0-9A-Z]*)\)\s*(.*)$`)

// classify maps a client failure onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.GetAppError(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return apperrors.NewAuthFailedError(op+" rejected", err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return apperrors.NewStoreUnavailableError(op, err)
	}

	msg := err.Error()
	if m := restCode.FindStringSubmatch(msg); m != nil {
		return classifyCode(op, m[1], m[2], err)
	}
	if strings.HasPrefix(msg, "error parsing error response") {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	if status, ok := statusOf(msg); ok {
		switch {
		case status == 401 || status == 400 || status == 422:
			return apperrors.NewAuthFailedError(op+" rejected", err)
		case status == 403:
			return apperrors.NewForbiddenError(op + " not permitted")
		case status == 429:
			return apperrors.NewRateLimitError(0, "provider").WithCause(err)
		case status >= 500:
			return apperrors.NewStoreUnavailableError(op, err)
		}
	}
	return apperrors.NewInternalError(op+" failed", err)
}

func classifyCode(op, code, message string, cause error) error {
	switch {
	case code == "42501":
		return apperrors.NewForbiddenError(op + " not permitted").WithCause(cause)
	case code == "PGRST116":
		return apperrors.NewNotFoundError("memory").WithCause(cause)
	case code == "22P02":
		// Malformed id: no row can match it.
		return apperrors.NewNotFoundError("memory").WithCause(cause)
	case code == "PGRST301" || code == "PGRST302":
		return apperrors.NewAuthFailedError("session rejected by data store", cause)
	case strings.HasPrefix(code, "23") || strings.HasPrefix(code, "22"):
		return apperrors.NewValidationRejectedError(message, cause)
	case strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57") || strings.HasPrefix(code, "53"):
		return apperrors.NewStoreUnavailableError(op, cause)
	case code == "":
		return apperrors.NewStoreUnavailableError(op, cause)
	}
	return apperrors.NewInternalError(op+" failed", cause)
}

// statusOf reads the status the auth client embeds in its errors.
func statusOf(msg string) (int, bool) {
	const prefix = "response status code "
	if !strings.HasPrefix(msg, prefix) {
		return 0, false
	}
	rest := msg[len(prefix):]
	n := 0
	for i := 0; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
		n = n*10 + int(rest[i]-'0')
	}
	return n, n > 0
}

// storageMessage extracts the server's message from a Storage failure.
func storageMessage(err error) string {
	var se *storage.StorageError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
