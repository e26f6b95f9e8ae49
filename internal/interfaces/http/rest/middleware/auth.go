package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"lens-backend/internal/domain"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// SessionResolver turns an access token into a session.
type SessionResolver interface {
	Current(ctx context.Context, accessToken string) (domain.Session, error)
}

// Limit is a per-minute budget enforced by Limiter. A zero Limit allows
// everything.
type Limit struct {
	Limiter   auth.RateLimiter
	PerMinute int
}

func (l Limit) allow(ctx context.Context, key string) error {
	if l.Limiter == nil {
		return nil
	}
	if allowed, _ := l.Limiter.Allow(ctx, key); !allowed {
		return apperrors.NewRateLimitError(l.PerMinute, "minute")
	}
	return nil
}

// Authenticate requires a bearer token that resolves to a signed-in
// identity and puts the caller into the request context. The user limit is
// checked once the caller is known.
func Authenticate(sessions SessionResolver, userLimit Limit, errs *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				errs.Handle(w, r, apperrors.NewAuthFailedError("missing or malformed authorization header", auth.ErrMissingToken))
				return
			}

			sess, err := sessions.Current(r.Context(), token)
			if err != nil {
				errs.Handle(w, r, err)
				return
			}
			id, signedIn := sess.Identity()
			if !signedIn {
				errs.Handle(w, r, apperrors.NewAuthFailedError("sign in required", nil))
				return
			}

			if err := userLimit.allow(r.Context(), id.ID); err != nil {
				errs.Handle(w, r, err)
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID:      id.ID,
				Email:       id.Email,
				DisplayName: id.DisplayName,
				IsAnonymous: id.IsAnonymous,
				AccessToken: token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitIP rejects clients over their per-address budget.
func RateLimitIP(ipLimit Limit, errs *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ipLimit.allow(r.Context(), clientIP(r)); err != nil {
				errs.Handle(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// replaced with X-Forwarded-For or X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
