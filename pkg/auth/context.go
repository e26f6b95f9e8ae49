package auth

import (
	"context"
	"errors"
	"strings"
)

// UserContext is the caller resolved from a request's bearer token.
type UserContext struct {
	UserID      string
	Email       string
	DisplayName string
	IsAnonymous bool
	AccessToken string
}

type contextKey string

const userContextKey contextKey = "user"

// ErrNoUser is returned when the context carries no caller.
var ErrNoUser = errors.New("user not found in context")

// GetUserFromContext extracts user from context
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrNoUser
	}
	return user, nil
}

// SetUserInContext adds user to context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
