// Package session resolves and transitions user sessions against the
// identity provider and broadcasts every transition.
package session

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/observer"
	"lens-backend/pkg/utils"
)

// IdentityProvider is the external auth service.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Authenticated, error)
	SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error)
	SignInAnonymously(ctx context.Context) (domain.Authenticated, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Authenticated, error)
	SignOut(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (domain.Identity, error)
}

// SignUpResult is the outcome of a registration. When the provider requires
// email confirmation Session is nil and PendingVerification is set.
type SignUpResult struct {
	User                domain.Identity       `json:"user"`
	Session             *domain.Authenticated `json:"session,omitempty"`
	PendingVerification bool                  `json:"pending_verification"`
}

// Event names an auth state transition.
type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedUp       Event = "signed_up"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
)

// StateChange is delivered to OnAuthStateChange listeners.
type StateChange struct {
	Event   Event
	UserID  string
	Session domain.Session
}

// Credentials are an email/password pair.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Registration adds the display name chosen at sign-up.
type Registration struct {
	Credentials
	DisplayName string `json:"display_name" validate:"omitempty,max=80"`
}

// Manager owns session transitions.
type Manager struct {
	provider  IdentityProvider
	verifier  *auth.JWTValidator
	listeners *observer.Registry[StateChange]
	logger    *zap.Logger
}

// NewManager creates a Manager. verifier may be nil, in which case every
// token is checked with the provider.
func NewManager(provider IdentityProvider, verifier *auth.JWTValidator, logger *zap.Logger) *Manager {
	return &Manager{
		provider:  provider,
		verifier:  verifier,
		listeners: observer.NewRegistry[StateChange](),
		logger:    logger,
	}
}

// OnAuthStateChange registers fn for every transition.
func (m *Manager) OnAuthStateChange(fn func(StateChange)) observer.Subscription {
	return m.listeners.Subscribe(fn)
}

// Current resolves the session an access token stands for. An empty token
// is the signed-out state, not an error.
func (m *Manager) Current(ctx context.Context, accessToken string) (domain.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domain.Anonymous{}, nil
	}

	if m.verifier != nil {
		claims, err := m.verifier.ValidateToken(accessToken)
		if err != nil {
			return nil, apperrors.NewAuthFailedError("invalid or expired session", err)
		}
		return domain.Authenticated{
			User: domain.Identity{
				ID:          claims.UserID(),
				Email:       claims.Email,
				DisplayName: claims.DisplayName(),
				IsAnonymous: claims.IsAnonymous,
			},
			AccessToken: accessToken,
			ExpiresAt:   claims.ExpiresAtTime(),
		}, nil
	}

	user, err := m.provider.User(ctx, accessToken)
	if err != nil {
		return nil, authFailed("invalid or expired session", err)
	}
	return domain.Authenticated{User: user, AccessToken: accessToken}, nil
}

// SignInWithPassword exchanges credentials for a session.
func (m *Manager) SignInWithPassword(ctx context.Context, creds Credentials) (domain.Authenticated, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := utils.ValidateStruct(creds); err != nil {
		return domain.Authenticated{}, apperrors.NewValidationError(err.Error())
	}

	s, err := m.provider.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		m.logger.Info("Sign-in rejected", zap.String("email", creds.Email), zap.Error(err))
		return domain.Authenticated{}, authFailed("invalid email or password", err)
	}
	m.emit(EventSignedIn, s)
	return s, nil
}

// SignUp registers a new account. Most projects require the user to confirm
// their email first, in which case no session is returned yet.
func (m *Manager) SignUp(ctx context.Context, reg Registration) (SignUpResult, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.DisplayName = strings.TrimSpace(reg.DisplayName)
	if err := utils.ValidateStruct(reg); err != nil {
		return SignUpResult{}, apperrors.NewValidationError(err.Error())
	}

	res, err := m.provider.SignUp(ctx, reg.Email, reg.Password, reg.DisplayName)
	if err != nil {
		return SignUpResult{}, authFailed("sign-up failed", err)
	}

	change := StateChange{Event: EventSignedUp, UserID: res.User.ID, Session: domain.Anonymous{}}
	if res.Session != nil {
		change.Session = *res.Session
	}
	m.listeners.Notify(change)

	m.logger.Info("User signed up",
		zap.String("userID", res.User.ID),
		zap.Bool("pendingVerification", res.PendingVerification),
	)
	return res, nil
}

// SignInAnonymously creates a guest session.
func (m *Manager) SignInAnonymously(ctx context.Context) (domain.Authenticated, error) {
	s, err := m.provider.SignInAnonymously(ctx)
	if err != nil {
		return domain.Authenticated{}, authFailed("anonymous sign-in failed", err)
	}
	s.User.IsAnonymous = true
	m.emit(EventSignedIn, s)
	return s, nil
}

// Refresh trades a refresh token for a new session.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (domain.Authenticated, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.Authenticated{}, apperrors.NewValidationError("refresh_token is required")
	}
	s, err := m.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return domain.Authenticated{}, authFailed("session refresh failed", err)
	}
	m.emit(EventTokenRefreshed, s)
	return s, nil
}

// SignOut revokes the session behind accessToken.
func (m *Manager) SignOut(ctx context.Context, accessToken string) error {
	current, err := m.Current(ctx, accessToken)
	if err != nil {
		return err
	}
	id, ok := current.Identity()
	if !ok {
		return nil
	}

	if err := m.provider.SignOut(ctx, accessToken); err != nil {
		return authFailed("sign-out failed", err)
	}
	m.listeners.Notify(StateChange{Event: EventSignedOut, UserID: id.ID, Session: domain.Anonymous{}})
	m.logger.Info("User signed out", zap.String("userID", id.ID))
	return nil
}

func (m *Manager) emit(e Event, s domain.Authenticated) {
	m.listeners.Notify(StateChange{Event: e, UserID: s.User.ID, Session: s})
}

// authFailed keeps store outages distinguishable from rejected credentials.
func authFailed(msg string, err error) error {
	if apperrors.IsStoreUnavailable(err) || apperrors.IsAuthFailed(err) {
		return err
	}
	return apperrors.NewAuthFailedError(msg, err)
}

// Expiry converts a provider's unix expiry into a time.
func Expiry(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
