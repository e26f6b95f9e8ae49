package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/session"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// Sessions is the part of the session manager the auth endpoints drive.
type Sessions interface {
	Current(ctx context.Context, accessToken string) (domain.Session, error)
	SignInWithPassword(ctx context.Context, creds session.Credentials) (domain.Authenticated, error)
	SignUp(ctx context.Context, reg session.Registration) (session.SignUpResult, error)
	SignInAnonymously(ctx context.Context) (domain.Authenticated, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Authenticated, error)
	SignOut(ctx context.Context, accessToken string) error
}

// AuthHandler exposes sign-in, sign-up and session lookups.
type AuthHandler struct {
	base
	sessions Sessions
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions Sessions, logger *zap.Logger, errs *apperrors.ErrorHandler) *AuthHandler {
	return &AuthHandler{base: base{logger: logger, errs: errs}, sessions: sessions}
}

// SessionResponse reports the caller's current session.
type SessionResponse struct {
	SignedIn bool                  `json:"signed_in"`
	User     *domain.Identity      `json:"user,omitempty"`
	Session  *domain.Authenticated `json:"session,omitempty"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if err := h.decode(r, &creds); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	s, err := h.sessions.SignInWithPassword(r.Context(), creds)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, s)
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var reg session.Registration
	if err := h.decode(r, &reg); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	res, err := h.sessions.SignUp(r.Context(), reg)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.PendingVerification {
		status = http.StatusAccepted
	}
	h.respondJSON(w, status, res)
}

// Anonymous handles POST /auth/anonymous
func (h *AuthHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.SignInAnonymously(r.Context())
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, s)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := h.decode(r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	s, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, s)
}

// SignOut handles POST /auth/signout. Without a token there is nothing to
// end and the call still succeeds.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	if err := h.sessions.SignOut(r.Context(), token); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	s, err := h.sessions.Current(r.Context(), token)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	resp := SessionResponse{}
	if id, ok := s.Identity(); ok {
		resp.SignedIn = true
		resp.User = &id
		if a, ok := s.(domain.Authenticated); ok {
			resp.Session = &a
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}
