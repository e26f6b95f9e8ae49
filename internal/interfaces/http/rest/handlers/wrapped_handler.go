package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/wrapped"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// WrappedHandler renders the caller's Wrapped from the synchronized feed.
type WrappedHandler struct {
	base
	feed     FeedReader
	profiles Profiles
	now      func() time.Time
}

// NewWrappedHandler creates a WrappedHandler.
func NewWrappedHandler(feed FeedReader, profiles Profiles, logger *zap.Logger, errs *apperrors.ErrorHandler) *WrappedHandler {
	return &WrappedHandler{base: base{logger: logger, errs: errs}, feed: feed, profiles: profiles, now: time.Now}
}

// WrappedResponse is the body of GET /wrapped.
type WrappedResponse struct {
	Stats wrapped.Stats `json:"stats"`
	Story wrapped.Story `json:"story"`
}

// GetWrapped handles GET /wrapped
func (h *WrappedHandler) GetWrapped(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewAuthFailedError("sign in required", err))
		return
	}

	all := h.feed.Snapshot()
	stats := wrapped.Aggregate(wrapped.Mine(all, caller.UserID), all)

	name := caller.DisplayName
	if p, err := h.profiles.Get(r.Context(), caller.UserID); err == nil && p.DisplayName != "" {
		name = p.DisplayName
	} else if err != nil && !apperrors.IsNotFound(err) {
		h.logger.Debug("Wrapped without profile name", zap.String("userID", caller.UserID), zap.Error(err))
	}

	h.respondJSON(w, http.StatusOK, WrappedResponse{
		Stats: stats,
		Story: wrapped.BuildStory(stats, name, h.now().Year()),
	})
}
