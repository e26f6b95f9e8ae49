package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/media"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// Profiles is the profile store as seen by the endpoints.
type Profiles interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error)
	UploadAvatar(ctx context.Context, f media.File) (domain.Profile, error)
}

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	base
	profiles     Profiles
	maxFileBytes int64
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles Profiles, maxFileBytes int64, logger *zap.Logger, errs *apperrors.ErrorHandler) *ProfileHandler {
	return &ProfileHandler{base: base{logger: logger, errs: errs}, profiles: profiles, maxFileBytes: maxFileBytes}
}

// GetProfile handles GET /profile. A user who never saved a profile gets
// one built from their identity.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewAuthFailedError("sign in required", err))
		return
	}
	p, err := h.profiles.Get(r.Context(), caller.UserID)
	if apperrors.IsNotFound(err) {
		p, err = domain.Profile{ID: caller.UserID, Email: caller.Email, DisplayName: caller.DisplayName}, nil
	}
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PATCH /profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewAuthFailedError("sign in required", err))
		return
	}
	var update domain.ProfileUpdate
	if err := h.decode(r, &update); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), caller.UserID, update)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// UploadAvatar handles POST /profile/avatar (multipart field "file").
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("invalid multipart body: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) != 1 {
		h.errs.Handle(w, r, apperrors.NewValidationError("exactly one file is required"))
		return
	}
	f, err := readFile(headers[0], h.maxFileBytes)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	p, err := h.profiles.UploadAvatar(r.Context(), f)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}
