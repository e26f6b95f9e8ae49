package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lens-backend/internal/composer"
	"lens-backend/internal/domain"
	"lens-backend/internal/media"
	apperrors "lens-backend/pkg/errors"
)

// Composer runs the memory workflows.
type Composer interface {
	Post(ctx context.Context, in composer.PostInput) (domain.Memory, error)
	Edit(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error)
	Delete(ctx context.Context, id string) error
}

// UploadLimits bounds multipart bodies.
type UploadLimits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// maxBody is the largest multipart body accepted for n files.
func (l UploadLimits) maxBody(n int) int64 {
	return int64(n)*l.MaxFileBytes + 1<<20
}

// MemoryHandler posts, edits and deletes memories.
type MemoryHandler struct {
	base
	composer Composer
	limits   UploadLimits
}

// NewMemoryHandler creates a MemoryHandler.
func NewMemoryHandler(c Composer, limits UploadLimits, logger *zap.Logger, errs *apperrors.ErrorHandler) *MemoryHandler {
	return &MemoryHandler{base: base{logger: logger, errs: errs}, composer: c, limits: limits}
}

// CreateMemory handles POST /memories (multipart: text, category, location,
// optional created_at in RFC 3339, files).
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.maxBody(h.limits.MaxFiles))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("invalid multipart body: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := composer.PostInput{
		Text:     r.FormValue("text"),
		Category: r.FormValue("category"),
		Location: r.FormValue("location"),
	}
	if raw := strings.TrimSpace(r.FormValue("created_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.errs.Handle(w, r, apperrors.NewValidationError("created_at must be RFC 3339"))
			return
		}
		in.CreatedAt = &t
	}

	files, err := readFiles(r.MultipartForm.File["files"], h.limits.MaxFileBytes)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	in.Files = files

	m, err := h.composer.Post(r.Context(), in)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, viewOf(m))
}

// UpdateMemory handles PATCH /memories/{memoryID}
func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	var patch domain.MemoryPatch
	if err := h.decode(r, &patch); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	m, err := h.composer.Edit(r.Context(), chi.URLParam(r, "memoryID"), patch)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, viewOf(m))
}

// DeleteMemory handles DELETE /memories/{memoryID}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.composer.Delete(r.Context(), chi.URLParam(r, "memoryID")); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readFiles(headers []*multipart.FileHeader, maxBytes int64) ([]media.File, error) {
	out := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readFile(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader, maxBytes int64) (media.File, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return media.File{}, apperrors.NewValidationError(
			fmt.Sprintf("%s is larger than %d bytes", fh.Filename, maxBytes))
	}
	src, err := fh.Open()
	if err != nil {
		return media.File{}, apperrors.NewValidationError("unreadable file " + fh.Filename)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return media.File{}, apperrors.NewValidationError("unreadable file " + fh.Filename)
	}
	return media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
