// Package media stages user attachments in the object store.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lens-backend/internal/domain"
	"lens-backend/internal/observability"
	apperrors "lens-backend/pkg/errors"
)

// File is one user-selected attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ObjectStore is the durable blob store behind attachments and avatars.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, body io.Reader, contentType string) error
	PublicURL(objectPath string) string
}

// Config bounds uploads.
type Config struct {
	MaxFiles       int
	MaxFileBytes   int64
	MaxConcurrency int
}

// Uploader converts and uploads attachments.
type Uploader struct {
	store     ObjectStore
	converter Converter
	cfg       Config
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewUploader creates an uploader. metrics may be nil.
func NewUploader(store ObjectStore, converter Converter, cfg Config, logger *zap.Logger, metrics *observability.Collector) *Uploader {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Uploader{store: store, converter: converter, cfg: cfg, logger: logger, metrics: metrics}
}

// Limits returns the configured bounds.
func (u *Uploader) Limits() Config {
	return u.cfg
}

// Upload stores files under ownerID and returns their media descriptors in
// input order. If any upload fails nothing is returned; objects that did
// make it stay behind as orphans in the bucket.
func (u *Uploader) Upload(ctx context.Context, ownerID string, files []File) ([]domain.Media, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := u.checkLimits(files); err != nil {
		return nil, err
	}

	out := make([]domain.Media, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.MaxConcurrency)

	for i, f := range files {
		g.Go(func() error {
			f = u.normalize(f)
			objectPath := ownerID + "/" + randomName(f)
			if err := u.store.Upload(gctx, objectPath, bytes.NewReader(f.Data), contentTypeOf(f)); err != nil {
				return fmt.Errorf("attachment %d (%s): %w", i+1, f.Name, err)
			}
			kind := domain.MediaKindFromMIME(contentTypeOf(f))
			out[i] = domain.Media{URL: u.store.PublicURL(objectPath), Kind: kind}
			if u.metrics != nil {
				u.metrics.Uploads.WithLabelValues(string(kind)).Inc()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if u.metrics != nil {
			u.metrics.UploadFailures.Inc()
		}
		u.logger.Warn("Attachment upload failed, aborting post",
			zap.String("userID", ownerID),
			zap.Int("files", len(files)),
			zap.Error(err),
		)
		return nil, apperrors.NewUploadFailedError("failed to upload attachments", err)
	}
	return out, nil
}

// UploadAvatar stores a profile picture under avatars/<ownerID>/ and returns
// its public URL.
func (u *Uploader) UploadAvatar(ctx context.Context, ownerID string, f File) (string, error) {
	if err := u.checkLimits([]File{f}); err != nil {
		return "", err
	}
	if !IsLegacyImage(f) && !strings.HasPrefix(strings.ToLower(contentTypeOf(f)), "image/") {
		return "", apperrors.NewValidationError("avatar must be an image")
	}

	f = u.normalize(f)
	objectPath := "avatars/" + ownerID + "/" + randomName(f)
	if err := u.store.Upload(ctx, objectPath, bytes.NewReader(f.Data), contentTypeOf(f)); err != nil {
		if u.metrics != nil {
			u.metrics.UploadFailures.Inc()
		}
		return "", apperrors.NewUploadFailedError("failed to upload avatar", err)
	}
	if u.metrics != nil {
		u.metrics.Uploads.WithLabelValues("avatar").Inc()
	}
	return u.store.PublicURL(objectPath), nil
}

func (u *Uploader) checkLimits(files []File) error {
	if u.cfg.MaxFiles > 0 && len(files) > u.cfg.MaxFiles {
		return apperrors.NewValidationError(fmt.Sprintf("at most %d attachments per memory", u.cfg.MaxFiles))
	}
	for i, f := range files {
		if len(f.Data) == 0 {
			return apperrors.NewValidationError(fmt.Sprintf("attachment %d is empty", i+1))
		}
		if u.cfg.MaxFileBytes > 0 && int64(len(f.Data)) > u.cfg.MaxFileBytes {
			return apperrors.NewValidationError(fmt.Sprintf("attachment %d exceeds %d bytes", i+1, u.cfg.MaxFileBytes))
		}
	}
	return nil
}

// normalize converts legacy photos, falling back to the original on failure.
func (u *Uploader) normalize(f File) File {
	if u.converter == nil || !IsLegacyImage(f) {
		return f
	}
	converted, err := u.converter.Convert(f)
	if err != nil {
		u.logger.Warn("HEIC conversion failed, uploading original", zap.String("file", f.Name), zap.Error(err))
		u.countConversion("failed")
		return f
	}
	u.countConversion("converted")
	return converted
}

func (u *Uploader) countConversion(result string) {
	if u.metrics != nil {
		u.metrics.HEICConversions.WithLabelValues(result).Inc()
	}
}

// randomName keeps the original extension behind a random stem.
func randomName(f File) string {
	ext := strings.ToLower(path.Ext(f.Name))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentTypeOf(f)); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return uuid.NewString() + ext
}

func contentTypeOf(f File) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(f.Name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
