// Package profile serves user profiles through a read-through cache.
package profile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/media"
	"lens-backend/internal/observability"
	"lens-backend/internal/repository"
	"lens-backend/internal/session"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/utils"
)

// AvatarUploader stores a profile picture and returns its public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, ownerID string, f media.File) (string, error)
}

// Service is the profile store.
type Service struct {
	repo    repository.ProfileRepository
	avatars AvatarUploader
	cache   *Cache
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewService creates a Service caching profiles for ttl. metrics may be nil.
func NewService(repo repository.ProfileRepository, avatars AvatarUploader, ttl time.Duration, logger *zap.Logger, metrics *observability.Collector) *Service {
	return &Service{
		repo:    repo,
		avatars: avatars,
		cache:   NewCache(ttl, time.Minute),
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the profile for id.
func (s *Service) Get(ctx context.Context, id string) (domain.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Profile{}, apperrors.NewValidationError("profile id is required")
	}
	if p, ok := s.cache.Get(id); ok {
		if s.metrics != nil {
			s.metrics.ProfileCacheHits.Inc()
		}
		return p, nil
	}
	if s.metrics != nil {
		s.metrics.ProfileCacheMisses.Inc()
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	s.cache.Set(p)
	return p, nil
}

// Update changes the caller's own profile.
func (s *Service) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Profile{}, apperrors.NewAuthFailedError("sign in to edit your profile", err)
	}
	if caller.UserID != id {
		return domain.Profile{}, apperrors.NewForbiddenError("profiles can only be edited by their owner")
	}
	if update.DisplayName != nil {
		trimmed := strings.TrimSpace(*update.DisplayName)
		update.DisplayName = &trimmed
	}
	if update.Empty() {
		return domain.Profile{}, apperrors.NewValidationError("nothing to update: set display_name or avatar_url")
	}
	if err := utils.ValidateStruct(update); err != nil {
		return domain.Profile{}, apperrors.NewValidationError(err.Error())
	}

	s.cache.Delete(id)
	p, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return domain.Profile{}, err
	}
	s.cache.Set(p)

	s.logger.Info("Profile updated", zap.String("userID", id))
	return p, nil
}

// UploadAvatar stores f and points the caller's profile at it.
func (s *Service) UploadAvatar(ctx context.Context, f media.File) (domain.Profile, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Profile{}, apperrors.NewAuthFailedError("sign in to change your avatar", err)
	}
	url, err := s.avatars.UploadAvatar(ctx, caller.UserID, f)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.Update(ctx, caller.UserID, domain.ProfileUpdate{AvatarURL: &url})
}

// Evict drops id from the cache.
func (s *Service) Evict(id string) {
	s.cache.Delete(id)
}

// HandleAuthChange evicts a user's profile when they sign out.
func (s *Service) HandleAuthChange(c session.StateChange) {
	if c.Event == session.EventSignedOut && c.UserID != "" {
		s.Evict(c.UserID)
		s.logger.Debug("Evicted profile on sign-out", zap.String("userID", c.UserID))
	}
}

// Close stops the cache sweeper.
func (s *Service) Close() {
	s.cache.Close()
}
