package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
)

// ProfileReader looks up display data for a user.
type ProfileReader interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
}

// AuthorEnricher fills in the author snapshot of live inserts, which
// arrive as bare rows without the joined profile.
type AuthorEnricher struct {
	MemoryRepository
	profiles ProfileReader
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAuthorEnricher wraps inner. Each lookup is bounded by timeout.
func NewAuthorEnricher(inner MemoryRepository, profiles ProfileReader, timeout time.Duration, logger *zap.Logger) *AuthorEnricher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AuthorEnricher{MemoryRepository: inner, profiles: profiles, timeout: timeout, logger: logger}
}

func (r *AuthorEnricher) SubscribeInserts(ctx context.Context, fn InsertHandler) (Subscription, error) {
	return r.MemoryRepository.SubscribeInserts(ctx, func(m domain.Memory) {
		if m.Author == nil && m.OwnerID != "" {
			lookupCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
			p, err := r.profiles.Get(lookupCtx, m.OwnerID)
			cancel()
			if err != nil {
				r.logger.Debug("Author lookup failed", zap.String("userID", m.OwnerID), zap.Error(err))
			} else if p.DisplayName != "" || p.Email != "" {
				m.Author = &domain.AuthorSnapshot{DisplayName: p.DisplayName, Email: p.Email}
			}
		}
		fn(m)
	})
}
