package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lens-backend/internal/domain"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// ProfileStore implements repository.ProfileRepository.
type ProfileStore struct {
	pool *pgxpool.Pool
}

var _ repository.ProfileRepository = (*ProfileStore)(nil)

// NewProfileStore creates a ProfileStore.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) Get(ctx context.Context, id string) (domain.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT id::text, display_name, email, avatar_url FROM profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, apperrors.NewNotFoundError("profile")
	}
	if err != nil {
		return domain.Profile{}, classify("get profile", err)
	}
	return p, nil
}

// Update upserts the caller's profile so a first edit also creates it.
func (s *ProfileStore) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Profile{}, apperrors.NewAuthFailedError("no caller identity", err)
	}
	if caller.UserID != id {
		return domain.Profile{}, apperrors.NewForbiddenError("profiles can only be edited by their owner")
	}

	p, err := scanProfile(s.pool.QueryRow(ctx, `INSERT INTO profiles (id, display_name, email, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE($2, profiles.display_name),
			avatar_url = COALESCE($4, profiles.avatar_url)
		RETURNING id::text, display_name, email, avatar_url`,
		id, update.DisplayName, caller.Email, update.AvatarURL))
	if err != nil {
		return domain.Profile{}, classify("update profile", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		p           domain.Profile
		displayName *string
		avatarURL   *string
	)
	if err := row.Scan(&p.ID, &displayName, &p.Email, &avatarURL); err != nil {
		return domain.Profile{}, err
	}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	if avatarURL != nil {
		p.AvatarURL = *avatarURL
	}
	return p, nil
}
