package supabase

import (
	"context"

	"lens-backend/internal/domain"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

const (
	profilesTable  = "profiles"
	profileColumns = "id,display_name,email,avatar_url"
)

type profileRow struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	AvatarURL   *string `json:"avatar_url"`
}

func (r profileRow) toDomain() domain.Profile {
	p := domain.Profile{ID: r.ID}
	if r.DisplayName != nil {
		p.DisplayName = *r.DisplayName
	}
	if r.Email != nil {
		p.Email = *r.Email
	}
	if r.AvatarURL != nil {
		p.AvatarURL = *r.AvatarURL
	}
	return p
}

// ProfileRepository reads and writes the profiles table.
type ProfileRepository struct {
	client *Client
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a ProfileRepository.
func NewProfileRepository(client *Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return domain.Profile{}, classify("get profile", err)
	}
	var rows []profileRow
	_, err = c.From(profilesTable).Select(profileColumns, "", false).Eq("id", id).ExecuteTo(&rows)
	if err != nil {
		return domain.Profile{}, classify("get profile", err)
	}
	if len(rows) == 0 {
		return domain.Profile{}, apperrors.NewNotFoundError("profile")
	}
	return rows[0].toDomain(), nil
}

func (r *ProfileRepository) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Profile{}, apperrors.NewAuthFailedError("no caller identity", err)
	}
	if caller.UserID != id {
		return domain.Profile{}, apperrors.NewForbiddenError("profiles can only be edited by their owner")
	}
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return domain.Profile{}, classify("update profile", err)
	}

	values := map[string]interface{}{}
	if update.DisplayName != nil {
		values["display_name"] = *update.DisplayName
	}
	if update.AvatarURL != nil {
		values["avatar_url"] = *update.AvatarURL
	}

	var rows []profileRow
	_, err = c.From(profilesTable).
		Update(values, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Profile{}, classify("update profile", err)
	}
	if len(rows) == 0 {
		return domain.Profile{}, apperrors.NewNotFoundError("profile")
	}
	return rows[0].toDomain(), nil
}
