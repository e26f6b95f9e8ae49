package supabase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/realtime"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

const (
	memoriesTable = "memories"
	feedColumns   = "*, profiles(display_name,email)"
)

// ChangeSource delivers row changes; *realtime.Client implements it.
type ChangeSource interface {
	Subscribe(f realtime.Filter, fn func(realtime.Change)) repository.Subscription
}

type authorEmbed struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
}

type memoryRow struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Category   string       `json:"category"`
	Location   string       `json:"location"`
	CreatedAt  time.Time    `json:"created_at"`
	UserID     string       `json:"user_id"`
	MediaURLs  []string     `json:"media_urls"`
	MediaTypes []string     `json:"media_types"`
	ImageURL   *string      `json:"image_url"`
	Profiles   *authorEmbed `json:"profiles,omitempty"`
}

type insertRow struct {
	Text       string    `json:"text"`
	Category   string    `json:"category"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
	UserID     string    `json:"user_id"`
	MediaURLs  []string  `json:"media_urls"`
	MediaTypes []string  `json:"media_types"`
}

// toDomain converts a stored row. Rows written before multi-attachment
// support carry a single image_url instead of media_urls.
func (r memoryRow) toDomain() domain.Memory {
	m := domain.Memory{
		ID:        r.ID,
		Text:      r.Text,
		Category:  domain.Category(r.Category),
		Location:  r.Location,
		CreatedAt: r.CreatedAt,
		OwnerID:   r.UserID,
		Media:     []domain.Media{},
	}
	for i, u := range r.MediaURLs {
		kind := domain.MediaImage
		if i < len(r.MediaTypes) {
			kind = domain.ParseMediaKind(r.MediaTypes[i])
		}
		m.Media = append(m.Media, domain.Media{URL: u, Kind: kind})
	}
	if len(m.Media) == 0 && r.ImageURL != nil && *r.ImageURL != "" {
		m.Media = append(m.Media, domain.Media{URL: *r.ImageURL, Kind: domain.MediaImage})
	}
	if r.Profiles != nil {
		a := &domain.AuthorSnapshot{}
		if r.Profiles.DisplayName != nil {
			a.DisplayName = *r.Profiles.DisplayName
		}
		if r.Profiles.Email != nil {
			a.Email = *r.Profiles.Email
		}
		m.Author = a
	}
	return m
}

func fromDraft(d domain.MemoryDraft) insertRow {
	row := insertRow{
		Text:       d.Text,
		Category:   string(d.Category),
		Location:   d.Location,
		CreatedAt:  d.CreatedAt.UTC(),
		UserID:     d.OwnerID,
		MediaURLs:  make([]string, 0, len(d.Media)),
		MediaTypes: make([]string, 0, len(d.Media)),
	}
	for _, m := range d.Media {
		row.MediaURLs = append(row.MediaURLs, m.URL)
		row.MediaTypes = append(row.MediaTypes, string(m.Kind))
	}
	return row
}

// MemoryRepository reads and writes the memories table through PostgREST
// and observes inserts through Realtime.
type MemoryRepository struct {
	client  *Client
	changes ChangeSource
	logger  *zap.Logger
}

var _ repository.MemoryRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a MemoryRepository.
func NewMemoryRepository(client *Client, changes ChangeSource, logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{client: client, changes: changes, logger: logger}
}

func (r *MemoryRepository) FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error) {
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return nil, classify("fetch memories", err)
	}

	var rows []memoryRow
	_, err = c.From(memoriesTable).
		Select(feedColumns, "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify("fetch memories", err)
	}

	out := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Memory{}, apperrors.NewAuthFailedError("no caller identity", err)
	}
	if caller.UserID != draft.OwnerID {
		return domain.Memory{}, apperrors.NewForbiddenError("memories can only be created for yourself")
	}
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return domain.Memory{}, classify("insert memory", err)
	}

	var rows []memoryRow
	_, err = c.From(memoriesTable).
		Insert(fromDraft(draft), false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Memory{}, classify("insert memory", err)
	}
	if len(rows) == 0 {
		return domain.Memory{}, apperrors.NewInternalError("insert returned no row", nil)
	}
	return rows[0].toDomain(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Memory{}, apperrors.NewAuthFailedError("no caller identity", err)
	}
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return domain.Memory{}, classify("update memory", err)
	}

	values := map[string]interface{}{}
	if patch.CreatedAt != nil {
		values["created_at"] = patch.CreatedAt.UTC()
	}
	if patch.Location != nil {
		values["location"] = *patch.Location
	}

	var rows []memoryRow
	_, err = c.From(memoriesTable).
		Update(values, "representation", "").
		Eq("id", id).
		Eq("user_id", caller.UserID).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Memory{}, classify("update memory", err)
	}
	if len(rows) == 0 {
		return domain.Memory{}, r.explainMiss(ctx, id, caller.UserID)
	}
	return rows[0].toDomain(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return apperrors.NewAuthFailedError("no caller identity", err)
	}
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return classify("delete memory", err)
	}

	var rows []memoryRow
	_, err = c.From(memoriesTable).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", caller.UserID).
		ExecuteTo(&rows)
	if err != nil {
		return classify("delete memory", err)
	}
	if len(rows) == 0 {
		return r.explainMiss(ctx, id, caller.UserID)
	}
	return nil
}

// explainMiss tells apart a row that does not exist from one owned by
// somebody else, since both leave a filtered write with zero rows.
func (r *MemoryRepository) explainMiss(ctx context.Context, id, callerID string) error {
	c, err := r.client.ForContext(ctx)
	if err != nil {
		return classify("lookup memory", err)
	}
	var rows []struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	_, err = c.From(memoriesTable).Select("id,user_id", "", false).Eq("id", id).ExecuteTo(&rows)
	if err != nil {
		return classify("lookup memory", err)
	}
	if len(rows) == 0 {
		return apperrors.NewNotFoundError("memory")
	}
	if rows[0].UserID != callerID {
		return apperrors.NewForbiddenError("memories can only be changed by their owner")
	}
	return apperrors.NewNotFoundError("memory")
}

// SubscribeInserts forwards every insert on the memories table.
// Undecodable records are dropped.
func (r *MemoryRepository) SubscribeInserts(ctx context.Context, fn repository.InsertHandler) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("subscribe inserts", err)
	}
	filter := realtime.Filter{Event: "INSERT", Schema: r.client.Config().Schema, Table: memoriesTable}
	return r.changes.Subscribe(filter, func(ch realtime.Change) {
		var row memoryRow
		if err := json.Unmarshal(ch.Record, &row); err != nil || row.ID == "" {
			r.logger.Debug("Dropping undecodable insert", zap.Error(err))
			return
		}
		fn(row.toDomain())
	}), nil
}
