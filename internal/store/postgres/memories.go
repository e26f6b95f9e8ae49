package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/observer"
)

const memoryColumns = `m.id::text, m.text, m.category, m.location, m.created_at, m.user_id::text,
	m.media_urls, m.media_types, m.image_url, p.display_name, p.email`

const memoryFrom = `FROM memories m LEFT JOIN profiles p ON p.id = m.user_id`

// MemoryStore implements repository.MemoryRepository on a pgx pool.
type MemoryStore struct {
	pool    *pgxpool.Pool
	inserts *observer.Registry[domain.Memory]
	logger  *zap.Logger
}

var _ repository.MemoryRepository = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore. Live inserts flow once a Listener
// is running against the same database.
func NewMemoryStore(pool *pgxpool.Pool, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{pool: pool, inserts: observer.NewRegistry[domain.Memory](), logger: logger}
}

func (s *MemoryStore) FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+memoryColumns+` `+memoryFrom+`
		ORDER BY m.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, classify("fetch memories", err)
	}
	defer rows.Close()

	out := make([]domain.Memory, 0, limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, classify("fetch memories", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("fetch memories", err)
	}
	return out, nil
}

// Get loads one memory with its author.
func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` `+memoryFrom+` WHERE m.id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Memory{}, apperrors.NewNotFoundError("memory")
	}
	if err != nil {
		return domain.Memory{}, classify("get memory", err)
	}
	return m, nil
}

func (s *MemoryStore) Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return domain.Memory{}, err
	}
	if caller != draft.OwnerID {
		return domain.Memory{}, apperrors.NewForbiddenError("memories can only be created for yourself")
	}

	urls := make([]string, 0, len(draft.Media))
	kinds := make([]string, 0, len(draft.Media))
	for _, m := range draft.Media {
		urls = append(urls, m.URL)
		kinds = append(kinds, string(m.Kind))
	}
	created := draft.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var id string
	err = s.pool.QueryRow(ctx, `INSERT INTO memories (text, category, location, created_at, user_id, media_urls, media_types)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id::text`,
		draft.Text, string(draft.Category), draft.Location, created.UTC(), draft.OwnerID, urls, kinds,
	).Scan(&id)
	if err != nil {
		return domain.Memory{}, classify("insert memory", err)
	}

	m := domain.Memory{
		ID:        id,
		Text:      draft.Text,
		Category:  draft.Category,
		Location:  draft.Location,
		CreatedAt: created.UTC(),
		OwnerID:   draft.OwnerID,
		Media:     append([]domain.Media{}, draft.Media...),
	}
	return m, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return domain.Memory{}, err
	}

	var created *time.Time
	if patch.CreatedAt != nil {
		t := patch.CreatedAt.UTC()
		created = &t
	}
	tag, err := s.pool.Exec(ctx, `UPDATE memories
		SET created_at = COALESCE($3, created_at), location = COALESCE($4, location)
		WHERE id = $1 AND user_id = $2`, id, caller, created, patch.Location)
	if err != nil {
		return domain.Memory{}, classify("update memory", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Memory{}, s.explainMiss(ctx, id)
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1 AND user_id = $2`, id, caller)
	if err != nil {
		return classify("delete memory", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

func (s *MemoryStore) explainMiss(ctx context.Context, id string) error {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT user_id::text FROM memories WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFoundError("memory")
	}
	if err != nil {
		return classify("lookup memory", err)
	}
	return apperrors.NewForbiddenError("memories can only be changed by their owner")
}

func (s *MemoryStore) SubscribeInserts(ctx context.Context, fn repository.InsertHandler) (repository.Subscription, error) {
	return s.inserts.Subscribe(fn), nil
}

// deliver loads an inserted row and fans it out.
func (s *MemoryStore) deliver(ctx context.Context, id string) {
	if s.inserts.Len() == 0 {
		return
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		s.logger.Debug("Dropping notified insert", zap.String("memoryID", id), zap.Error(err))
		return
	}
	s.inserts.Notify(m)
}

func scanMemory(row pgx.Row) (domain.Memory, error) {
	var (
		m           domain.Memory
		category    string
		urls, kinds []string
		imageURL    *string
		displayName *string
		email       *string
	)
	if err := row.Scan(&m.ID, &m.Text, &category, &m.Location, &m.CreatedAt, &m.OwnerID,
		&urls, &kinds, &imageURL, &displayName, &email); err != nil {
		return domain.Memory{}, err
	}
	m.Category = domain.Category(category)
	m.Media = mediaFromColumns(urls, kinds, imageURL)
	if displayName != nil || email != nil {
		m.Author = &domain.AuthorSnapshot{}
		if displayName != nil {
			m.Author.DisplayName = *displayName
		}
		if email != nil {
			m.Author.Email = *email
		}
	}
	return m, nil
}

// mediaFromColumns pairs URLs with their stored kinds. A row with no URLs
// but a legacy image_url yields that single image.
func mediaFromColumns(urls, kinds []string, legacy *string) []domain.Media {
	out := make([]domain.Media, 0, len(urls))
	for i, u := range urls {
		kind := domain.MediaImage
		if i < len(kinds) {
			kind = domain.ParseMediaKind(kinds[i])
		}
		out = append(out, domain.Media{URL: u, Kind: kind})
	}
	if len(out) == 0 && legacy != nil && *legacy != "" {
		out = append(out, domain.Media{URL: *legacy, Kind: domain.MediaImage})
	}
	return out
}

func callerID(ctx context.Context) (string, error) {
	u, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return "", apperrors.NewAuthFailedError("no caller identity", err)
	}
	return u.UserID, nil
}
