// Package composer implements the post, edit and delete workflows. Each one
// validates input, talks to the store, and only then touches the feed.
package composer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/media"
	"lens-backend/internal/observability"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/utils"
)

const (
	MaxTextLength     = 2000
	MaxLocationLength = 80
)

// Uploader stages attachments.
type Uploader interface {
	Upload(ctx context.Context, ownerID string, files []media.File) ([]domain.Media, error)
}

// Feed receives local mutations after the store accepts them.
type Feed interface {
	OnLocalInsert(m domain.Memory)
	OnLocalUpdate(id string, patch domain.MemoryPatch)
	OnLocalDelete(id string)
}

// PostInput is a draft as submitted by the user.
type PostInput struct {
	Text      string       `validate:"max=2000"`
	Category  string       `validate:"required,oneof=Learn Burn Earn Fun"`
	Location  string       `validate:"required,max=80"`
	CreatedAt *time.Time   `validate:"-"`
	Files     []media.File `validate:"-"`
}

// Composer drives the memory workflows.
type Composer struct {
	repo     repository.MemoryRepository
	uploader Uploader
	feed     Feed
	maxFiles int
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Collector
}

// New creates a Composer. metrics may be nil.
func New(repo repository.MemoryRepository, uploader Uploader, feed Feed, maxFiles int, logger *zap.Logger, metrics *observability.Collector) *Composer {
	return &Composer{
		repo:     repo,
		uploader: uploader,
		feed:     feed,
		maxFiles: maxFiles,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// Post validates in, uploads its files, inserts the memory and prepends it
// to the feed. On any failure the feed is untouched and the error tells the
// client to keep its draft.
func (c *Composer) Post(ctx context.Context, in PostInput) (domain.Memory, error) {
	caller, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return domain.Memory{}, apperrors.NewAuthFailedError("sign in to post", err)
	}

	in.Text = strings.TrimSpace(in.Text)
	in.Location = strings.TrimSpace(in.Location)
	if err := c.validatePost(in); err != nil {
		return domain.Memory{}, err
	}

	attachments, err := c.uploader.Upload(ctx, caller.UserID, in.Files)
	if err != nil {
		return domain.Memory{}, err
	}

	created := c.now()
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		created = *in.CreatedAt
	}
	draft := domain.MemoryDraft{
		Text:      in.Text,
		Category:  domain.Category(in.Category),
		Location:  in.Location,
		OwnerID:   caller.UserID,
		Media:     attachments,
		CreatedAt: created,
	}

	m, err := c.repo.Insert(ctx, draft)
	if err != nil {
		c.logger.Warn("Memory insert failed",
			zap.String("userID", caller.UserID),
			zap.Int("attachments", len(attachments)),
			zap.Error(err),
		)
		return domain.Memory{}, err
	}
	if m.Author == nil && (caller.DisplayName != "" || caller.Email != "") {
		m.Author = &domain.AuthorSnapshot{DisplayName: caller.DisplayName, Email: caller.Email}
	}

	c.feed.OnLocalInsert(m)
	if c.metrics != nil {
		c.metrics.MemoriesPosted.Inc()
	}
	c.logger.Info("Memory posted",
		zap.String("memoryID", m.ID),
		zap.String("userID", caller.UserID),
		zap.String("category", string(m.Category)),
	)
	return m, nil
}

// Edit changes the date and/or location of a memory the caller owns.
func (c *Composer) Edit(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	if _, err := auth.GetUserFromContext(ctx); err != nil {
		return domain.Memory{}, apperrors.NewAuthFailedError("sign in to edit", err)
	}
	if strings.TrimSpace(id) == "" {
		return domain.Memory{}, apperrors.NewValidationError("memory id is required")
	}
	if patch.Empty() {
		return domain.Memory{}, apperrors.NewValidationError("nothing to update: set created_at or location")
	}
	if patch.Location != nil {
		loc := strings.TrimSpace(*patch.Location)
		if loc == "" {
			return domain.Memory{}, apperrors.NewValidationError("location cannot be empty")
		}
		if len([]rune(loc)) > MaxLocationLength {
			return domain.Memory{}, apperrors.NewValidationError("location must be at most 80 characters")
		}
		patch.Location = &loc
	}
	if patch.CreatedAt != nil && patch.CreatedAt.IsZero() {
		return domain.Memory{}, apperrors.NewValidationError("created_at is invalid")
	}

	m, err := c.repo.Update(ctx, id, patch)
	if err != nil {
		return domain.Memory{}, err
	}

	c.feed.OnLocalUpdate(id, patch)
	if c.metrics != nil {
		c.metrics.MemoriesEdited.Inc()
	}
	return m, nil
}

// Delete removes a memory the caller owns.
func (c *Composer) Delete(ctx context.Context, id string) error {
	if _, err := auth.GetUserFromContext(ctx); err != nil {
		return apperrors.NewAuthFailedError("sign in to delete", err)
	}
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("memory id is required")
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}

	c.feed.OnLocalDelete(id)
	if c.metrics != nil {
		c.metrics.MemoriesDeleted.Inc()
	}
	return nil
}

func (c *Composer) validatePost(in PostInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if in.Text == "" && len(in.Files) == 0 {
		return apperrors.NewValidationError("write something or attach media")
	}
	if c.maxFiles > 0 && len(in.Files) > c.maxFiles {
		return apperrors.NewValidationError("too many attachments")
	}
	return nil
}
