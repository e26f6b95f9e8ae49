// Package inmem is a process-local store for the memory and profile ports.
// It backs the "memory" store driver used for local development and the
// workflow tests.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lens-backend/internal/domain"
	"lens-backend/internal/repository"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/observer"
)

// MemoryStore implements repository.MemoryRepository.
type MemoryStore struct {
	mu      sync.Mutex
	rows    map[string]domain.Memory
	inserts *observer.Registry[domain.Memory]

	// Now stamps drafts without a created_at.
	Now func() time.Time
	// Fail, when set, is consulted before every operation; a non-nil error
	// is returned as-is.
	Fail func(op string) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]domain.Memory),
		inserts: observer.NewRegistry[domain.Memory](),
		Now:     time.Now,
	}
}

var _ repository.MemoryRepository = (*MemoryStore)(nil)

func (s *MemoryStore) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

// Seed stores memories directly, bypassing ownership and subscribers.
func (s *MemoryStore) Seed(memories ...domain.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range memories {
		s.rows[m.ID] = m.Clone()
	}
}

func (s *MemoryStore) FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error) {
	if err := s.fail("fetch"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]domain.Memory, 0, len(s.rows))
	for _, m := range s.rows {
		out = append(out, m.Clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error) {
	if err := s.fail("insert"); err != nil {
		return domain.Memory{}, err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return domain.Memory{}, err
	}
	if draft.OwnerID != caller {
		return domain.Memory{}, apperrors.NewForbiddenError("memories can only be created for yourself")
	}
	if !draft.Category.Valid() {
		return domain.Memory{}, apperrors.NewValidationRejectedError("invalid category", nil)
	}

	created := draft.CreatedAt
	if created.IsZero() {
		created = s.Now()
	}
	m := domain.Memory{
		ID:        uuid.NewString(),
		Text:      draft.Text,
		Category:  draft.Category,
		Location:  draft.Location,
		CreatedAt: created,
		OwnerID:   draft.OwnerID,
		Media:     append([]domain.Media(nil), draft.Media...),
	}

	s.mu.Lock()
	s.rows[m.ID] = m
	s.mu.Unlock()

	s.inserts.Notify(m.Clone())
	return m.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	if err := s.fail("update"); err != nil {
		return domain.Memory{}, err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return domain.Memory{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.Memory{}, apperrors.NewNotFoundError("memory")
	}
	if m.OwnerID != caller {
		return domain.Memory{}, apperrors.NewForbiddenError("memory belongs to another user")
	}
	patch.Apply(&m)
	s.rows[id] = m
	return m.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := s.fail("delete"); err != nil {
		return err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return apperrors.NewNotFoundError("memory")
	}
	if m.OwnerID != caller {
		return apperrors.NewForbiddenError("memory belongs to another user")
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) SubscribeInserts(ctx context.Context, fn repository.InsertHandler) (repository.Subscription, error) {
	if err := s.fail("subscribe"); err != nil {
		return nil, err
	}
	return s.inserts.Subscribe(fn), nil
}

// EmitInsert delivers m to subscribers as if another client had inserted it.
func (s *MemoryStore) EmitInsert(m domain.Memory) {
	s.mu.Lock()
	s.rows[m.ID] = m.Clone()
	s.mu.Unlock()
	s.inserts.Notify(m.Clone())
}

// Len returns the number of stored memories.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ProfileStore implements repository.ProfileRepository.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	gets     int
}

// NewProfileStore creates a store holding profiles.
func NewProfileStore(profiles ...domain.Profile) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]domain.Profile)}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

var _ repository.ProfileRepository = (*ProfileStore)(nil)

func (s *ProfileStore) Get(ctx context.Context, id string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	p, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, apperrors.NewNotFoundError("profile")
	}
	return p, nil
}

func (s *ProfileStore) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	if caller != id {
		return domain.Profile{}, apperrors.NewForbiddenError("profiles can only be edited by their owner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		p = domain.Profile{ID: id}
		if u, err := auth.GetUserFromContext(ctx); err == nil {
			p.Email = u.Email
		}
	}
	if update.DisplayName != nil {
		p.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		p.AvatarURL = *update.AvatarURL
	}
	s.profiles[id] = p
	return p, nil
}

// GetCount returns how many Get calls reached the store.
func (s *ProfileStore) GetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func callerID(ctx context.Context) (string, error) {
	u, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return "", apperrors.NewAuthFailedError("no caller identity", err)
	}
	return u.UserID, nil
}
