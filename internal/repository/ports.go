// Package repository defines the store ports used by the feed, composer and
// profile workflows, plus decorators that wrap any implementation.
package repository

import (
	"context"

	"lens-backend/internal/domain"
	"lens-backend/pkg/observer"
)

// Subscription is a disposable change-feed handle.
type Subscription = observer.Subscription

// InsertHandler receives each memory inserted by anyone, including the caller.
type InsertHandler func(domain.Memory)

// MemoryRepository persists memories. The caller's identity, used for
// ownership checks, travels in ctx (see pkg/auth).
type MemoryRepository interface {
	// FetchRecent returns up to limit memories ordered by created_at desc.
	FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error)
	// Insert stores a draft and returns it with the assigned id.
	Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error)
	// Update changes created_at and/or location of a memory the caller owns.
	Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error)
	// Delete removes a memory the caller owns.
	Delete(ctx context.Context, id string) error
	// SubscribeInserts delivers every insert observed after it returns.
	// Transport failures are absorbed by the implementation.
	SubscribeInserts(ctx context.Context, fn InsertHandler) (Subscription, error)
}

// ProfileRepository persists profiles.
type ProfileRepository interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error)
}
