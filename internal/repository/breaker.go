package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"lens-backend/internal/domain"
	apperrors "lens-backend/pkg/errors"
)

// BreakerConfig holds configuration for circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	// OnStateChange is called after each transition, if set.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Breaker wraps store calls in a circuit breaker. Only transient store
// failures count against it; ownership and validation errors do not.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker builds a breaker from cfg.
func NewBreaker(cfg BreakerConfig, logger *zap.Logger) *Breaker {
	b := &Breaker{logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests < cfg.FailureThreshold {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsStoreUnavailable(err)
		},
	})
	return b
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *Breaker, op string, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperrors.NewStoreUnavailableError(op, err).WithCode("CIRCUIT_OPEN")
		}
		// fn's own result is still returned alongside its error.
		if v, ok := out.(T); ok {
			return v, err
		}
		return zero, err
	}
	return out.(T), nil
}

// BreakerMemoryRepository guards a MemoryRepository.
type BreakerMemoryRepository struct {
	inner   MemoryRepository
	breaker *Breaker
}

// NewBreakerMemoryRepository wraps inner.
func NewBreakerMemoryRepository(inner MemoryRepository, breaker *Breaker) *BreakerMemoryRepository {
	return &BreakerMemoryRepository{inner: inner, breaker: breaker}
}

func (r *BreakerMemoryRepository) FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error) {
	return execute(r.breaker, "fetch recent memories", func() ([]domain.Memory, error) {
		return r.inner.FetchRecent(ctx, limit)
	})
}

func (r *BreakerMemoryRepository) Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error) {
	return execute(r.breaker, "insert memory", func() (domain.Memory, error) {
		return r.inner.Insert(ctx, draft)
	})
}

func (r *BreakerMemoryRepository) Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	return execute(r.breaker, "update memory", func() (domain.Memory, error) {
		return r.inner.Update(ctx, id, patch)
	})
}

func (r *BreakerMemoryRepository) Delete(ctx context.Context, id string) error {
	_, err := execute(r.breaker, "delete memory", func() (struct{}, error) {
		return struct{}{}, r.inner.Delete(ctx, id)
	})
	return err
}

// SubscribeInserts is not guarded; the change feed reconnects on its own.
func (r *BreakerMemoryRepository) SubscribeInserts(ctx context.Context, fn InsertHandler) (Subscription, error) {
	return r.inner.SubscribeInserts(ctx, fn)
}

// BreakerProfileRepository guards a ProfileRepository.
type BreakerProfileRepository struct {
	inner   ProfileRepository
	breaker *Breaker
}

// NewBreakerProfileRepository wraps inner.
func NewBreakerProfileRepository(inner ProfileRepository, breaker *Breaker) *BreakerProfileRepository {
	return &BreakerProfileRepository{inner: inner, breaker: breaker}
}

func (r *BreakerProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	return execute(r.breaker, "get profile", func() (domain.Profile, error) {
		return r.inner.Get(ctx, id)
	})
}

func (r *BreakerProfileRepository) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	return execute(r.breaker, "update profile", func() (domain.Profile, error) {
		return r.inner.Update(ctx, id, update)
	})
}
