package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lens-backend/internal/domain"
	"lens-backend/internal/observability"
)

// InstrumentedMemoryRepository records a span and store metrics per call.
type InstrumentedMemoryRepository struct {
	inner   MemoryRepository
	tracer  trace.Tracer
	metrics *observability.Collector
}

// NewInstrumentedMemoryRepository wraps inner.
func NewInstrumentedMemoryRepository(inner MemoryRepository, tracer trace.Tracer, metrics *observability.Collector) *InstrumentedMemoryRepository {
	return &InstrumentedMemoryRepository{inner: inner, tracer: tracer, metrics: metrics}
}

func (r *InstrumentedMemoryRepository) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := r.tracer.Start(ctx, "repository.memories."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if r.metrics != nil {
			r.metrics.RecordStoreOperation("memories."+op, err, time.Since(start))
		}
	}
}

func (r *InstrumentedMemoryRepository) FetchRecent(ctx context.Context, limit int) ([]domain.Memory, error) {
	ctx, done := r.observe(ctx, "fetch_recent", attribute.Int("limit", limit))
	out, err := r.inner.FetchRecent(ctx, limit)
	done(err)
	return out, err
}

func (r *InstrumentedMemoryRepository) Insert(ctx context.Context, draft domain.MemoryDraft) (domain.Memory, error) {
	ctx, done := r.observe(ctx, "insert",
		attribute.String("user.id", draft.OwnerID),
		attribute.String("memory.category", string(draft.Category)),
		attribute.Int("memory.media", len(draft.Media)),
	)
	out, err := r.inner.Insert(ctx, draft)
	done(err)
	return out, err
}

func (r *InstrumentedMemoryRepository) Update(ctx context.Context, id string, patch domain.MemoryPatch) (domain.Memory, error) {
	ctx, done := r.observe(ctx, "update", attribute.String("memory.id", id))
	out, err := r.inner.Update(ctx, id, patch)
	done(err)
	return out, err
}

func (r *InstrumentedMemoryRepository) Delete(ctx context.Context, id string) error {
	ctx, done := r.observe(ctx, "delete", attribute.String("memory.id", id))
	err := r.inner.Delete(ctx, id)
	done(err)
	return err
}

func (r *InstrumentedMemoryRepository) SubscribeInserts(ctx context.Context, fn InsertHandler) (Subscription, error) {
	ctx, done := r.observe(ctx, "subscribe_inserts")
	sub, err := r.inner.SubscribeInserts(ctx, fn)
	done(err)
	return sub, err
}

// InstrumentedProfileRepository records a span and store metrics per call.
type InstrumentedProfileRepository struct {
	inner   ProfileRepository
	tracer  trace.Tracer
	metrics *observability.Collector
}

// NewInstrumentedProfileRepository wraps inner.
func NewInstrumentedProfileRepository(inner ProfileRepository, tracer trace.Tracer, metrics *observability.Collector) *InstrumentedProfileRepository {
	return &InstrumentedProfileRepository{inner: inner, tracer: tracer, metrics: metrics}
}

func (r *InstrumentedProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	ctx, span := r.tracer.Start(ctx, "repository.profiles.get", trace.WithAttributes(attribute.String("user.id", id)))
	start := time.Now()
	p, err := r.inner.Get(ctx, id)
	r.finish(span, "profiles.get", err, start)
	return p, err
}

func (r *InstrumentedProfileRepository) Update(ctx context.Context, id string, update domain.ProfileUpdate) (domain.Profile, error) {
	ctx, span := r.tracer.Start(ctx, "repository.profiles.update", trace.WithAttributes(attribute.String("user.id", id)))
	start := time.Now()
	p, err := r.inner.Update(ctx, id, update)
	r.finish(span, "profiles.update", err, start)
	return p, err
}

func (r *InstrumentedProfileRepository) finish(span trace.Span, op string, err error, start time.Time) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if r.metrics != nil {
		r.metrics.RecordStoreOperation(op, err, time.Since(start))
	}
}
