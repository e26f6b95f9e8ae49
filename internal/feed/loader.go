package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/repository"
)

// Loader fills a Synchronizer from the repository. It subscribes to inserts
// before fetching, holds back events that arrive while the fetch runs, and
// replays them once the batch is in place, so a row seen by both paths lands
// once.
type Loader struct {
	repo         repository.MemoryRepository
	feed         *Synchronizer
	window       int
	fetchTimeout time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	ready    bool
	buffered []domain.Memory
	sub      repository.Subscription
}

// NewLoader creates a loader for feed.
func NewLoader(repo repository.MemoryRepository, feed *Synchronizer, window int, fetchTimeout time.Duration, logger *zap.Logger) *Loader {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Loader{
		repo:         repo,
		feed:         feed,
		window:       window,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Start subscribes to live inserts and performs the first load. A failed
// subscription is logged and the feed still loads; a failed fetch is returned
// and may be retried with Load.
func (l *Loader) Start(ctx context.Context) error {
	sub, err := l.repo.SubscribeInserts(ctx, l.onInsert)
	if err != nil {
		l.logger.Warn("Live insert subscription unavailable, feed will not update remotely", zap.Error(err))
	} else {
		l.mu.Lock()
		l.sub = sub
		l.mu.Unlock()
	}
	return l.Load(ctx)
}

// Load fetches the most recent window and replaces the feed with it.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	l.ready = false
	l.mu.Unlock()

	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}

	batch, err := l.repo.FetchRecent(ctx, l.window)
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.feed.Initialize(batch)
	replayed := 0
	for _, m := range l.buffered {
		if l.feed.OnRemoteInsert(m) {
			replayed++
		}
	}
	l.logger.Info("Feed loaded",
		zap.Int("fetched", len(batch)),
		zap.Int("buffered", len(l.buffered)),
		zap.Int("replayed", replayed),
	)
	l.buffered = nil
	l.ready = true
	return nil
}

// Ready reports whether a load has completed.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Close ends the live subscription.
func (l *Loader) Close() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (l *Loader) onInsert(m domain.Memory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		// Only the newest window can survive the replay, so older arrivals go.
		if l.window > 0 && len(l.buffered) >= l.window {
			l.buffered = append(l.buffered[:0], l.buffered[len(l.buffered)-l.window+1:]...)
		}
		l.buffered = append(l.buffered, m)
		return
	}
	l.feed.OnRemoteInsert(m)
}
