package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Listener holds one pooled connection in LISTEN mode and hands every
// notified memory id to the store. Connection loss is retried with
// exponential backoff and only logged.
type Listener struct {
	pool       *pgxpool.Pool
	store      *MemoryStore
	logger     *zap.Logger
	maxBackoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener feeding store.
func NewListener(pool *pgxpool.Pool, store *MemoryStore, maxBackoff time.Duration, logger *zap.Logger) *Listener {
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &Listener{pool: pool, store: store, logger: logger, maxBackoff: maxBackoff}
}

// Start begins listening in the background. Calling it twice is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Close stops listening and waits for the connection to be released.
func (l *Listener) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = l.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := l.listenOnce(ctx, b)
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		l.logger.Warn("Postgres listener lost, reconnecting",
			zap.Error(err),
			zap.Duration("retryIn", wait),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, b backoff.BackOff) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	// A connection left in LISTEN mode must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{InsertChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	b.Reset()
	l.logger.Info("Postgres listener connected", zap.String("channel", InsertChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != InsertChannel || n.Payload == "" {
			continue
		}
		l.store.deliver(ctx, n.Payload)
	}
}
