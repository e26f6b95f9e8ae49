// Package app starts and stops the service components in order.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lens-backend/internal/di"
)

// App owns the lifecycle of a wired container.
type App struct {
	c      *di.Container
	logger *zap.Logger
}

// New creates an App for c.
func New(c *di.Container) *App {
	return &App{c: c, logger: c.Logger}
}

// Run starts the change feed, loads the feed in the background and serves
// HTTP until ctx is cancelled or the server fails. It returns after every
// component has stopped.
func (a *App) Run(ctx context.Context) error {
	if a.c.Realtime != nil {
		a.c.Realtime.Start(ctx)
		defer a.c.Realtime.Close()
	}
	if l := a.c.Stores.Listener; l != nil {
		l.Start(ctx)
		defer l.Close()
	}
	defer a.c.Loader.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.loadFeed(gctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("Starting server",
			zap.String("address", a.c.Server.Addr),
			zap.String("environment", string(a.c.Config.Environment)),
			zap.String("store", a.c.Config.Store.Driver),
		)
		if err := a.c.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.c.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.c.Server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown error", zap.Error(err))
		}
		a.c.Hub.Close()
		return nil
	})

	err := g.Wait()
	a.logger.Info("Server stopped")
	return err
}

// loadFeed performs the first feed load, retrying until it succeeds or ctx
// ends. Until then /ready reports loading.
func (a *App) loadFeed(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	first := true
	op := func() error {
		if first {
			first = false
			return a.c.Loader.Start(ctx)
		}
		return a.c.Loader.Load(ctx)
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("Feed load failed, retrying", zap.Error(err), zap.Duration("retryIn", wait))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() == nil {
			a.logger.Error("Feed load abandoned", zap.Error(err))
		}
		return
	}
	a.logger.Info("Feed loaded", zap.Int("memories", a.c.Feed.Len()))
}
