//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"lens-backend/internal/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracer,
	ProvideErrorHandler,
	ProvideSupabaseClient,
	ProvideRealtimeClient,
	ProvideStores,
	ProvideBreaker,
	ProvideMemoryRepository,
	ProvideProfileRepository,
	ProvideSessionManager,
	ProvideObjectStore,
	ProvideUploader,
	ProvideProfileService,
	ProvideSynchronizer,
	ProvideLoader,
	ProvideComposer,
	ProvideLocationCatalog,
	ProvideHub,
	ProvideRateLimiters,
	ProvideHTTPHandler,
	ProvideHTTPServer,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
