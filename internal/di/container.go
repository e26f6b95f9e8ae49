// Package di wires the service together with google/wire.
package di

import (
	"net/http"

	"go.uber.org/zap"

	"lens-backend/internal/config"
	"lens-backend/internal/feed"
	"lens-backend/internal/interfaces/websocket"
	"lens-backend/internal/realtime"
	"lens-backend/internal/session"
)

// Container holds what the application coordinator starts and stops.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Server   *http.Server
	Realtime *realtime.Client
	Stores   *Stores
	Feed     *feed.Synchronizer
	Loader   *feed.Loader
	Hub      *websocket.Hub
	Sessions *session.Manager
}
