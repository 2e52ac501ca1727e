// Package gateway is the realtime edge of the server: websocket transport,
// the connection registry, event fan-out and the message dispatcher.
package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Service bundles the gateway components behind one set of routes.
type Service struct {
	registry          *Registry
	broadcaster       *Broadcaster
	dispatcher        *Dispatcher
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway.
type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService wires the gateway around store. The broadcaster must be the one
// store publishes to.
func NewService(config Config, registry *Registry, broadcaster *Broadcaster, store *session.Store, cat *catalog.Catalog) *Service {
	dispatcher := NewDispatcher(store, registry, broadcaster)
	connectionManager := NewConnectionManager(config.ConnectionConfig, registry, dispatcher)

	return &Service{
		registry:          registry,
		broadcaster:       broadcaster,
		dispatcher:        dispatcher,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, registry, store.Len),
		stateHandler:      NewStateHandler(store, registry, cat),
	}
}

// RegisterRoutes registers the websocket and state routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Shutdown closes every connection and waits for the pumps to drain.
func (s *Service) Shutdown(ctx context.Context) error {
	log.Info().Int("connections", s.connectionManager.Len()).Msg("gateway shutting down")
	return s.connectionManager.CloseAll(ctx)
}

func (s *Service) Stats() Stats {
	return s.registry.Stats()
}
