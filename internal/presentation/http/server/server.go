// Package server owns the HTTP listener fronting the event and ops surfaces.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/botforgehq/botforge-go/internal/application/container"
	"github.com/botforgehq/botforge-go/internal/presentation/http/routes"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// Server wraps the HTTP listener serving inbound bot events, endpoint
// payload callbacks, and the operator surface.
type Server struct {
	httpServer *http.Server
	container  *container.Container
}

// New builds the listener on top of the assembled route tree.
func New(port string, appContainer *container.Container) *Server {
	router := routes.SetupRoutes(appContainer)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		container:  appContainer,
	}
}

// Start begins serving requests and blocks until Stop is called or the
// listener fails.
func (s *Server) Start() error {
	s.container.Logger.System().Info("HTTP listener up",
		"address", s.httpServer.Addr,
		"readTimeout", s.httpServer.ReadTimeout,
		"writeTimeout", s.httpServer.WriteTimeout)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http listener failed: %w", err)
	}
	return nil
}

// Stop drains in-flight event and endpoint payload requests, then closes
// the listener. Queued outbound actions are drained separately by the
// dispatcher during shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.Shutdown().Info("Draining HTTP listener", "address", s.httpServer.Addr)
	return s.httpServer.Shutdown(ctx)
}
