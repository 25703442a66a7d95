// Package api provides the HTTP and WebSocket surface over the admission
// layer: the admission middleware, permission broker endpoints, queue
// introspection, and health.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayops/agentgate/pkg/admission"
	"github.com/relayops/agentgate/pkg/database"
	"github.com/relayops/agentgate/pkg/events"
	"github.com/relayops/agentgate/pkg/metrics"
	"github.com/relayops/agentgate/pkg/permission"
	"github.com/relayops/agentgate/pkg/storage"
)

// Server is the HTTP API server.
type Server struct {
	gateway   *admission.Gateway
	broker    *permission.Broker
	hub       *events.Hub
	store     storage.Store
	dbClient  *database.Client // nil in memory-store mode
	collector *metrics.Collector

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the server and registers routes. dbClient and collector
// may be nil.
func NewServer(gateway *admission.Gateway, broker *permission.Broker, hub *events.Hub, store storage.Store, dbClient *database.Client, collector *metrics.Collector) *Server {
	s := &Server{
		gateway:   gateway,
		broker:    broker,
		hub:       hub,
		store:     store,
		dbClient:  dbClient,
		collector: collector,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(s.admissionMiddleware())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")

	v1.POST("/sessions/:id/permissions/request", s.requestPermissionHandler)
	v1.POST("/sessions/:id/permissions/:request_id/respond", s.respondPermissionHandler)
	v1.POST("/sessions/:id/permissions/:request_id/cancel", s.cancelPermissionHandler)
	v1.GET("/sessions/:id/permissions", s.pendingPermissionsHandler)
	v1.GET("/sessions/:id/rules", s.sessionRulesHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)

	v1.GET("/queue/position", s.queuePositionHandler)
	v1.GET("/queue", s.queueStatsHandler)
	v1.DELETE("/queue/:id", s.leaveQueueHandler)

	s.echo = e
	return s
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
