package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/db"
	"github.com/kestrel-ops/kestrel/internal/health"
	"github.com/kestrel-ops/kestrel/internal/streaming"
)

// ServerConfig configures the public API server.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Server assembles the public HTTP surface: the investigation API behind JWT
// auth, the event streams, health probes, and Prometheus metrics.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer wires all handlers onto one mux.
func NewServer(cfg ServerConfig, temporal WorkflowClient, dbClient *db.Client, streams *streaming.Manager, healthMgr *health.Manager, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	authn := NewAuthMiddleware(cfg.JWTSecret, logger)

	api := http.NewServeMux()
	NewInvestigationHandler(temporal, dbClient, logger).RegisterRoutes(api)
	mux.Handle("/api/", authn.Wrap(api))

	NewStreamingHandler(streams, logger).RegisterRoutes(mux)
	health.NewHandler(healthMgr).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP API server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
