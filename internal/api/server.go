// Package api exposes the reconciliation service over HTTP.
//
// Routes:
//   - POST /api/reconcile  multipart upload of orders_file and settlements_file
//   - GET  /api/health     liveness probe
//   - GET  /metrics        Prometheus exposition
//
// Example usage:
//
//	server := api.NewServer(api.DefaultConfig(), service)
//	go server.Start()
//	defer server.Shutdown(ctx)
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/logger"
)

// Reconciler is the part of reconciler.ReconciliationService the API needs
type Reconciler interface {
	ReconcileReaders(ctx context.Context, orders, settlements io.Reader) (*models.ReconciliationResult, error)
}

// Config holds HTTP server configuration
type Config struct {
	Addr            string        `mapstructure:"addr"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8000",
		MaxUploadBytes:  32 << 20,
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Server is the HTTP front end of the reconciliation service
type Server struct {
	config *Config
	server *http.Server
	logger logger.Logger
}

// NewServer creates a server for reconciler. A nil config uses DefaultConfig.
func NewServer(config *Config, reconciler Reconciler) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("api")
	handlers := &Handlers{
		reconciler:     reconciler,
		maxUploadBytes: config.MaxUploadBytes,
		logger:         log,
	}

	return &Server{
		config: config,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           NewRouter(config, handlers),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens and serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.config.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting at most ShutdownTimeout
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
