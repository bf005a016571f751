// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of crypto-toolkit.
//
// crypto-toolkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the authentication service over HTTP. It mounts
// password and WebAuthn ceremonies, credential management, and health
// probes on a chi router.
package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xPOURY4/crypto-toolkit/pkg/metrics"
	"github.com/xPOURY4/crypto-toolkit/pkg/ratelimit"
	"github.com/xPOURY4/crypto-toolkit/pkg/session"
	"github.com/xPOURY4/crypto-toolkit/pkg/user"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// Server represents the REST API server.
type Server struct {
	server    *http.Server
	host      string
	port      int
	version   string
	tlsConfig *tls.Config
	logger    *slog.Logger

	users     user.Store
	webauthn  *webauthn.Service
	sessions  *session.Issuer
	limiter   *ratelimit.Limiter
	readiness func(context.Context) error

	metricsEnabled bool
	metricsPath    string
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the interface to bind (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Version is the API version string
	Version string

	// Users is the account repository
	Users user.Store

	// WebAuthn is the ceremony service
	WebAuthn *webauthn.Service

	// Sessions issues and validates bearer tokens
	Sessions *session.Issuer

	// Limiter throttles the public authentication endpoints (optional)
	Limiter *ratelimit.Limiter

	// Logger is the structured logger (optional, defaults to slog.Default)
	Logger *slog.Logger

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Readiness is consulted by the readiness probe (optional)
	Readiness func(context.Context) error

	// MetricsEnabled mounts the Prometheus handler at MetricsPath
	MetricsEnabled bool
	MetricsPath    string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.WebAuthn == nil {
		return nil, fmt.Errorf("webauthn service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session issuer is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	server := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		version:        cfg.Version,
		tlsConfig:      cfg.TLSConfig,
		logger:         log,
		users:          cfg.Users,
		webauthn:       cfg.WebAuthn,
		sessions:       cfg.Sessions,
		limiter:        cfg.Limiter,
		readiness:      cfg.Readiness,
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)

	// Health probes (no auth required)
	r.Get("/health", s.HealthHandler)
	r.Head("/health", s.HealthHandler)
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)

	if s.metricsEnabled {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public authentication endpoints, rate limited per client IP
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(ratelimit.Middleware(s.limiter))
			}

			r.Post("/auth/register", s.RegisterHandler)
			r.Post("/auth/login", s.PasswordLoginHandler)
			r.Post("/auth/webauthn/login/options", s.BeginLoginHandler)
			r.Post("/auth/webauthn/login/verify", s.FinishLoginHandler)
		})

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.AuthenticationMiddleware())

			r.Get("/me", s.MeHandler)

			r.Post("/auth/webauthn/register/options", s.BeginRegistrationHandler)
			r.Post("/auth/webauthn/register/verify", s.FinishRegistrationHandler)

			r.Get("/credentials", s.ListCredentialsHandler)
			r.Delete("/credentials/{id}", s.DeleteCredentialHandler)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(user.RoleAdmin))
				r.Get("/admin/users", s.ListUsersHandler)
			})
		})
	})

	return r
}

// Handler returns the configured root handler. It is used by tests to
// serve requests without binding a socket.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "addr", s.server.Addr)

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.server.Addr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
