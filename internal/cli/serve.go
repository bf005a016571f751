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

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xPOURY4/crypto-toolkit/internal/config"
	"github.com/xPOURY4/crypto-toolkit/internal/rest"
	"github.com/xPOURY4/crypto-toolkit/internal/store"
	"github.com/xPOURY4/crypto-toolkit/pkg/metrics"
	"github.com/xPOURY4/crypto-toolkit/pkg/ratelimit"
	"github.com/xPOURY4/crypto-toolkit/pkg/session"
	"github.com/xPOURY4/crypto-toolkit/pkg/user"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// challengeSweepInterval controls how often expired challenges are
// purged from the database. Expiry is enforced at consume time; this
// only keeps the table from growing without bound.
const challengeSweepInterval = 5 * time.Minute

// serveCmd starts the authentication server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication server",
	Long: `Start the REST API server.

The server reads its configuration from the file given with --config,
applying AUTH_* environment variable overrides on top. The memory
backend keeps all state in process and is intended for development;
production deployments use the postgres backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			handleError(err)
		}
	},
}

// backendStores bundles the persistence layer selected by the
// database configuration.
type backendStores struct {
	users       user.Store
	credentials webauthn.CredentialStore
	challenges  webauthn.ChallengeStore
	readiness   func(context.Context) error
	close       func() error
}

// openBackend wires the persistence layer for the configured database
// backend. The postgres path optionally runs pending migrations.
func openBackend(ctx context.Context, cfg *config.Config) (*backendStores, error) {
	switch cfg.Database.Backend {
	case "memory":
		return &backendStores{
			users:       user.NewMemoryStore(),
			credentials: webauthn.NewMemoryCredentialStore(),
			challenges:  webauthn.NewMemoryChallengeStore(),
		}, nil

	case "postgres":
		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			st.Conn().SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			st.Conn().SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.AutoMigrate {
			if err := st.RunMigrations(ctx); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return &backendStores{
			users:       st.Users(),
			credentials: st.Credentials(),
			challenges:  st.Challenges(),
			readiness:   st.Ping,
			close:       st.Close,
		}, nil

	default:
		return nil, fmt.Errorf("invalid database backend: %s", cfg.Database.Backend)
	}
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// sweepChallenges periodically removes expired challenges until the
// context is canceled.
func sweepChallenges(ctx context.Context, challenges webauthn.ChallengeStore, logger *slog.Logger) {
	ticker := time.NewTicker(challengeSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := challenges.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Challenge sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("Removed expired challenges", "count", removed)
			}
		}
	}
}

func runServe() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	if backend.close != nil {
		defer func() { _ = backend.close() }()
	}

	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:      &cfg.WebAuthn,
		Users:       backend.users,
		Credentials: backend.credentials,
		Challenges:  backend.challenges,
	})
	if err != nil {
		return fmt.Errorf("failed to create webauthn service: %w", err)
	}

	issuer, err := session.NewIssuer([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.TTL.Std())
	if err != nil {
		return fmt.Errorf("failed to create session issuer: %w", err)
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	defer limiter.Stop()

	if cfg.Metrics.Enabled {
		metrics.Enable()
		collector := metrics.StartResourceCollector(ctx, 15*time.Second)
		defer collector.Stop()
	} else {
		metrics.Disable()
	}

	go sweepChallenges(ctx, backend.challenges, logger)

	srv, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        Version,
		Users:          backend.users,
		WebAuthn:       svc,
		Sessions:       issuer,
		Limiter:        limiter,
		Logger:         logger,
		Readiness:      backend.readiness,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		ReadTimeout:    cfg.Server.ReadTimeout.Std(),
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting authentication server",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"backend", cfg.Database.Backend,
			"version", Version)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}
