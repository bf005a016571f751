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

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xPOURY4/crypto-toolkit/pkg/ratelimit"
	"github.com/xPOURY4/crypto-toolkit/pkg/session"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// Duration wraps time.Duration so config files can use values like
// "30s" or "5m". yaml.v3 has no native duration decoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Database  DatabaseConfig   `yaml:"database"`
	Session   SessionConfig    `yaml:"session"`
	WebAuthn  webauthn.Config  `yaml:"webauthn"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig controls the persistence backend. Backend "memory" keeps
// all state in process and is intended for development and tests.
type DatabaseConfig struct {
	Backend      string `yaml:"backend"` // memory, postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// SessionConfig controls session token issuance. The secret has no
// random fallback: a missing or short secret fails validation so tokens
// never silently become unverifiable across restarts.
type SessionConfig struct {
	Secret string   `yaml:"secret"`
	Issuer string   `yaml:"issuer"`
	TTL    Duration `yaml:"ttl"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration populated with development
// defaults. The session secret is deliberately left empty.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8443,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Backend:     "memory",
			AutoMigrate: true,
		},
		Session: SessionConfig{
			Issuer: "crypto-toolkit",
			TTL:    Duration(30 * time.Minute),
		},
		WebAuthn: webauthn.Config{
			RPID:          "localhost",
			RPDisplayName: "crypto-toolkit",
			RPOrigins:     []string{"https://localhost:8443"},
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("AUTH_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portEnv := os.Getenv("AUTH_PORT"); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			log.Printf("Warning: invalid AUTH_PORT value %q, using default %d: %v",
				portEnv, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid AUTH_PORT value %q (out of range 1-65535), using default %d",
				portEnv, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("AUTH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("AUTH_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Database
	if dsn := os.Getenv("AUTH_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
		if cfg.Database.Backend == "" || cfg.Database.Backend == "memory" {
			cfg.Database.Backend = "postgres"
		}
	}

	// Session
	if secret := os.Getenv("AUTH_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}

	// WebAuthn relying party
	if rpID := os.Getenv("AUTH_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origins := os.Getenv("AUTH_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.WebAuthn.RPOrigins = cfg.WebAuthn.RPOrigins[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.WebAuthn.RPOrigins = append(cfg.WebAuthn.RPOrigins, trimmed)
			}
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid database backend: %s (must be memory or postgres)", c.Database.Backend)
	}

	if len(c.Session.Secret) < session.MinSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes (set session.secret or AUTH_SESSION_SECRET)",
			session.MinSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	c.WebAuthn.SetDefaults()
	if err := c.WebAuthn.Validate(); err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path is required when metrics are enabled")
	}

	return nil
}
