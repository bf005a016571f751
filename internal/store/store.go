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

// Package store provides Postgres persistence for accounts, WebAuthn
// credentials, and ceremony challenges. Schema migrations are embedded
// and applied with goose.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/xPOURY4/crypto-toolkit/internal/store/migrations"
)

// Store bundles the Postgres-backed repositories over one connection pool.
type Store struct {
	db         *sql.DB
	users      *UserStore
	creds      *CredentialStore
	challenges *ChallengeStore
}

// Open connects to Postgres and builds the repositories. Migrations
// are not applied here; call RunMigrations explicitly.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return New(db), nil
}

// New builds a Store over an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{
		db:         db,
		users:      NewUserStore(db),
		creds:      NewCredentialStore(db),
		challenges: NewChallengeStore(db),
	}
}

// Conn returns the underlying connection pool.
func (s *Store) Conn() *sql.DB {
	return s.db
}

// Users returns the account repository.
func (s *Store) Users() *UserStore {
	return s.users
}

// Credentials returns the WebAuthn credential repository.
func (s *Store) Credentials() *CredentialStore {
	return s.creds
}

// Challenges returns the ceremony challenge repository.
func (s *Store) Challenges() *ChallengeStore {
	return s.challenges
}

// RunMigrations applies all pending schema migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
