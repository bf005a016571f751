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

	"github.com/spf13/cobra"

	"github.com/xPOURY4/crypto-toolkit/internal/config"
	"github.com/xPOURY4/crypto-toolkit/internal/store"
)

// migrateCmd applies pending database migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply all pending schema migrations to the configured
postgres database.

The serve command runs migrations automatically when auto_migrate is
enabled; this command exists for deployments that manage schema
changes as a separate step.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMigrate(cmd.Context()); err != nil {
			handleError(err)
		}
	},
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Database.Backend != "postgres" {
		return fmt.Errorf("migrations require the postgres backend (configured: %s)", cfg.Database.Backend)
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Println("Migrations applied")
	return nil
}
