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

// Package cli implements the command line interface for the
// authentication server: serving the API, running database
// migrations, and printing build information.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML configuration file
	configFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crypto-toolkit",
	Short: "crypto-toolkit - strong authentication service",
	Long: `crypto-toolkit provides passwordless and password-based
authentication for web applications.

It exposes a REST API for account registration, Argon2id password
login, WebAuthn credential registration and authentication, and
HMAC-signed session tokens.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is config.yaml in the working directory)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// configPath resolves the configuration file path from the flag or
// the AUTH_CONFIG environment variable.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if envConfig := os.Getenv("AUTH_CONFIG"); envConfig != "" {
		return envConfig
	}
	return "config.yaml"
}
