// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configDir   string
	environment string
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "kbs-policy",
	Short: "Offline CRUD provisioning for the kbs-server policy store",
	Long: `kbs-policy provisions policies, secrets, keysets, resources, and
report keypairs against a kbs-server store backend.

By default it opens the same database kbs-server is configured to use
(via --config-dir/--env, matching kbs-server's own config loading).
Pass --dry-run to provision against a throwaway in-memory store instead,
useful for validating a policy file before touching the real database.`,
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing environment config files")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "", "override automatic environment detection")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "provision against a throwaway in-memory store instead of the real database")
}
