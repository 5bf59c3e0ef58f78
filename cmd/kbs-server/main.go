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
)

var rootCmd = &cobra.Command{
	Use:   "kbs-server",
	Short: "SEV/SEV-ES pre-attestation key broker server",
	Long: `kbs-server validates AMD SEV/SEV-ES certificate chains, establishes
guest-owner sessions, evaluates provisioned policies, and releases
OVMF-format launch secrets over the GetBundle/GetSecret exchange.`,
	RunE: runServe,
}

func main() {
	// .env is optional local-dev convenience; production deployments set
	// KBS_* directly in the environment.
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

	rootCmd.AddCommand(versionCmd)
}
